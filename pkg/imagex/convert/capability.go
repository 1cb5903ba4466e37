package convert

import (
	"context"
	"errors"
	"sync"
	"time"

	"formcapture/pkg/logger"
)

// Output 解码能力的返回，可能是单个载荷或载荷列表
type Output struct {
	Blob  []byte
	Blobs [][]byte
}

// First 取第一个载荷
func (o Output) First() []byte {
	if len(o.Blob) > 0 {
		return o.Blob
	}
	if len(o.Blobs) > 0 {
		return o.Blobs[0]
	}
	return nil
}

// Decoder 旧格式解码能力
type Decoder interface {
	// Convert 将原始字节转换为 toType 编码，quality 取值 (0,1]
	Convert(ctx context.Context, data []byte, toType string, quality float64) (Output, error)
	Name() string
}

// Source 解码能力的加载来源
type Source func(ctx context.Context) (Decoder, error)

var errNotLoaded = errors.New("解码能力未加载")

// Capability 解码能力就绪信号，只能被设置一次
type Capability struct {
	once    sync.Once
	ready   chan struct{}
	decoder Decoder
	err     error
}

func NewCapability() *Capability {
	return &Capability{ready: make(chan struct{})}
}

// Ready 立即可用的能力（测试与命令行使用）
func Ready(d Decoder) *Capability {
	c := NewCapability()
	c.Resolve(d, nil)
	return c
}

// Resolve 设置加载结果，重复调用无效
func (c *Capability) Resolve(d Decoder, err error) {
	c.once.Do(func() {
		if d == nil && err == nil {
			err = errNotLoaded
		}
		c.decoder = d
		c.err = err
		close(c.ready)
	})
}

// Wait 在 timeout 内等待能力就绪
func (c *Capability) Wait(ctx context.Context, timeout time.Duration) (Decoder, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.ready:
		return c.decoder, c.err
	case <-timer.C:
		return nil, errors.New("等待解码能力超时")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Load 依次尝试各来源，第一个成功的来源即为最终能力
func Load(ctx context.Context, c *Capability, sources ...Source) {
	var lastErr error
	for i, src := range sources {
		if src == nil {
			continue
		}
		d, err := src(ctx)
		if err == nil && d != nil {
			logger.Info("旧格式解码能力已就绪: %s", d.Name())
			c.Resolve(d, nil)
			return
		}
		if err == nil {
			err = errNotLoaded
		}
		lastErr = err
		logger.Warn("解码能力来源 #%d 加载失败: %v", i+1, err)
	}
	if lastErr == nil {
		lastErr = errNotLoaded
	}
	c.Resolve(nil, lastErr)
}
