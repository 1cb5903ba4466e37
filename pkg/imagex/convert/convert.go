package convert

import (
	"bytes"
	"context"
	"image"
	"time"

	"formcapture/pkg/imagex"
	"formcapture/pkg/imagex/formats"
)

// Options 转换参数
type Options struct {
	Quality        float64       // 输出 JPEG 质量 (0,1]
	CapabilityWait time.Duration // 等待解码能力的上限
	Timeout        time.Duration // 单次转换执行上限
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Quality:        0.92,
		CapabilityWait: 20 * time.Second,
		Timeout:        30 * time.Second,
	}
}

// Converter 旧格式（HEIC/HEIF）到 JPEG 的转换器
type Converter struct {
	capability *Capability
	opts       Options
	now        func() time.Time
}

func NewConverter(c *Capability, opts Options) *Converter {
	def := DefaultOptions()
	if opts.Quality <= 0 || opts.Quality > 1 {
		opts.Quality = def.Quality
	}
	if opts.CapabilityWait <= 0 {
		opts.CapabilityWait = def.CapabilityWait
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Converter{capability: c, opts: opts, now: time.Now}
}

type convertResult struct {
	out Output
	err error
}

// Convert 返回新的 JPEG 文件，原文件保持不变
func (c *Converter) Convert(ctx context.Context, f *imagex.File) (*imagex.File, error) {
	if c.capability == nil {
		return nil, imagex.NewProcessError(imagex.ErrorTypeCapabilityUnavailable, "旧格式解码能力不可用", errNotLoaded)
	}
	decoder, err := c.capability.Wait(ctx, c.opts.CapabilityWait)
	if err != nil {
		return nil, imagex.NewProcessError(imagex.ErrorTypeCapabilityUnavailable, "旧格式解码能力不可用", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	input := append([]byte(nil), f.Data...)
	done := make(chan convertResult, 1)
	go func() {
		out, err := decoder.Convert(runCtx, input, "image/jpeg", c.opts.Quality)
		done <- convertResult{out: out, err: err}
	}()

	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()

	var res convertResult
	select {
	case res = <-done:
	case <-timer.C:
		return nil, imagex.NewProcessError(imagex.ErrorTypeConversionFailed, "转换超时", context.DeadlineExceeded)
	case <-ctx.Done():
		return nil, imagex.NewProcessError(imagex.ErrorTypeConversionFailed, "转换被中断", ctx.Err())
	}

	if res.err != nil {
		return nil, imagex.NewProcessError(imagex.ErrorTypeConversionFailed, "转换失败", res.err)
	}
	blob := res.out.First()
	if len(blob) == 0 {
		return nil, imagex.NewProcessError(imagex.ErrorTypeConversionFailed, "转换结果为空", nil)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(blob))
	if err != nil {
		return nil, imagex.NewProcessError(imagex.ErrorTypeConversionFailed, "转换结果不是有效图片", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, imagex.NewProcessError(imagex.ErrorTypeConversionFailed, "转换结果尺寸无效", nil)
	}

	return &imagex.File{
		Name:     formats.ReplaceExtension(f.Name, ".jpg"),
		MimeType: "image/jpeg",
		Data:     blob,
		ModTime:  c.now(),
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}
