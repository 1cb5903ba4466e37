package capture

import (
	"context"
	"errors"
	"sync"

	"formcapture/internal/models"
	"formcapture/internal/services/attachment"
	"formcapture/pkg/imagex"
	"formcapture/pkg/imagex/compress"
	"formcapture/pkg/imagex/formats"
	"formcapture/pkg/logger"
)

// Converter 旧格式转换
type Converter interface {
	Convert(ctx context.Context, f *imagex.File) (*imagex.File, error)
}

// Optimizer 自适应压缩
type Optimizer interface {
	Optimize(f *imagex.File, targetMaxBytes int64) (*compress.Result, error)
}

// Action 单个文件的处理结果
type Action string

const (
	ActionOptimized   Action = "optimized"   // 压缩为 JPEG
	ActionConverted   Action = "converted"   // 旧格式转换后压缩
	ActionFallback    Action = "fallback"    // 处理失败，保留原文件
	ActionPassthrough Action = "passthrough" // 非图片，原样保留
)

// Outcome 单个文件的处理记录
type Outcome struct {
	Name         string           `json:"name" yaml:"name"`
	OutputName   string           `json:"output_name" yaml:"output_name"`
	Kind         formats.Kind     `json:"kind" yaml:"kind"`
	Action       Action           `json:"action" yaml:"action"`
	OriginalSize int64            `json:"original_size" yaml:"original_size"`
	FinalSize    int64            `json:"final_size" yaml:"final_size"`
	Compression  *compress.Result `json:"compression,omitempty" yaml:"compression,omitempty"`
	ErrorType    imagex.ErrorType `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	Error        string           `json:"error,omitempty" yaml:"error,omitempty"`
}

// Selection 一次选择事件的结果
type Selection struct {
	Previews []attachment.Preview `json:"previews"`
	Outcomes []Outcome            `json:"outcomes"`
}

// Pipeline 文件字段变更事件的处理管线
type Pipeline struct {
	converter   Converter
	optimizer   Optimizer
	manager     *attachment.Manager
	targetBytes int64

	mu     sync.Mutex
	fields map[string]*sync.Mutex
}

func NewPipeline(converter Converter, optimizer Optimizer, manager *attachment.Manager, targetBytes int64) *Pipeline {
	return &Pipeline{
		converter:   converter,
		optimizer:   optimizer,
		manager:     manager,
		targetBytes: targetBytes,
		fields:      make(map[string]*sync.Mutex),
	}
}

func (p *Pipeline) fieldLock(fieldID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.fields[fieldID]
	if !ok {
		l = &sync.Mutex{}
		p.fields[fieldID] = l
	}
	return l
}

// HandleSelection 按选择顺序逐个处理文件，全部完成后一次性合并到字段集合
// 同一字段的两次选择串行执行，不同字段互不阻塞
func (p *Pipeline) HandleSelection(ctx context.Context, fieldID string, files []*imagex.File, mode models.CaptureMode) (*Selection, error) {
	lock := p.fieldLock(fieldID)
	lock.Lock()
	defer lock.Unlock()

	produced := make([]*models.Attachment, 0, len(files))
	outcomes := make([]Outcome, 0, len(files))
	for i, f := range files {
		logger.Debug("字段 %s 处理文件 %d/%d: %s", fieldID, i+1, len(files), f.Name)
		out, outcome, err := p.process(ctx, f)
		if err != nil {
			return nil, err
		}
		produced = append(produced, models.NewAttachment(out, mode))
		outcomes = append(outcomes, outcome)
	}

	previews, err := p.manager.OnFilesSelected(fieldID, produced, mode)
	if err != nil {
		return nil, err
	}
	return &Selection{Previews: previews, Outcomes: outcomes}, nil
}

// process 处理单个文件；可回退的错误转为保留原文件，只有接线错误向上返回
func (p *Pipeline) process(ctx context.Context, original *imagex.File) (*imagex.File, Outcome, error) {
	kind := formats.Classify(original.Name, original.MimeType)
	outcome := Outcome{Name: original.Name, Kind: kind, OriginalSize: original.Size()}

	current := original
	action := ActionOptimized

	switch kind {
	case formats.KindOther:
		return original, outcome.withKeep(original, ActionPassthrough, nil), nil
	case formats.KindLegacyContainer:
		var (
			converted *imagex.File
			err       error
		)
		if p.converter == nil {
			err = imagex.NewProcessError(imagex.ErrorTypeCapabilityUnavailable, "未配置旧格式转换器", nil)
		} else {
			converted, err = p.converter.Convert(ctx, original)
		}
		if err != nil {
			if !imagex.IsFallbackEligible(err) {
				return nil, outcome, err
			}
			logger.Warn("旧格式转换失败，保留原文件交由服务端处理: %s: %v", original.Name, err)
			return original, outcome.withKeep(original, ActionFallback, err), nil
		}
		current = converted
		action = ActionConverted
	}

	res, err := p.optimizer.Optimize(current, p.targetBytes)
	if err != nil {
		if !imagex.IsFallbackEligible(err) {
			logger.Error("压缩器调用错误: %s: %v", current.Name, err)
			return nil, outcome, err
		}
		logger.Warn("图片压缩失败，保留原文件交由服务端处理: %s: %v", current.Name, err)
		// 转换结果无法解码时回到原始 HEIC，其余情况已转换的 JPEG 优先
		if action == ActionConverted && !imagex.IsType(err, imagex.ErrorTypeDecodeFailed) {
			return current, outcome.withKeep(current, ActionFallback, err), nil
		}
		return original, outcome.withKeep(original, ActionFallback, err), nil
	}

	if !res.WithinBudget {
		logger.Warn("图片压缩后仍超出目标大小: %s %s > %s", res.File.Name,
			imagex.FormatFileSize(res.File.Size()), imagex.FormatFileSize(p.targetBytes))
	}
	outcome.Action = action
	outcome.OutputName = res.File.Name
	outcome.FinalSize = res.File.Size()
	outcome.Compression = res
	return res.File, outcome, nil
}

func (o Outcome) withKeep(f *imagex.File, action Action, err error) Outcome {
	o.Action = action
	o.OutputName = f.Name
	o.FinalSize = f.Size()
	if err != nil {
		o.Error = err.Error()
		var pe *imagex.ProcessError
		if errors.As(err, &pe) {
			o.ErrorType = pe.Type
		}
	}
	return o
}
