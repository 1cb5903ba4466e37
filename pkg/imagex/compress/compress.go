package compress

import (
	"bytes"
	"image"
	"image/jpeg"
	"time"

	"formcapture/pkg/imagex"
	"formcapture/pkg/imagex/formats"
	"formcapture/pkg/logger"

	"github.com/disintegration/imaging"
)

// Stage 命中的搜索阶段
type Stage string

const (
	// StageSource 输入已满足要求，原样返回
	StageSource Stage = "source"
	// StageA 初始尺寸上的质量阶梯
	StageA Stage = "A"
	// StageB 激进尺寸上的质量阶梯
	StageB Stage = "B"
	// StageLastResort 阶梯耗尽，返回最低质量结果
	StageLastResort Stage = "C"
)

var (
	// 质量阶梯（百分比）
	stageALadder = []int{75, 70, 65, 60, 55, 50, 45, 40, 35, 30, 25, 20}
	stageBLadder = []int{40, 35, 30, 25, 20}
)

// Options 压缩参数
type Options struct {
	TargetBytes       int64 // 目标字节上限
	InitialMaxEdge    int   // 初始长边上限
	AggressiveMaxEdge int   // 激进长边上限
}

func DefaultOptions() Options {
	return Options{
		TargetBytes:       500 * 1024,
		InitialMaxEdge:    2000,
		AggressiveMaxEdge: 1200,
	}
}

// Attempt 一次编码尝试
type Attempt struct {
	Quality        float64 `json:"quality" yaml:"quality"`
	DimensionCap   int     `json:"dimension_cap" yaml:"dimension_cap"`
	ResultByteSize int64   `json:"result_byte_size" yaml:"result_byte_size"`
}

// Result 压缩结果
type Result struct {
	File         *imagex.File `json:"-" yaml:"-"`
	Stage        Stage        `json:"stage" yaml:"stage"`
	Quality      float64      `json:"quality" yaml:"quality"`
	Width        int          `json:"width" yaml:"width"`
	Height       int          `json:"height" yaml:"height"`
	Attempts     []Attempt    `json:"attempts" yaml:"attempts"`
	WithinBudget bool         `json:"within_budget" yaml:"within_budget"`
}

// EncodeFunc 按质量百分比编码 JPEG
type EncodeFunc func(img image.Image, quality int) ([]byte, error)

// Optimizer 自适应压缩器
type Optimizer struct {
	opts   Options
	encode EncodeFunc
	now    func() time.Time
}

func NewOptimizer(opts Options) *Optimizer {
	def := DefaultOptions()
	if opts.TargetBytes <= 0 {
		opts.TargetBytes = def.TargetBytes
	}
	if opts.InitialMaxEdge <= 0 {
		opts.InitialMaxEdge = def.InitialMaxEdge
	}
	if opts.AggressiveMaxEdge <= 0 {
		opts.AggressiveMaxEdge = def.AggressiveMaxEdge
	}
	return &Optimizer{opts: opts, encode: encodeJPEG, now: time.Now}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Options 当前参数
func (o *Optimizer) Options() Options {
	return o.opts
}

type encoded struct {
	data    []byte
	quality int
	dimCap  int
	width   int
	height  int
}

// Optimize 搜索质量与尺寸使输出不超过 targetMaxBytes；targetMaxBytes<=0 时使用默认目标
// 阶梯全部失败时仍返回最低质量的结果，由提交校验决定是否放行
func (o *Optimizer) Optimize(f *imagex.File, targetMaxBytes int64) (*Result, error) {
	if kind := formats.Classify(f.Name, f.MimeType); kind != formats.KindDecodableImage {
		logger.Error("压缩器收到非可解码图片: %s (%s)", f.Name, kind)
		return nil, imagex.NewProcessError(imagex.ErrorTypePreconditionViolation, "压缩器只接受可直接解码的图片: "+string(kind), nil)
	}
	if targetMaxBytes <= 0 {
		targetMaxBytes = o.opts.TargetBytes
	}

	if res, ok := o.alreadyCompliant(f, targetMaxBytes); ok {
		return res, nil
	}

	src, err := Decode(f)
	if err != nil {
		return nil, imagex.NewProcessError(imagex.ErrorTypeDecodeFailed, "图片解码失败", err)
	}

	res := &Result{}
	try := func(img image.Image, dimCap int, ladder []int) (*encoded, bool, error) {
		var last *encoded
		for _, q := range ladder {
			data, err := o.encode(img, q)
			if err != nil {
				return nil, false, imagex.NewProcessError(imagex.ErrorTypeEncodeFailed, "JPEG 编码失败", err)
			}
			b := img.Bounds()
			last = &encoded{data: data, quality: q, dimCap: dimCap, width: b.Dx(), height: b.Dy()}
			res.Attempts = append(res.Attempts, Attempt{
				Quality:        percent(q),
				DimensionCap:   dimCap,
				ResultByteSize: int64(len(data)),
			})
			if int64(len(data)) <= targetMaxBytes {
				return last, true, nil
			}
		}
		return last, false, nil
	}

	initial := fitWithin(src, o.opts.InitialMaxEdge)
	enc, ok, err := try(initial, o.opts.InitialMaxEdge, stageALadder)
	if err != nil {
		return nil, err
	}
	if ok {
		return o.finish(f, res, StageA, enc, true), nil
	}

	aggressive := fitWithin(src, o.opts.AggressiveMaxEdge)
	enc, ok, err = try(aggressive, o.opts.AggressiveMaxEdge, stageBLadder)
	if err != nil {
		return nil, err
	}
	if ok {
		return o.finish(f, res, StageB, enc, true), nil
	}

	// 最低质量 + 激进尺寸的编码结果即为兜底输出
	logger.Debug("压缩阶梯耗尽，返回兜底结果: %s %d bytes > %d", f.Name, len(enc.data), targetMaxBytes)
	return o.finish(f, res, StageLastResort, enc, false), nil
}

func (o *Optimizer) finish(src *imagex.File, res *Result, stage Stage, enc *encoded, within bool) *Result {
	res.Stage = stage
	res.Quality = percent(enc.quality)
	res.Width = enc.width
	res.Height = enc.height
	res.WithinBudget = within
	res.File = &imagex.File{
		Name:     formats.ReplaceExtension(src.Name, ".jpg"),
		MimeType: "image/jpeg",
		Data:     enc.data,
		ModTime:  o.now(),
		Width:    enc.width,
		Height:   enc.height,
	}
	return res
}

// alreadyCompliant 已是预算内且尺寸在上限内的 JPEG 时不再重新编码
func (o *Optimizer) alreadyCompliant(f *imagex.File, targetMaxBytes int64) (*Result, bool) {
	if f.MimeType != "image/jpeg" || f.Size() > targetMaxBytes {
		return nil, false
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return nil, false
	}
	if max(cfg.Width, cfg.Height) > o.opts.InitialMaxEdge {
		return nil, false
	}
	out := f.Clone()
	out.Name = formats.ReplaceExtension(f.Name, ".jpg")
	out.Width, out.Height = cfg.Width, cfg.Height
	return &Result{
		File:         out,
		Stage:        StageSource,
		Width:        cfg.Width,
		Height:       cfg.Height,
		WithinBudget: true,
	}, true
}

func percent(q int) float64 {
	return float64(q) / 100
}
