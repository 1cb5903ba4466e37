package capture

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"formcapture/internal/models"
	"formcapture/internal/services/attachment"
	"formcapture/pkg/imagex"
	"formcapture/pkg/imagex/compress"
	"formcapture/pkg/imagex/convert"
	"formcapture/pkg/logger"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubOptimizer struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (s *stubOptimizer) Optimize(f *imagex.File, target int64) (*compress.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, f.Name)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := &imagex.File{Name: f.Name + ".opt.jpg", MimeType: "image/jpeg", Data: []byte("small")}
	return &compress.Result{File: out, Stage: compress.StageA, WithinBudget: true}, nil
}

type stubConverter struct {
	err error
}

func (s *stubConverter) Convert(ctx context.Context, f *imagex.File) (*imagex.File, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &imagex.File{Name: "converted.jpg", MimeType: "image/jpeg", Data: []byte("jpeg")}, nil
}

func newPipeline(conv Converter, opt Optimizer) (*Pipeline, *attachment.Manager) {
	store := attachment.NewStore()
	store.Register("fotos", attachment.InputControl{Multiple: true})
	store.Register("firma_foto", attachment.InputControl{Capture: true})
	m := attachment.NewManager(store)
	return NewPipeline(conv, opt, m, 500*1024), m
}

func jpegFile(t *testing.T, name string, w, h int) *imagex.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 10, G: 200, B: 90, A: 255}), imaging.JPEG))
	return &imagex.File{Name: name, MimeType: "image/jpeg", Data: buf.Bytes()}
}

func TestHEICWithoutDecoderKeepsOriginal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(zap.NewNop()) })

	conv := convert.NewConverter(convert.NewCapability(), convert.Options{CapabilityWait: 20 * time.Millisecond})
	opt := &stubOptimizer{}
	p, m := newPipeline(conv, opt)

	heic := &imagex.File{Name: "photo.HEIC", MimeType: "image/heic", Data: []byte("not-really-heic")}
	sel, err := p.HandleSelection(context.Background(), "fotos", []*imagex.File{heic}, models.CaptureGalleryMulti)
	require.NoError(t, err)

	list := m.Attachments("fotos")
	require.Len(t, list, 1)
	assert.Equal(t, "photo.HEIC", list[0].Name)
	assert.Equal(t, "image/heic", list[0].MimeType)
	assert.EqualValues(t, len("not-really-heic"), list[0].ByteSize)

	require.Len(t, sel.Outcomes, 1)
	assert.Equal(t, ActionFallback, sel.Outcomes[0].Action)
	assert.Equal(t, imagex.ErrorTypeCapabilityUnavailable, sel.Outcomes[0].ErrorType)
	assert.Empty(t, opt.calls)
	assert.Equal(t, 1, logs.FilterMessageSnippet("旧格式转换失败").Len())
}

func TestConvertedHEICIsOptimized(t *testing.T) {
	t.Parallel()

	opt := &stubOptimizer{}
	p, m := newPipeline(&stubConverter{}, opt)

	sel, err := p.HandleSelection(context.Background(), "fotos",
		[]*imagex.File{{Name: "a.heic", MimeType: "", Data: []byte("x")}}, models.CaptureGalleryMulti)
	require.NoError(t, err)

	assert.Equal(t, []string{"converted.jpg"}, opt.calls)
	assert.Equal(t, ActionConverted, sel.Outcomes[0].Action)
	assert.Equal(t, "converted.jpg.opt.jpg", m.Attachments("fotos")[0].Name)
}

func TestOptimizeFailureFallsBack(t *testing.T) {
	t.Parallel()

	opt := &stubOptimizer{err: imagex.NewProcessError(imagex.ErrorTypeDecodeFailed, "bad", nil)}
	p, m := newPipeline(&stubConverter{}, opt)

	original := &imagex.File{Name: "b.png", MimeType: "image/png", Data: []byte("png")}
	converted := &imagex.File{Name: "c.HEIF", MimeType: "image/heif", Data: []byte("heif")}
	sel, err := p.HandleSelection(context.Background(), "fotos", []*imagex.File{original, converted}, models.CaptureGalleryMulti)
	require.NoError(t, err)

	list := m.Attachments("fotos")
	require.Len(t, list, 2)
	assert.Equal(t, "b.png", list[0].Name)
	assert.Equal(t, "c.HEIF", list[1].Name)
	assert.Equal(t, "image/heif", list[1].MimeType)
	assert.Equal(t, ActionFallback, sel.Outcomes[0].Action)
	assert.Equal(t, imagex.ErrorTypeDecodeFailed, sel.Outcomes[0].ErrorType)
}

func TestConvertedHEICKeptWhenEncodeFails(t *testing.T) {
	t.Parallel()

	opt := &stubOptimizer{err: imagex.NewProcessError(imagex.ErrorTypeEncodeFailed, "encoder", nil)}
	p, m := newPipeline(&stubConverter{}, opt)

	_, err := p.HandleSelection(context.Background(), "fotos",
		[]*imagex.File{{Name: "c.heic", MimeType: "image/heic", Data: []byte("heic")}}, models.CaptureGalleryMulti)
	require.NoError(t, err)

	list := m.Attachments("fotos")
	require.Len(t, list, 1)
	assert.Equal(t, "converted.jpg", list[0].Name)
}

func TestGarbageConversionKeepsOriginalHEIC(t *testing.T) {
	t.Parallel()

	decoder := garbageDecoder("<html>503 Service Unavailable</html>")
	conv := convert.NewConverter(convert.Ready(decoder), convert.Options{})
	p, m := newPipeline(conv, compress.NewOptimizer(compress.Options{}))

	heic := &imagex.File{Name: "photo.HEIC", MimeType: "image/heic", Data: []byte("heic-bytes")}
	sel, err := p.HandleSelection(context.Background(), "fotos", []*imagex.File{heic}, models.CaptureGalleryMulti)
	require.NoError(t, err)

	list := m.Attachments("fotos")
	require.Len(t, list, 1)
	assert.Equal(t, "photo.HEIC", list[0].Name)
	assert.Equal(t, "image/heic", list[0].MimeType)
	assert.Equal(t, []byte("heic-bytes"), list[0].File().Data)
	assert.Equal(t, ActionFallback, sel.Outcomes[0].Action)
	assert.Equal(t, imagex.ErrorTypeConversionFailed, sel.Outcomes[0].ErrorType)
}

type garbageDecoder string

func (d garbageDecoder) Name() string { return "garbage" }

func (d garbageDecoder) Convert(ctx context.Context, data []byte, toType string, quality float64) (convert.Output, error) {
	return convert.Output{Blob: []byte(d)}, nil
}

func TestProgrammingErrorAborts(t *testing.T) {
	t.Parallel()

	opt := &stubOptimizer{err: imagex.NewProcessError(imagex.ErrorTypePreconditionViolation, "wiring", nil)}
	p, m := newPipeline(&stubConverter{}, opt)

	_, err := p.HandleSelection(context.Background(), "fotos",
		[]*imagex.File{{Name: "b.png", MimeType: "image/png", Data: []byte("png")}}, models.CaptureGalleryMulti)
	require.Error(t, err)
	assert.True(t, imagex.IsType(err, imagex.ErrorTypePreconditionViolation))
	assert.Empty(t, m.Attachments("fotos"))
}

func TestNonImagePassesThrough(t *testing.T) {
	t.Parallel()

	opt := &stubOptimizer{err: errors.New("must not be called")}
	p, m := newPipeline(nil, opt)

	sel, err := p.HandleSelection(context.Background(), "fotos",
		[]*imagex.File{{Name: "acta.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}}, models.CaptureGalleryMulti)
	require.NoError(t, err)
	assert.Equal(t, ActionPassthrough, sel.Outcomes[0].Action)
	assert.Equal(t, "acta.pdf", m.Attachments("fotos")[0].Name)
	assert.Empty(t, opt.calls)
}

func TestSequentialCameraCaptures(t *testing.T) {
	t.Parallel()

	p, m := newPipeline(nil, compress.NewOptimizer(compress.Options{}))

	_, err := p.HandleSelection(context.Background(), "firma_foto", []*imagex.File{jpegFile(t, "one.jpg", 40, 30)}, models.CaptureCameraSingle)
	require.NoError(t, err)
	second := jpegFile(t, "two.jpeg", 50, 20)
	_, err = p.HandleSelection(context.Background(), "firma_foto", []*imagex.File{second}, models.CaptureCameraSingle)
	require.NoError(t, err)

	list := m.Attachments("firma_foto")
	require.Len(t, list, 1)
	assert.Equal(t, "two.jpg", list[0].Name)
	assert.Equal(t, 50, list[0].Width)
	assert.Equal(t, models.CaptureCameraSingle, list[0].SourceKind)
}

func TestSelectionsOnSameFieldAreSerialized(t *testing.T) {
	t.Parallel()

	opt := &stubOptimizer{}
	p, m := newPipeline(nil, opt)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := &imagex.File{Name: string(rune('a'+i)) + ".png", MimeType: "image/png", Data: []byte{byte(i)}}
			_, err := p.HandleSelection(context.Background(), "fotos", []*imagex.File{f}, models.CaptureGalleryMulti)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.Attachments("fotos"), 8)
}
