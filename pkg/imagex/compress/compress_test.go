package compress

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"formcapture/pkg/imagex"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sizeEncoder 输出长度 = 宽 * 高 * 质量% / 1000，便于精确控制阶梯命中点
func sizeEncoder(img image.Image, quality int) ([]byte, error) {
	b := img.Bounds()
	return make([]byte, b.Dx()*b.Dy()*quality/1000), nil
}

func newFakeOptimizer() *Optimizer {
	o := NewOptimizer(Options{})
	o.encode = sizeEncoder
	return o
}

func encodeFile(t *testing.T, img image.Image, name string, format imaging.Format, mime string) *imagex.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format, imaging.JPEGQuality(95)))
	return &imagex.File{Name: name, MimeType: mime, Data: buf.Bytes()}
}

func pngFile(t *testing.T, w, h int) *imagex.File {
	return encodeFile(t, imaging.New(w, h, color.NRGBA{R: 120, G: 80, B: 40, A: 255}), "shot.png", imaging.PNG, "image/png")
}

func gradient(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func noise(w, h int, seed int64) image.Image {
	r := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(r.Intn(256))
		img.Pix[i+1] = uint8(r.Intn(256))
		img.Pix[i+2] = uint8(r.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

func TestOptimizeRejectsUnconvertedInput(t *testing.T) {
	t.Parallel()

	o := newFakeOptimizer()
	for _, f := range []*imagex.File{
		{Name: "photo.HEIC", MimeType: "image/heic", Data: []byte("x")},
		{Name: "doc.pdf", MimeType: "application/pdf", Data: []byte("x")},
	} {
		_, err := o.Optimize(f, 1000)
		require.Error(t, err)
		assert.True(t, imagex.IsType(err, imagex.ErrorTypePreconditionViolation), f.Name)
		assert.False(t, imagex.IsFallbackEligible(err))
	}
}

func TestOptimizeStageA(t *testing.T) {
	t.Parallel()

	o := newFakeOptimizer()
	res, err := o.Optimize(pngFile(t, 1600, 1000), 80000)
	require.NoError(t, err)

	assert.Equal(t, StageA, res.Stage)
	assert.InDelta(t, 0.50, res.Quality, 1e-9)
	assert.Equal(t, 1600, res.Width)
	assert.Equal(t, 1000, res.Height)
	assert.Len(t, res.Attempts, 6)
	assert.True(t, res.WithinBudget)
	assert.Equal(t, "shot.jpg", res.File.Name)
	assert.Equal(t, "image/jpeg", res.File.MimeType)
	assert.EqualValues(t, 80000, res.File.Size())
}

func TestOptimizeStageB(t *testing.T) {
	t.Parallel()

	o := newFakeOptimizer()
	res, err := o.Optimize(pngFile(t, 1600, 1000), 31999)
	require.NoError(t, err)

	assert.Equal(t, StageB, res.Stage)
	assert.InDelta(t, 0.35, res.Quality, 1e-9)
	assert.Equal(t, 1200, res.Width)
	assert.Equal(t, 750, res.Height)
	require.Len(t, res.Attempts, len(stageALadder)+2)
	assert.Equal(t, Attempt{Quality: 0.20, DimensionCap: 2000, ResultByteSize: 32000}, res.Attempts[len(stageALadder)-1])
	assert.Equal(t, Attempt{Quality: 0.35, DimensionCap: 1200, ResultByteSize: 31500}, res.Attempts[len(res.Attempts)-1])
	assert.True(t, res.WithinBudget)
}

func TestOptimizeLastResort(t *testing.T) {
	t.Parallel()

	o := newFakeOptimizer()
	res, err := o.Optimize(pngFile(t, 1600, 1000), 100)
	require.NoError(t, err)

	assert.Equal(t, StageLastResort, res.Stage)
	assert.InDelta(t, 0.20, res.Quality, 1e-9)
	assert.Equal(t, 1200, res.Width)
	assert.Equal(t, 750, res.Height)
	assert.False(t, res.WithinBudget)
	assert.EqualValues(t, 18000, res.File.Size())
	assert.Len(t, res.Attempts, len(stageALadder)+len(stageBLadder))
}

func TestOptimizeInitialDownscale(t *testing.T) {
	t.Parallel()

	o := newFakeOptimizer()
	res, err := o.Optimize(pngFile(t, 3000, 1500), 1<<30)
	require.NoError(t, err)

	assert.Equal(t, StageA, res.Stage)
	assert.InDelta(t, 0.75, res.Quality, 1e-9)
	assert.Equal(t, 2000, res.Width)
	assert.Equal(t, 1000, res.Height)
	assert.Len(t, res.Attempts, 1)
}

func TestOptimizeSmallImageKeepsSizeInStageB(t *testing.T) {
	t.Parallel()

	o := newFakeOptimizer()
	res, err := o.Optimize(pngFile(t, 1000, 800), 10)
	require.NoError(t, err)

	assert.Equal(t, StageLastResort, res.Stage)
	assert.Equal(t, 1000, res.Width)
	assert.Equal(t, 800, res.Height)
}

func TestScaledSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		w, h, limit int
		ww, wh      int
	}{
		{2500, 1333, 2000, 2000, 1066},
		{1333, 2500, 2000, 1066, 2000},
		{5000, 3000, 2000, 2000, 1200},
		{2000, 1000, 2000, 2000, 1000},
		{2001, 1, 2000, 2000, 1},
		{800, 600, 1200, 800, 600},
	}
	for _, tc := range cases {
		w, h := scaledSize(tc.w, tc.h, tc.limit)
		assert.Equal(t, tc.ww, w, "%dx%d", tc.w, tc.h)
		assert.Equal(t, tc.wh, h, "%dx%d", tc.w, tc.h)
	}
}

func TestOptimizeDecodeFailed(t *testing.T) {
	t.Parallel()

	o := newFakeOptimizer()
	_, err := o.Optimize(&imagex.File{Name: "broken.png", MimeType: "image/png", Data: []byte("garbage")}, 1000)
	require.Error(t, err)
	assert.True(t, imagex.IsType(err, imagex.ErrorTypeDecodeFailed))
	assert.True(t, imagex.IsFallbackEligible(err))
}

func TestOptimizeEncodeFailed(t *testing.T) {
	t.Parallel()

	o := NewOptimizer(Options{})
	o.encode = func(image.Image, int) ([]byte, error) { return nil, errors.New("rasterizer gone") }
	_, err := o.Optimize(pngFile(t, 10, 10), 1000)
	require.Error(t, err)
	assert.True(t, imagex.IsType(err, imagex.ErrorTypeEncodeFailed))
}

func TestOptimizeLargeJPEGWithinBudget(t *testing.T) {
	t.Parallel()

	in := encodeFile(t, gradient(3000, 1800), "camera.JPEG", imaging.JPEG, "image/jpeg")
	o := NewOptimizer(Options{})
	res, err := o.Optimize(in, 500*1024)
	require.NoError(t, err)

	assert.Equal(t, "camera.jpg", res.File.Name)
	assert.Equal(t, "image/jpeg", res.File.MimeType)
	assert.LessOrEqual(t, res.File.Size(), int64(500*1024))
	assert.LessOrEqual(t, max(res.Width, res.Height), 2000)
	if res.Stage == StageB {
		assert.LessOrEqual(t, max(res.Width, res.Height), 1200)
	}

	// 对自身输出再次压缩不应再缩小
	again, err := o.Optimize(res.File, 500*1024)
	require.NoError(t, err)
	assert.Equal(t, StageSource, again.Stage)
	assert.Equal(t, res.File.Data, again.File.Data)
	assert.Equal(t, res.Width, again.Width)
	assert.Equal(t, res.Height, again.Height)
}

func TestOptimizeLastResortIsDeterministic(t *testing.T) {
	t.Parallel()

	in := encodeFile(t, noise(1300, 900, 7), "noise.png", imaging.PNG, "image/png")
	o := NewOptimizer(Options{})

	first, err := o.Optimize(in, 2000)
	require.NoError(t, err)
	second, err := o.Optimize(in, 2000)
	require.NoError(t, err)

	assert.Equal(t, StageLastResort, first.Stage)
	assert.Equal(t, 1200, first.Width)
	assert.Equal(t, first.Quality, second.Quality)
	assert.Equal(t, first.File.Data, second.File.Data)
}

func TestDecodeFlattensTransparency(t *testing.T) {
	t.Parallel()

	transparent := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	f := encodeFile(t, transparent, "clear.png", imaging.PNG, "image/png")

	img, err := Decode(f)
	require.NoError(t, err)
	r, g, b, _ := img.At(3, 3).RGBA()
	assert.Equal(t, uint32(0xFFFF), r)
	assert.Equal(t, uint32(0xFFFF), g)
	assert.Equal(t, uint32(0xFFFF), b)
}

func TestDecodeSVG(t *testing.T) {
	t.Parallel()

	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 50">
<rect x="0" y="0" width="50" height="50" fill="#000000"/>
</svg>`
	img, err := Decode(&imagex.File{Name: "logo.svg", MimeType: "image/svg+xml", Data: []byte(svg)})
	require.NoError(t, err)

	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
	r, _, _, _ := img.At(25, 25).RGBA()
	assert.Less(t, r, uint32(0x8000))
	r, _, _, _ = img.At(75, 25).RGBA()
	assert.Equal(t, uint32(0xFFFF), r)
}
