package convert

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"formcapture/pkg/imagex"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecoder struct {
	out   Output
	err   error
	block bool
}

func (d *fakeDecoder) Name() string { return "fake" }

func (d *fakeDecoder) Convert(ctx context.Context, data []byte, toType string, quality float64) (Output, error) {
	if d.block {
		<-ctx.Done()
		return Output{}, ctx.Err()
	}
	return d.out, d.err
}

func heicFile() *imagex.File {
	return &imagex.File{
		Name:     "photo.HEIC",
		MimeType: "image/heic",
		Data:     []byte("heic-bytes"),
		ModTime:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 200, G: 80, B: 20, A: 255}), imaging.JPEG))
	return buf.Bytes()
}

func TestConvertSuccess(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := jpegBytes(t, 32, 24)
	c := NewConverter(Ready(&fakeDecoder{out: Output{Blob: payload}}), Options{})
	c.now = func() time.Time { return fixed }

	in := heicFile()
	out, err := c.Convert(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "photo.jpg", out.Name)
	assert.Equal(t, "image/jpeg", out.MimeType)
	assert.Equal(t, payload, out.Data)
	assert.Equal(t, fixed, out.ModTime)
	assert.Equal(t, 32, out.Width)
	assert.Equal(t, 24, out.Height)

	assert.Equal(t, "photo.HEIC", in.Name)
	assert.Equal(t, "image/heic", in.MimeType)
	assert.Equal(t, []byte("heic-bytes"), in.Data)
}

func TestConvertUsesFirstOfList(t *testing.T) {
	t.Parallel()

	first := jpegBytes(t, 8, 8)
	c := NewConverter(Ready(&fakeDecoder{out: Output{Blobs: [][]byte{first, []byte("second")}}}), Options{})
	out, err := c.Convert(context.Background(), heicFile())
	require.NoError(t, err)
	assert.Equal(t, first, out.Data)
}

func TestConvertRejectsNonImagePayload(t *testing.T) {
	t.Parallel()

	c := NewConverter(Ready(&fakeDecoder{out: Output{Blob: []byte("<html>503 Service Unavailable</html>")}}), Options{})
	out, err := c.Convert(context.Background(), heicFile())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, imagex.IsType(err, imagex.ErrorTypeConversionFailed))
	assert.True(t, imagex.IsFallbackEligible(err))
}

func TestConvertCapabilityNeverReady(t *testing.T) {
	t.Parallel()

	c := NewConverter(NewCapability(), Options{CapabilityWait: 30 * time.Millisecond})
	_, err := c.Convert(context.Background(), heicFile())
	require.Error(t, err)
	assert.True(t, imagex.IsType(err, imagex.ErrorTypeCapabilityUnavailable))
	assert.True(t, imagex.IsFallbackEligible(err))
}

func TestConvertCapabilityFailedToLoad(t *testing.T) {
	t.Parallel()

	capability := NewCapability()
	Load(context.Background(), capability,
		func(ctx context.Context) (Decoder, error) { return nil, errors.New("primary down") },
		func(ctx context.Context) (Decoder, error) { return nil, errors.New("fallback down") },
	)

	c := NewConverter(capability, Options{CapabilityWait: time.Second})
	start := time.Now()
	_, err := c.Convert(context.Background(), heicFile())
	assert.True(t, imagex.IsType(err, imagex.ErrorTypeCapabilityUnavailable))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestConvertEmptyPayload(t *testing.T) {
	t.Parallel()

	c := NewConverter(Ready(&fakeDecoder{out: Output{Blobs: [][]byte{}}}), Options{})
	_, err := c.Convert(context.Background(), heicFile())
	assert.True(t, imagex.IsType(err, imagex.ErrorTypeConversionFailed))
}

func TestConvertDecoderError(t *testing.T) {
	t.Parallel()

	c := NewConverter(Ready(&fakeDecoder{err: errors.New("bad bitstream")}), Options{})
	_, err := c.Convert(context.Background(), heicFile())
	assert.True(t, imagex.IsType(err, imagex.ErrorTypeConversionFailed))
	assert.Contains(t, err.Error(), "bad bitstream")
}

func TestConvertTimeout(t *testing.T) {
	t.Parallel()

	c := NewConverter(Ready(&fakeDecoder{block: true}), Options{Timeout: 40 * time.Millisecond})
	_, err := c.Convert(context.Background(), heicFile())
	require.Error(t, err)
	assert.True(t, imagex.IsType(err, imagex.ErrorTypeConversionFailed))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoadPrefersFirstWorkingSource(t *testing.T) {
	t.Parallel()

	fallback := &fakeDecoder{}
	capability := NewCapability()
	Load(context.Background(), capability,
		func(ctx context.Context) (Decoder, error) { return nil, errors.New("primary down") },
		func(ctx context.Context) (Decoder, error) { return fallback, nil },
	)

	d, err := capability.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Same(t, fallback, d)
}

func TestCapabilityResolvesOnce(t *testing.T) {
	t.Parallel()

	first := &fakeDecoder{}
	capability := NewCapability()
	capability.Resolve(first, nil)
	capability.Resolve(nil, errors.New("late failure"))

	d, err := capability.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Same(t, first, d)
}

func TestOutputFirst(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Output{}.First())
	assert.Equal(t, []byte("a"), Output{Blob: []byte("a"), Blobs: [][]byte{[]byte("b")}}.First())
}

func TestApplyOrientationSwapsAxes(t *testing.T) {
	t.Parallel()

	img := imaging.New(40, 10, color.White)
	assert.Equal(t, 40, applyOrientation(img, 1).Bounds().Dx())
	assert.Equal(t, 10, applyOrientation(img, 6).Bounds().Dx())
	assert.Equal(t, 10, applyOrientation(img, 8).Bounds().Dx())
	assert.Equal(t, 40, applyOrientation(img, 3).Bounds().Dx())
}

func TestOrientationDefaultsOnGarbage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, orientation([]byte("not exif")))
	assert.Equal(t, 1, orientation(nil))
}
