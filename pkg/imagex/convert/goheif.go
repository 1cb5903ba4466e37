package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/adrium/goheif"
	"github.com/disintegration/imaging"
	exif "github.com/dsoprea/go-exif/v3"
)

// GoHEIFDecoder 基于 goheif 的进程内解码
type GoHEIFDecoder struct{}

// GoHEIFSource 主加载来源
func GoHEIFSource(ctx context.Context) (Decoder, error) {
	return &GoHEIFDecoder{}, nil
}

func (d *GoHEIFDecoder) Name() string { return "goheif" }

func (d *GoHEIFDecoder) Convert(ctx context.Context, data []byte, toType string, quality float64) (Output, error) {
	format, err := encodeFormat(toType)
	if err != nil {
		return Output{}, err
	}

	img, err := goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return Output{}, fmt.Errorf("HEIC 解码失败: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	if raw, err := goheif.ExtractExif(bytes.NewReader(data)); err == nil {
		img = applyOrientation(img, orientation(raw))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(jpegQuality(quality))); err != nil {
		return Output{}, fmt.Errorf("编码失败: %w", err)
	}
	return Output{Blob: buf.Bytes()}, nil
}

func encodeFormat(toType string) (imaging.Format, error) {
	switch toType {
	case "image/jpeg", "":
		return imaging.JPEG, nil
	case "image/png":
		return imaging.PNG, nil
	}
	return 0, fmt.Errorf("不支持的目标类型: %s", toType)
}

func jpegQuality(q float64) int {
	v := int(q*100 + 0.5)
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

// orientation 读取 EXIF Orientation，读取失败返回 1
func orientation(raw []byte) int {
	tiff, err := exif.SearchAndExtractExif(raw)
	if err != nil {
		return 1
	}
	tags, _, err := exif.GetFlatExifData(tiff, nil)
	if err != nil {
		return 1
	}
	for _, tag := range tags {
		if tag.TagName != "Orientation" {
			continue
		}
		if v, ok := tag.Value.([]uint16); ok && len(v) > 0 {
			return int(v[0])
		}
	}
	return 1
}

func applyOrientation(img image.Image, o int) image.Image {
	switch o {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
