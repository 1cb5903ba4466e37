package compress

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"formcapture/pkg/imagex"

	"github.com/disintegration/imaging"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/webp"
)

// svg 栅格化的最大边长
const maxSVGEdge = 4096

// Decode 将可直接解码的图片栅格化，透明区域铺白底
func Decode(f *imagex.File) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	if isSVG(f) {
		img, err = decodeSVG(f.Data)
	} else {
		img, err = imaging.Decode(bytes.NewReader(f.Data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸为空")
	}
	return flatten(img), nil
}

func isSVG(f *imagex.File) bool {
	return strings.EqualFold(f.MimeType, "image/svg+xml") || strings.EqualFold(filepath.Ext(f.Name), ".svg")
}

func decodeSVG(data []byte) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("解析 SVG 失败: %w", err)
	}
	w, h := int(math.Ceil(icon.ViewBox.W)), int(math.Ceil(icon.ViewBox.H))
	if w <= 0 || h <= 0 {
		return nil, errors.New("SVG 缺少 viewBox 尺寸")
	}
	if longer := max(w, h); longer > maxSVGEdge {
		w = max(1, int(math.Round(float64(w)*maxSVGEdge/float64(longer))))
		h = max(1, int(math.Round(float64(h)*maxSVGEdge/float64(longer))))
	}

	dst := imaging.New(w, h, color.White)
	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.SetTarget(0, 0, float64(w), float64(h))
	icon.Draw(dasher, 1.0)
	return dst, nil
}

type opaquer interface {
	Opaque() bool
}

// flatten 将带透明通道的图片合成到白色背景上
func flatten(img image.Image) image.Image {
	if o, ok := img.(opaquer); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// fitWithin 按比例缩放使长边不超过 limit；长边严格大于 limit 时才缩放
func fitWithin(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := scaledSize(b.Dx(), b.Dy(), limit)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// scaledSize 计算缩放后的尺寸，短边 = round(短边 * limit / 长边)
func scaledSize(w, h, limit int) (int, int) {
	longer := max(w, h)
	if limit <= 0 || longer <= limit {
		return w, h
	}
	ratio := float64(limit) / float64(longer)
	if w >= h {
		return limit, max(1, int(math.Round(float64(h)*ratio)))
	}
	return max(1, int(math.Round(float64(w)*ratio))), limit
}
