package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// CommandDecoder 调用外部 heif-convert 的备用解码
type CommandDecoder struct {
	Path string
}

// CommandSource 备用加载来源；path 为空时在 PATH 中查找 heif-convert
func CommandSource(path string) Source {
	return func(ctx context.Context) (Decoder, error) {
		if path == "" {
			path = "heif-convert"
		}
		resolved, err := exec.LookPath(path)
		if err != nil {
			return nil, fmt.Errorf("未找到 %s: %w", path, err)
		}
		return &CommandDecoder{Path: resolved}, nil
	}
}

func (d *CommandDecoder) Name() string { return "heif-convert" }

func (d *CommandDecoder) Convert(ctx context.Context, data []byte, toType string, quality float64) (Output, error) {
	ext := ".jpg"
	if toType == "image/png" {
		ext = ".png"
	} else if toType != "image/jpeg" && toType != "" {
		return Output{}, fmt.Errorf("不支持的目标类型: %s", toType)
	}

	dir, err := os.MkdirTemp("", "heic-*")
	if err != nil {
		return Output{}, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.heic")
	out := filepath.Join(dir, "output"+ext)
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return Output{}, err
	}

	cmd := exec.CommandContext(ctx, d.Path, "-q", strconv.Itoa(jpegQuality(quality)), in, out)
	if msg, err := cmd.CombinedOutput(); err != nil {
		return Output{}, fmt.Errorf("heif-convert 执行失败: %w: %s", err, msg)
	}

	// 多图像容器会输出 output-1.jpg、output-2.jpg ...
	if blob, err := os.ReadFile(out); err == nil {
		return Output{Blob: blob}, nil
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "output-*"+ext))
	var blobs [][]byte
	for _, m := range matches {
		if blob, err := os.ReadFile(m); err == nil {
			blobs = append(blobs, blob)
		}
	}
	return Output{Blobs: blobs}, nil
}
