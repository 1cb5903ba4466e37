package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"formcapture/pkg/storage/adapter"

	"github.com/google/uuid"
)

// ProbeStep 连通性检查中的一步
type ProbeStep struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail,omitempty"`
	Err      error         `json:"-"`
}

// OK 是否成功
func (p ProbeStep) OK() bool {
	return p.Err == nil
}

// Probe 对当前适配器做一次完整读写检查：健康检查、写入、存在、读取、签名 URL、删除
// 第一个失败的步骤之后不再继续（删除步骤除外）
func (s *Storage) Probe(ctx context.Context) (steps []ProbeStep) {
	run := func(name string, fn func() (string, error)) bool {
		start := time.Now()
		detail, err := fn()
		steps = append(steps, ProbeStep{Name: name, Duration: time.Since(start), Detail: detail, Err: err})
		return err == nil
	}

	folder := path.Join(s.prefix, ".probe")
	name := uuid.NewString() + ".txt"
	payload := []byte("formcapture probe " + s.now().UTC().Format(time.RFC3339))
	var objectPath string

	if !run("health", func() (string, error) { return s.adapter.GetType(), s.adapter.HealthCheck(ctx) }) {
		return steps
	}
	if !run("upload", func() (string, error) {
		res, err := s.adapter.Upload(ctx, &adapter.UploadRequest{
			Data:        payload,
			FolderPath:  folder,
			FileName:    name,
			ContentType: "text/plain",
		})
		if err != nil {
			return "", err
		}
		objectPath = res.Path
		return res.Path, nil
	}) {
		return steps
	}
	defer run("delete", func() (string, error) { return objectPath, s.adapter.Delete(context.Background(), objectPath) })

	if !run("exists", func() (string, error) {
		ok, err := s.adapter.Exists(ctx, objectPath)
		if err == nil && !ok {
			err = adapter.NewStorageError(adapter.ErrorTypeNotFound, "uploaded object not visible", nil)
		}
		return fmt.Sprint(ok), err
	}) {
		return steps
	}
	if !run("read", func() (string, error) {
		rc, err := s.adapter.ReadFile(ctx, objectPath)
		if err != nil {
			return "", err
		}
		defer rc.Close()
		got, err := io.ReadAll(rc)
		if err != nil {
			return "", err
		}
		if !bytes.Equal(got, payload) {
			return "", adapter.NewStorageError(adapter.ErrorTypeInternal, "read back content mismatch", nil)
		}
		return fmt.Sprintf("%d bytes", len(got)), nil
	}) {
		return steps
	}
	if signer, ok := s.adapter.(adapter.URLSigner); ok {
		run("signed_url", func() (string, error) { return signer.SignedURL(ctx, objectPath, time.Minute) })
	}
	return steps
}
