package adapter

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"time"

	"formcapture/pkg/imagex/formats"
	"formcapture/pkg/storage/config"

	"golang.org/x/crypto/ssh"
)

// SFTPAdapter 基于 SSH 的简化实现（通过远程 shell 命令代替 sftp 协议）
type SFTPAdapter struct {
	host        string
	port        int
	username    string
	password    string
	privateKey  string // PEM
	passphrase  string
	rootPath    string
	timeout     time.Duration
	initialized bool
}

func NewSFTPAdapter() StorageAdapter {
	return &SFTPAdapter{port: 22, timeout: 30 * time.Second}
}
func (a *SFTPAdapter) GetType() string { return "sftp" }

func (a *SFTPAdapter) Initialize(configData map[string]interface{}) error {
	cfg := config.NewMapConfig(configData)
	a.host = cfg.GetStringWithDefault("host", "")
	a.port = cfg.GetIntWithDefault("port", 22)
	a.username = cfg.GetStringWithDefault("username", "")
	a.password = cfg.GetStringWithDefault("password", "")
	a.privateKey = cfg.GetStringWithDefault("private_key", "")
	a.passphrase = cfg.GetStringWithDefault("passphrase", "")
	a.rootPath = strings.Trim(cfg.GetStringWithDefault("root_path", ""), "/")
	a.timeout = cfg.GetDurationWithDefault("timeout", 30*time.Second)
	if a.host == "" || a.username == "" {
		return NewStorageError(ErrorTypeInternal, "host/username required", nil)
	}
	a.initialized = true
	return nil
}

func (a *SFTPAdapter) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if !a.initialized {
		return nil, NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	if req == nil || strings.TrimSpace(req.FileName) == "" {
		return nil, NewStorageError(ErrorTypeInvalidFormat, "file name is required", nil)
	}

	key := objectKey(req.FolderPath, req.FileName)
	remotePath := a.fullPath(key)
	if err := a.sshRun(ctx, "mkdir -p -- "+shellQuote(path.Dir(remotePath)), nil); err != nil {
		return nil, NewStorageError(ErrorTypeNetwork, "mkdir failed", err)
	}
	if err := a.sshRun(ctx, "cat > "+shellQuote(remotePath), req.Data); err != nil {
		return nil, NewStorageError(ErrorTypeNetwork, "write failed", err)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = formats.GetContentType(path.Ext(req.FileName))
	}
	return &UploadResult{
		Path:        key,
		Size:        int64(len(req.Data)),
		Hash:        fmt.Sprintf("%x", md5.Sum(req.Data)),
		ContentType: contentType,
	}, nil
}

func (a *SFTPAdapter) Delete(ctx context.Context, key string) error {
	return a.sshRun(ctx, "rm -f -- "+shellQuote(a.fullPath(key)), nil)
}

func (a *SFTPAdapter) Exists(ctx context.Context, key string) (bool, error) {
	err := a.sshRun(ctx, "test -f "+shellQuote(a.fullPath(key)), nil)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (a *SFTPAdapter) ReadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	cli, err := a.sshClient(ctx)
	if err != nil {
		return nil, NewStorageError(ErrorTypeNetwork, "ssh dial failed", err)
	}
	sess, err := cli.NewSession()
	if err != nil {
		cli.Close()
		return nil, NewStorageError(ErrorTypeNetwork, "ssh session failed", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		cli.Close()
		return nil, NewStorageError(ErrorTypeInternal, "ssh stdout failed", err)
	}
	if err := sess.Start("cat -- "+shellQuote(a.fullPath(key))); err != nil {
		sess.Close()
		cli.Close()
		return nil, NewStorageError(ErrorTypeNetwork, "remote read failed", err)
	}
	return &sshReadCloser{Reader: stdout, sess: sess, cli: cli}, nil
}

func (a *SFTPAdapter) HealthCheck(ctx context.Context) error {
	return a.sshRun(ctx, "echo ok", nil)
}

func (a *SFTPAdapter) GetCapabilities() Capabilities {
	return Capabilities{SupportsSignedURL: false}
}

// helpers
func (a *SFTPAdapter) fullPath(key string) string {
	k := strings.TrimLeft(key, "/")
	if a.rootPath == "" {
		return "/" + k
	}
	return "/" + a.rootPath + "/" + k
}

// shellQuote 单引号包裹，内部的单引号写作 '\''
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (a *SFTPAdapter) sshClient(ctx context.Context) (*ssh.Client, error) {
	var auths []ssh.AuthMethod
	if strings.TrimSpace(a.privateKey) != "" {
		signer, err := a.parsePrivateKey([]byte(a.privateKey), a.passphrase)
		if err != nil {
			return nil, err
		}
		auths = append(auths, ssh.PublicKeys(signer))
	} else {
		auths = append(auths, ssh.Password(a.password))
	}
	cfg := &ssh.ClientConfig{
		User:            a.username,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         a.timeout,
	}
	addr := net.JoinHostPort(a.host, fmt.Sprintf("%d", a.port))

	d := net.Dialer{Timeout: a.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func (a *SFTPAdapter) sshRun(ctx context.Context, cmd string, stdin []byte) error {
	if !a.initialized {
		return NewStorageError(ErrorTypeInternal, "adapter not initialized", nil)
	}
	cli, err := a.sshClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()
	sess, err := cli.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()
	if len(stdin) > 0 {
		sess.Stdin = bytes.NewReader(stdin)
	}
	return sess.Run(cmd)
}

type sshReadCloser struct {
	io.Reader
	sess *ssh.Session
	cli  *ssh.Client
}

func (s *sshReadCloser) Close() error { _ = s.sess.Close(); return s.cli.Close() }

func (a *SFTPAdapter) parsePrivateKey(pemBytes []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
		if err == nil {
			return signer, nil
		}
		// 回退到无口令解析，返回原始错误提示
		if signer2, err2 := ssh.ParsePrivateKey(pemBytes); err2 == nil {
			return signer2, nil
		}
		return nil, fmt.Errorf("failed to parse private key with passphrase: %v", err)
	}
	return ssh.ParsePrivateKey(pemBytes)
}
