package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(500*1024), cfg.Capture.TargetBytes)
	assert.Equal(t, 2000, cfg.Capture.InitialMaxEdge)
	assert.Equal(t, 1200, cfg.Capture.AggressiveMaxEdge)
	assert.Equal(t, 20*time.Second, cfg.Capture.CapabilityWait)
	assert.Equal(t, int64(10*1024*1024), cfg.Submission.MaxAttachmentBytes)
	assert.Equal(t, 2*time.Hour, cfg.Session.IdleTTL)
	assert.Equal(t, "@every 5m", cfg.Session.SweepSpec)
	assert.Equal(t, "local", cfg.Storage.Type)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FORMCAPTURE_STORAGE_TYPE", "r2")
	t.Setenv("FORMCAPTURE_CAPTURE_TARGET_BYTES", "300000")

	cfg, err := Load(writeConfig(t, "storage:\n  type: local\n"))
	require.NoError(t, err)
	assert.Equal(t, "r2", cfg.Storage.Type)
	assert.Equal(t, int64(300000), cfg.Capture.TargetBytes)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"edges":   "capture:\n  initial_max_edge: 800\n  aggressive_max_edge: 1200\n",
		"quality": "capture:\n  convert_quality: 1.5\n",
		"target":  "capture:\n  target_bytes: 0\n",
		"raster":  "signature:\n  width: 0\n",
		"ceiling": "capture:\n  target_bytes: 512000\nsubmission:\n  max_attachment_bytes: 1000\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStorageAsMapMergesOptions(t *testing.T) {
	s := StorageConfig{
		Type:     "sftp",
		BasePath: "uploads",
		Options:  map[string]interface{}{"host": "files.example.com", "port": 2222},
	}
	m := s.AsMap()
	assert.Equal(t, "uploads", m["base_path"])
	assert.Equal(t, "files.example.com", m["host"])
	assert.Equal(t, 2222, m["port"])
}
