package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, DefaultPipeline().SampleRate, cfg.Pipeline.SampleRate)
	assert.Equal(t, 0.5, cfg.Pipeline.VehicleConfidence)
	assert.Equal(t, 0.5, cfg.Pipeline.PlateConfidence)
	assert.Equal(t, []string{"en"}, cfg.Pipeline.OCRLanguages)
	assert.Equal(t, "yolov8n.pt", cfg.Pipeline.DetectorModel)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.DecodeTimeout)
	assert.Equal(t, 2, cfg.Worker.Count)
	assert.Equal(t, 15*time.Second, cfg.Worker.PollInterval)
	assert.Error(t, cfg.ValidateServer())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DASHCAM_PIPELINE_SAMPLE_RATE", "2.5")
	t.Setenv("DASHCAM_PIPELINE_DETECTOR_URL", "http://detector:9000")
	t.Setenv("DASHCAM_DB_DSN", "postgres://localhost/dashcam")
	t.Setenv("DASHCAM_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2.5, cfg.Pipeline.SampleRate)
	assert.Equal(t, "http://detector:9000", cfg.Pipeline.DetectorURL)
	assert.NoError(t, cfg.ValidateServer())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashcam.yaml")
	content := `
pipeline:
  sample_rate: 3
  vehicle_confidence: 0.7
  ocr_languages: [en, de]
  decode_timeout: 90s
worker:
  count: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3.0, cfg.Pipeline.SampleRate)
	assert.Equal(t, 0.7, cfg.Pipeline.VehicleConfidence)
	assert.Equal(t, []string{"en", "de"}, cfg.Pipeline.OCRLanguages)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.DecodeTimeout)
	assert.Equal(t, 4, cfg.Worker.Count)
	assert.Equal(t, 0.5, cfg.Pipeline.PlateConfidence)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPipelineValidate(t *testing.T) {
	p := DefaultPipeline()
	assert.NoError(t, p.Validate())

	p.SampleRate = 0
	assert.Error(t, p.Validate())

	p = DefaultPipeline()
	p.VehicleConfidence = 1.5
	assert.Error(t, p.Validate())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
