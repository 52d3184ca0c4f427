package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig
	DB       DBConfig
	Auth     AuthConfig
	Log      LogConfig
	Pipeline PipelineConfig
	Worker   WorkerConfig
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PipelineConfig is everything the extraction pipeline consumes. It is passed
// by value into each component.
type PipelineConfig struct {
	SampleRate         float64       `mapstructure:"sample_rate"`
	VehicleConfidence  float64       `mapstructure:"vehicle_confidence"`
	PlateConfidence    float64       `mapstructure:"plate_confidence"`
	OCRLanguages       []string      `mapstructure:"ocr_languages"`
	DetectorModel      string        `mapstructure:"detector_model"`
	DetectorURL        string        `mapstructure:"detector_url"`
	OCRURL             string        `mapstructure:"ocr_url"`
	FFmpegPath         string        `mapstructure:"ffmpeg_path"`
	FFprobePath        string        `mapstructure:"ffprobe_path"`
	DecodeTimeout      time.Duration `mapstructure:"decode_timeout"`
	BackendTimeout     time.Duration `mapstructure:"backend_timeout"`
	ThumbnailTimestamp time.Duration `mapstructure:"thumbnail_timestamp"`
	ThumbnailWidth     int           `mapstructure:"thumbnail_width"`
}

type WorkerConfig struct {
	Count        int           `mapstructure:"count"`
	QueueSize    int           `mapstructure:"queue_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollBatch    int           `mapstructure:"poll_batch"`
}

// DefaultPipeline returns the pipeline settings used when nothing is configured.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		SampleRate:         1,
		VehicleConfidence:  0.5,
		PlateConfidence:    0.5,
		OCRLanguages:       []string{"en"},
		DetectorModel:      "yolov8n.pt",
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		DecodeTimeout:      10 * time.Minute,
		BackendTimeout:     30 * time.Second,
		ThumbnailTimestamp: 0,
		ThumbnailWidth:     320,
	}
}

func setDefaults(v *viper.Viper) {
	p := DefaultPipeline()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("pipeline.sample_rate", p.SampleRate)
	v.SetDefault("pipeline.vehicle_confidence", p.VehicleConfidence)
	v.SetDefault("pipeline.plate_confidence", p.PlateConfidence)
	v.SetDefault("pipeline.ocr_languages", p.OCRLanguages)
	v.SetDefault("pipeline.detector_model", p.DetectorModel)
	v.SetDefault("pipeline.detector_url", "")
	v.SetDefault("pipeline.ocr_url", "")
	v.SetDefault("pipeline.ffmpeg_path", p.FFmpegPath)
	v.SetDefault("pipeline.ffprobe_path", p.FFprobePath)
	v.SetDefault("pipeline.decode_timeout", p.DecodeTimeout)
	v.SetDefault("pipeline.backend_timeout", p.BackendTimeout)
	v.SetDefault("pipeline.thumbnail_timestamp", p.ThumbnailTimestamp)
	v.SetDefault("pipeline.thumbnail_width", p.ThumbnailWidth)

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.queue_size", 64)
	v.SetDefault("worker.poll_interval", 15*time.Second)
	v.SetDefault("worker.poll_batch", 32)

	// AutomaticEnv only resolves keys viper already knows about.
	v.SetDefault("db.dsn", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "")
}

// Load reads configuration from defaults, an optional config file and
// DASHCAM_* environment variables, in increasing priority.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DASHCAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p PipelineConfig) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("pipeline.sample_rate must be positive, got %v", p.SampleRate)
	}
	if p.VehicleConfidence < 0 || p.VehicleConfidence > 1 {
		return fmt.Errorf("pipeline.vehicle_confidence must be within [0,1], got %v", p.VehicleConfidence)
	}
	if p.PlateConfidence < 0 || p.PlateConfidence > 1 {
		return fmt.Errorf("pipeline.plate_confidence must be within [0,1], got %v", p.PlateConfidence)
	}
	return nil
}

// Server settings are only required when running the HTTP service.
func (c *Config) ValidateServer() error {
	if c.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	return nil
}
