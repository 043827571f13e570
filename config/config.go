package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the YAML config path.
// Isolated child processes inherit it, so they see the same engine settings.
const EnvConfigPath = "DOCCONV_CONFIG"

var (
	configOnce sync.Once
	appConfig  *Config
	configErr  error
)

// Config is the whole application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Isolation IsolationConfig `yaml:"isolation"`
	Engines   EnginesConfig   `yaml:"engines"`
	Redis     RedisConfig     `yaml:"redis"`
	Cleanup   CleanupConfig   `yaml:"cleanup"`
	S3        S3Config        `yaml:"s3"`
	Minio     MinioConfig     `yaml:"minio"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB * 1024 * 1024
}

type StorageConfig struct {
	HoldingDir    string        `yaml:"holding_dir"`
	OutputDir     string        `yaml:"output_dir"`
	HoldingMaxAge time.Duration `yaml:"holding_max_age"`
	OutputMaxAge  time.Duration `yaml:"output_max_age"`
	Mirror        string        `yaml:"mirror"` // "", "s3" or "minio"
	MirrorPrefix  string        `yaml:"mirror_prefix"`
}

type IsolationConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int64         `yaml:"max_concurrent"`
	// WorkerPath overrides the binary re-executed for isolated jobs.
	// Empty means the running executable.
	WorkerPath string `yaml:"worker_path"`
}

type EnginesConfig struct {
	SofficePath     string  `yaml:"soffice_path"`
	WkhtmltopdfPath string  `yaml:"wkhtmltopdf_path"`
	PdftoppmPath    string  `yaml:"pdftoppm_path"`
	PdfinfoPath     string  `yaml:"pdfinfo_path"`
	JavaPath        string  `yaml:"java_path"`
	TabulaJar       string  `yaml:"tabula_jar"`
	Rasterizer      string  `yaml:"rasterizer"` // "poppler" or "fitz"
	ImageDPI        int     `yaml:"image_dpi"`
	SlideDPI        int     `yaml:"slide_dpi"`
	ImagePDFDPI     float64 `yaml:"image_pdf_dpi"`
	// ImageMaxPx bounds the longest side of images wrapped into PDF.
	// Zero leaves them at their decoded size.
	ImageMaxPx     int           `yaml:"image_max_px"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

type CleanupConfig struct {
	InProcess bool          `yaml:"in_process"`
	Interval  time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths"`
	Development bool     `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			MaxUploadMB:     50,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			HoldingDir:    "uploads",
			OutputDir:     "outputs",
			HoldingMaxAge: time.Hour,
			OutputMaxAge:  24 * time.Hour,
			MirrorPrefix:  "outputs/",
		},
		Isolation: IsolationConfig{
			Timeout:       120 * time.Second,
			MaxConcurrent: 2,
		},
		Engines: EnginesConfig{
			Rasterizer:     "poppler",
			ImageDPI:       300,
			SlideDPI:       200,
			ImagePDFDPI:    100,
			ImageMaxPx:     10000,
			CommandTimeout: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Cleanup: CleanupConfig{
			Interval: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout", "logs/app.log"},
		},
	}
}

// Load reads the YAML file at path (optional), then the .env file next to
// it or in the working directory, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	envPath := ".env"
	if path != "" {
		envPath = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load %s: %v", envPath, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get loads the configuration once, from $DOCCONV_CONFIG when set.
func Get() (*Config, error) {
	configOnce.Do(func() {
		appConfig, configErr = Load(os.Getenv(EnvConfigPath))
	})
	return appConfig, configErr
}

// SetPath records path as the configuration file for Get and for isolated
// children, which inherit the environment. Relative paths are made absolute
// first. An empty path leaves the environment untouched.
func SetPath(path string) error {
	if path == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path %s: %w", path, err)
	}
	return os.Setenv(EnvConfigPath, abs)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Storage.HoldingDir == "" || c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.holding_dir and storage.output_dir are required")
	}
	if c.Isolation.Timeout <= 0 {
		return fmt.Errorf("isolation.timeout must be positive")
	}
	if c.Isolation.MaxConcurrent <= 0 {
		return fmt.Errorf("isolation.max_concurrent must be positive")
	}
	if c.Engines.ImageMaxPx < 0 {
		return fmt.Errorf("engines.image_max_px must not be negative")
	}
	if c.Cleanup.Interval <= 0 {
		return fmt.Errorf("cleanup.interval must be positive")
	}
	switch c.Engines.Rasterizer {
	case "poppler", "fitz":
	default:
		return fmt.Errorf("engines.rasterizer must be poppler or fitz, got %q", c.Engines.Rasterizer)
	}
	switch c.Storage.Mirror {
	case "", "s3", "minio":
	default:
		return fmt.Errorf("storage.mirror must be empty, s3 or minio, got %q", c.Storage.Mirror)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.Addr, "DOCCONV_ADDR")
	setString(&c.Storage.HoldingDir, "DOCCONV_HOLDING_DIR")
	setString(&c.Storage.OutputDir, "DOCCONV_OUTPUT_DIR")
	setString(&c.Storage.Mirror, "DOCCONV_MIRROR")
	setString(&c.Log.Level, "DOCCONV_LOG_LEVEL")

	setString(&c.Engines.SofficePath, "SOFFICE_PATH")
	setString(&c.Engines.WkhtmltopdfPath, "WKHTMLTOPDF_PATH")
	setString(&c.Engines.PdftoppmPath, "PDFTOPPM_PATH")
	setString(&c.Engines.JavaPath, "JAVA_PATH")
	setString(&c.Engines.TabulaJar, "TABULA_JAR")
	setString(&c.Engines.PdfinfoPath, "PDFINFO_PATH")

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		c.Redis.DB = db
	}
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	c.S3.applyEnv()
	c.Minio.applyEnv()
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
