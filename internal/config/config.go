package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"docsum/internal/pipeline"
	"docsum/internal/summarizer"
)

const (
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"

	EngineTesseract = "tesseract"
	EngineRemote    = "remote"
)

type Config struct {
	Addr     string     `env:"ADDR"      envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	DBDSN    string     `env:"DB_DSN"    envDefault:"db.sqlite"`

	Summarizer  Summarizer  `envPrefix:"SUMMARIZER_"`
	HuggingFace HuggingFace `envPrefix:"HF_"`
	OpenAI      OpenAI      `envPrefix:"OPENAI_"`
	Batch       Batch       `envPrefix:"BATCH_"`
	OCR         OCR         `envPrefix:"OCR_"`
}

type Summarizer struct {
	Provider       string        `env:"PROVIDER"         envDefault:"huggingface"`
	Timeout        time.Duration `env:"TIMEOUT"          envDefault:"45s"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS"     envDefault:"3"`
	BackoffBase    float64       `env:"BACKOFF_BASE"     envDefault:"2"`
	MaxBackoff     time.Duration `env:"MAX_BACKOFF"      envDefault:"30s"`
	MinInterval    time.Duration `env:"MIN_INTERVAL"     envDefault:"0s"`
	MaxChunkChars  int           `env:"MAX_CHUNK_CHARS"  envDefault:"1000"`
	MinTextLength  int           `env:"MIN_TEXT_LENGTH"  envDefault:"200"`
	ChunkMinLength int           `env:"CHUNK_MIN_LENGTH" envDefault:"50"`
	ChunkMaxLength int           `env:"CHUNK_MAX_LENGTH" envDefault:"150"`
	FinalMinLength int           `env:"FINAL_MIN_LENGTH" envDefault:"150"`
	FinalMaxLength int           `env:"FINAL_MAX_LENGTH" envDefault:"350"`
	Recursive      bool          `env:"RECURSIVE"        envDefault:"false"`
	MaxDepth       int           `env:"MAX_DEPTH"        envDefault:"3"`
	CacheEntries   int           `env:"CACHE_ENTRIES"    envDefault:"1024"`
	CacheTTL       time.Duration `env:"CACHE_TTL"        envDefault:"1h"`
}

type HuggingFace struct {
	APIURL string `env:"API_URL" envDefault:"https://api-inference.huggingface.co/models/facebook/bart-large-cnn"`
	APIKey string `env:"API_KEY"`
}

type OpenAI struct {
	APIKey  string `env:"API_KEY"`
	Model   string `env:"MODEL"    envDefault:"gpt-5-mini"`
	BaseURL string `env:"BASE_URL"`
}

type Batch struct {
	Enabled     bool          `env:"ENABLED"      envDefault:"true"`
	Spec        string        `env:"SPEC"         envDefault:"*/5 * * * *"`
	Limit       int           `env:"LIMIT"        envDefault:"50"`
	Timeout     time.Duration `env:"TIMEOUT"      envDefault:"30m"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
}

type OCR struct {
	Engine         string   `env:"ENGINE"           envDefault:"tesseract"`
	ServiceURL     string   `env:"SERVICE_URL"      envDefault:"http://localhost:8000/ocr"`
	Languages      []string `env:"LANGUAGES"        envDefault:"eng"`
	MaxUploadBytes int64    `env:"MAX_UPLOAD_BYTES" envDefault:"52428800"`
}

// Load reads an optional .env file, then the environment, and validates the
// result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg.Summarizer.Provider = strings.ToLower(strings.TrimSpace(cfg.Summarizer.Provider))
	cfg.OCR.Engine = strings.ToLower(strings.TrimSpace(cfg.OCR.Engine))

	if err = cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Summarizer.Provider {
	case ProviderHuggingFace:
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAI.APIKey) == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown summarizer provider %q", c.Summarizer.Provider))
	}

	switch c.OCR.Engine {
	case EngineTesseract, EngineRemote:
	default:
		errs = append(errs, fmt.Errorf("unknown OCR engine %q", c.OCR.Engine))
	}

	s := c.Summarizer
	if s.MaxAttempts <= 0 {
		errs = append(errs, errors.New("SUMMARIZER_MAX_ATTEMPTS must be positive"))
	}
	if s.MaxChunkChars <= 0 {
		errs = append(errs, errors.New("SUMMARIZER_MAX_CHUNK_CHARS must be positive"))
	}
	if s.Timeout <= 0 {
		errs = append(errs, errors.New("SUMMARIZER_TIMEOUT must be positive"))
	}
	if s.MinInterval < 0 {
		errs = append(errs, errors.New("SUMMARIZER_MIN_INTERVAL must not be negative"))
	}
	if s.BackoffBase <= 0 {
		errs = append(errs, errors.New("SUMMARIZER_BACKOFF_BASE must be positive"))
	}
	if s.ChunkMinLength > s.ChunkMaxLength {
		errs = append(errs, errors.New("SUMMARIZER_CHUNK_MIN_LENGTH exceeds SUMMARIZER_CHUNK_MAX_LENGTH"))
	}
	if s.FinalMinLength > s.FinalMaxLength {
		errs = append(errs, errors.New("SUMMARIZER_FINAL_MIN_LENGTH exceeds SUMMARIZER_FINAL_MAX_LENGTH"))
	}
	if s.Recursive && s.MaxDepth <= 0 {
		errs = append(errs, errors.New("SUMMARIZER_MAX_DEPTH must be positive in recursive mode"))
	}

	if c.Batch.MaxAttempts <= 0 {
		errs = append(errs, errors.New("BATCH_MAX_ATTEMPTS must be positive"))
	}

	if c.OCR.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("OCR_MAX_UPLOAD_BYTES must be positive"))
	}

	return errors.Join(errs...)
}

func (c Config) RetryConfig() summarizer.RetryConfig {
	return summarizer.RetryConfig{
		Timeout:     c.Summarizer.Timeout,
		MaxAttempts: c.Summarizer.MaxAttempts,
		BackoffBase: c.Summarizer.BackoffBase,
		MaxBackoff:  c.Summarizer.MaxBackoff,
	}
}

func (c Config) PipelineConfig() pipeline.Config {
	s := c.Summarizer

	return pipeline.Config{
		MinTextLength: s.MinTextLength,
		MaxChunkChars: s.MaxChunkChars,
		ChunkParams:   summarizer.Params{MinLength: s.ChunkMinLength, MaxLength: s.ChunkMaxLength},
		FinalParams:   summarizer.Params{MinLength: s.FinalMinLength, MaxLength: s.FinalMaxLength},
		Recursive:     s.Recursive,
		MaxDepth:      s.MaxDepth,
	}
}
