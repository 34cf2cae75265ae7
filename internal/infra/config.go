package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"listingprep/internal/domain"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	StaticDir     string
	DefaultLocale string
	ThemeBG       string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	DescriptorURL string

	Quality           float64
	MaxWidth          int
	OutputFormat      string
	CropToFixedAspect bool
	AutoDescribe      bool
	DescribeRetries   int

	ExportPrefix   string
	ExportDir      string
	ExportS3Bucket string
	ExportS3Prefix string
	SaveDelay      time.Duration
	ShareCommand   string
	ShareMultiple  bool

	AMQPURL   string
	AMQPQueue string

	AllowedOrigins   []string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	MaxUploadBytes   int64
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "3000"),
		StaticDir:         getEnv("STATIC_DIR", "dist"),
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "ru"),
		ThemeBG:           strings.TrimSpace(os.Getenv("THEME_BG")),
		GeminiAPIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		DescriptorURL:     strings.TrimSpace(os.Getenv("DESCRIPTOR_URL")),
		Quality:           getEnvFloat("QUALITY", 0.8),
		MaxWidth:          getEnvInt("MAX_WIDTH", 1600),
		OutputFormat:      getEnv("OUTPUT_FORMAT", "webp"),
		CropToFixedAspect: getEnvBool("CROP_TO_FIXED_ASPECT", true),
		AutoDescribe:      getEnvBool("AUTO_DESCRIBE", false),
		DescribeRetries:   getEnvInt("DESCRIBE_RETRIES", 0),
		ExportPrefix:      getEnv("EXPORT_PREFIX", "avito_"),
		ExportDir:         getEnv("EXPORT_DIR", "./export"),
		ExportS3Bucket:    strings.TrimSpace(os.Getenv("EXPORT_S3_BUCKET")),
		ExportS3Prefix:    strings.TrimSpace(os.Getenv("EXPORT_S3_PREFIX")),
		SaveDelay:         time.Millisecond * time.Duration(getEnvInt("SAVE_DELAY_MS", 300)),
		ShareCommand:      strings.TrimSpace(os.Getenv("SHARE_COMMAND")),
		ShareMultiple:     getEnvBool("SHARE_MULTIPLE", false),
		AMQPURL:           strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPQueue:         getEnv("AMQP_QUEUE", "listingprep.progress"),
		AllowedOrigins:    splitList(os.Getenv("ALLOWED_ORIGINS")),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,
	}

	if cfg.MaxWidth <= 0 {
		return nil, fmt.Errorf("MAX_WIDTH must be positive")
	}
	if cfg.Quality <= 0 || cfg.Quality > 1 {
		return nil, fmt.Errorf("QUALITY must be within (0,1]")
	}
	if cfg.DescribeRetries < 0 {
		cfg.DescribeRetries = 0
	}

	if _, err := domain.ParseEncoding(cfg.OutputFormat); err != nil {
		return nil, fmt.Errorf("OUTPUT_FORMAT: %w", err)
	}

	return cfg, nil
}

// ProcessingOptions returns the configured defaults for a batch run.
func (c *Config) ProcessingOptions() domain.ProcessingOptions {
	enc, err := domain.ParseEncoding(c.OutputFormat)
	if err != nil {
		enc = domain.EncodingWebP
	}
	return domain.ProcessingOptions{
		Quality:           c.Quality,
		MaxWidth:          c.MaxWidth,
		Encoding:          enc,
		CropToFixedAspect: c.CropToFixedAspect,
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
