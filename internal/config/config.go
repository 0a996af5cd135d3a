package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

const (
	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"

	MediaBackendCloudinary = "cloudinary"
	MediaBackendLocal      = "local"

	defaultSQLitePath = "/data/photographies.db"
)

type Config struct {
	Port        string
	DBDriver    string
	DatabaseURL string

	MediaBackend        string
	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
	MediaLocalPath      string
	MediaPublicURL      string

	RateLimitTTL   time.Duration
	RateLimitLimit int
	RedisAddr      string
	RedisPassword  string

	UploadMaxSizeMB int
	CodeLength      int
	CodeMaxLength   int
	CodeMaxAttempts int
	BannedCodes     []string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Load reads configuration from the environment after applying envFiles
// (".env" when none are given). Missing env files are not an error and
// variables already set in the environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var errs *multierror.Error
	getInt := func(key string, defaultVal int) int {
		v, err := getEnvInt(key, defaultVal)
		errs = multierror.Append(errs, err)
		return v
	}

	cfg := &Config{
		Port:                getEnv("PORT", "3000"),
		DBDriver:            getEnv("DB_DRIVER", DBDriverSQLite),
		MediaBackend:        getEnv("MEDIA_BACKEND", MediaBackendCloudinary),
		CloudinaryName:      getEnv("CLOUDINARY_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", ""),
		MediaLocalPath:      getEnv("MEDIA_LOCAL_PATH", "/data/media"),
		MediaPublicURL:      strings.TrimSuffix(getEnv("MEDIA_PUBLIC_URL", ""), "/"),
		RateLimitTTL:        time.Duration(getInt("RATE_LIMIT_DEFAULT_TTL", 60)) * time.Second,
		RateLimitLimit:      getInt("RATE_LIMIT_DEFAULT_LIMIT", 100),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		UploadMaxSizeMB:     getInt("UPLOAD_MAX_SIZE_MB", 10),
		CodeLength:          getInt("CODE_LENGTH", 3),
		CodeMaxLength:       getInt("CODE_MAX_LENGTH", 6),
		CodeMaxAttempts:     getInt("CODE_MAX_ATTEMPTS", 1000),
		BannedCodes:         splitList(getEnv("BANNED_CODES", "")),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		LogFile:             getEnv("LOG_FILE", ""),
	}

	defaultURL := ""
	if cfg.DBDriver == DBDriverSQLite {
		defaultURL = defaultSQLitePath
	}
	cfg.DatabaseURL = getEnv("DATABASE_URL", defaultURL)

	return cfg, errs.ErrorOrNil()
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}

// Validate checks that every setting required by the selected backends is
// present and that numeric settings are in range. All problems are reported.
func (c *Config) Validate() error {
	var errs *multierror.Error
	fail := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		fail("PORT must be a port number, got %q", c.Port)
	}

	switch c.DBDriver {
	case DBDriverSQLite, DBDriverPostgres:
		if c.DatabaseURL == "" {
			fail("DATABASE_URL is required when DB_DRIVER=%s", c.DBDriver)
		}
	default:
		fail("DB_DRIVER must be %q or %q, got %q", DBDriverSQLite, DBDriverPostgres, c.DBDriver)
	}

	switch c.MediaBackend {
	case MediaBackendCloudinary:
		required := []struct{ key, val string }{
			{"CLOUDINARY_NAME", c.CloudinaryName},
			{"CLOUDINARY_API_KEY", c.CloudinaryAPIKey},
			{"CLOUDINARY_API_SECRET", c.CloudinaryAPISecret},
			{"CLOUDINARY_FOLDER", c.CloudinaryFolder},
		}
		for _, r := range required {
			if r.val == "" {
				fail("%s is required when MEDIA_BACKEND=cloudinary", r.key)
			}
		}
	case MediaBackendLocal:
		if c.MediaLocalPath == "" {
			fail("MEDIA_LOCAL_PATH is required when MEDIA_BACKEND=local")
		}
	default:
		fail("MEDIA_BACKEND must be %q or %q, got %q", MediaBackendCloudinary, MediaBackendLocal, c.MediaBackend)
	}

	if c.RateLimitLimit > 0 && c.RateLimitTTL <= 0 {
		fail("RATE_LIMIT_DEFAULT_TTL must be positive when rate limiting is enabled")
	}
	if c.UploadMaxSizeMB <= 0 {
		fail("UPLOAD_MAX_SIZE_MB must be positive, got %d", c.UploadMaxSizeMB)
	}
	if c.CodeLength <= 0 {
		fail("CODE_LENGTH must be positive, got %d", c.CodeLength)
	}
	if c.CodeMaxLength < c.CodeLength {
		fail("CODE_MAX_LENGTH (%d) must not be less than CODE_LENGTH (%d)", c.CodeMaxLength, c.CodeLength)
	}
	if c.CodeMaxAttempts <= 0 {
		fail("CODE_MAX_ATTEMPTS must be positive, got %d", c.CodeMaxAttempts)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		fail("LOG_FORMAT must be \"json\" or \"text\", got %q", c.LogFormat)
	}

	return errs.ErrorOrNil()
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return defaultVal, fmt.Errorf("%s must be an integer, got %q", key, val)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
