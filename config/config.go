package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// AppConfig holds environment driven configuration values.
type AppConfig struct {
	AppPort            string
	AllowedOrigins     []string
	RateLimitPerMinute int
	// Database configuration. DBDriver is one of mongo, mysql, sqlite.
	DBDriver      string
	DatabaseURI   string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	MongoDatabase string
	// Attachment storage
	UploadsBackend             string
	UploadsDir                 string
	S3Bucket                   string
	S3Prefix                   string
	S3Region                   string
	MaxUploadSizeMB            int
	OrphanGraceMinutes         int
	OrphanSweepIntervalMinutes int
	OrphanSweepDisabled        bool
	// Redis response cache
	CacheEnabled  bool
	CacheTTLSec   int
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Gin framework configuration
	GinMode string
	GinPath string
}

// MaxAttachments is the number of files a single post may carry.
const MaxAttachments = 5

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	// Precedence: config file -> defaults -> environment variable overrides
	path := getEnv("CONFIG_FILE", filepath.Join("config", "config.json"))
	if err := loadConfigFile(path, &cfg); err != nil {
		log.Fatalf("invalid config file %s: %v", path, err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// MaxUploadBytes is the per-file size limit in bytes.
func (c AppConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadConfigFile reads a json, yaml or toml file into out if present.
// A missing file is not an error; malformed content is.
func loadConfigFile(path string, out *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	case ".json", "":
		err = json.Unmarshal(data, &raw)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	applySections(raw, out)
	return nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// getInt accepts the numeric types produced by the json, yaml and toml decoders.
func getInt(m map[string]any, key string) int {
	if v, ok := m[key]; ok {
		switch t := v.(type) {
		case float64:
			return int(t)
		case int:
			return t
		case int64:
			return int(t)
		case string:
			i, _ := strconv.Atoi(t)
			return i
		}
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func getStringSlice(m map[string]any, key string) []string {
	if v, ok := m[key]; ok {
		if arr, ok := v.([]any); ok {
			res := make([]string, 0, len(arr))
			for _, it := range arr {
				if s, ok := it.(string); ok {
					res = append(res, s)
				}
			}
			return res
		}
	}
	return nil
}

func section(raw map[string]any, name string) (map[string]any, bool) {
	m, ok := raw[name].(map[string]any)
	return m, ok
}

func applySections(raw map[string]any, out *AppConfig) {
	if app, ok := section(raw, "app"); ok {
		out.AppPort = getString(app, "AppPort")
		if list := getStringSlice(app, "AllowedOrigins"); len(list) > 0 {
			out.AllowedOrigins = list
		}
		if v := getInt(app, "RateLimitPerMinute"); v != 0 {
			out.RateLimitPerMinute = v
		}
	}

	if g, ok := section(raw, "gin"); ok {
		if v := getString(g, "Mode"); v != "" {
			out.GinMode = v
		}
		if v := getString(g, "LogPath"); v != "" {
			out.GinPath = v
		}
	}

	if dbs, ok := section(raw, "database"); ok {
		out.DBDriver = getString(dbs, "Driver")
		out.DatabaseURI = getString(dbs, "DatabaseURI")
		out.DBHost = getString(dbs, "DBHost")
		out.DBPort = getString(dbs, "DBPort")
		out.DBUser = getString(dbs, "DBUser")
		out.DBPassword = getString(dbs, "DBPassword")
		out.DBName = getString(dbs, "DBName")
		out.MongoDatabase = getString(dbs, "MongoDatabase")
	}

	if up, ok := section(raw, "uploads"); ok {
		out.UploadsBackend = getString(up, "Backend")
		out.UploadsDir = getString(up, "Dir")
		out.S3Bucket = getString(up, "S3Bucket")
		out.S3Prefix = getString(up, "S3Prefix")
		out.S3Region = getString(up, "S3Region")
		out.MaxUploadSizeMB = getInt(up, "MaxSizeMB")
		out.OrphanGraceMinutes = getInt(up, "OrphanGraceMinutes")
		out.OrphanSweepIntervalMinutes = getInt(up, "OrphanSweepIntervalMinutes")
		out.OrphanSweepDisabled = getBool(up, "OrphanSweepDisabled")
	}

	if rds, ok := section(raw, "redis"); ok {
		out.CacheEnabled = getBool(rds, "Enabled")
		out.CacheTTLSec = getInt(rds, "CacheTTLSec")
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}

	if lg, ok := section(raw, "log"); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		if v := getString(lg, "GinMode"); v != "" {
			out.GinMode = v
		}
		if v := getString(lg, "GinPath"); v != "" {
			out.GinPath = v
		}
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "4000"
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.DBDriver == "" {
		c.DBDriver = "mongo"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.DBUser == "" {
		c.DBUser = "root"
	}
	if c.DBName == "" {
		c.DBName = "inkwell"
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "blog"
	}
	if c.UploadsBackend == "" {
		c.UploadsBackend = "local"
	}
	if c.UploadsDir == "" {
		c.UploadsDir = "uploads"
	}
	if c.S3Prefix == "" {
		c.S3Prefix = "uploads/"
	}
	if c.MaxUploadSizeMB == 0 {
		c.MaxUploadSizeMB = 50
	}
	if c.OrphanGraceMinutes == 0 {
		c.OrphanGraceMinutes = 60
	}
	if c.OrphanSweepIntervalMinutes == 0 {
		c.OrphanSweepIntervalMinutes = 15
	}
	if c.CacheTTLSec == 0 {
		c.CacheTTLSec = 3600
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", getEnv("PORT", "")); v != "" {
		c.AppPort = v
	}
	// CORS_ORIGIN is the single-origin form used by older deployments
	if v := getEnv("CORS_ORIGIN", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("DB_DRIVER", ""); v != "" {
		c.DBDriver = strings.ToLower(v)
	}
	if v := getEnv("DATABASE_URI", getEnv("MONGO_URI", "")); v != "" {
		c.DatabaseURI = v
	}
	if v := getEnv("DB_HOST", ""); v != "" {
		c.DBHost = v
	}
	if v := getEnv("DB_PORT", ""); v != "" {
		c.DBPort = v
	}
	if v := getEnv("DB_USER", ""); v != "" {
		c.DBUser = v
	}
	if v := getEnv("DB_PASSWORD", ""); v != "" {
		c.DBPassword = v
	}
	if v := getEnv("DB_NAME", ""); v != "" {
		c.DBName = v
		c.MongoDatabase = v
	}
	if v := getEnv("UPLOADS_BACKEND", ""); v != "" {
		c.UploadsBackend = strings.ToLower(v)
	}
	if v := getEnv("UPLOADS_DIR", ""); v != "" {
		c.UploadsDir = v
	}
	if v := getEnv("S3_BUCKET", ""); v != "" {
		c.S3Bucket = v
	}
	if v := getEnv("S3_PREFIX", ""); v != "" {
		c.S3Prefix = v
	}
	if v := getEnv("S3_REGION", getEnv("AWS_REGION", "")); v != "" {
		c.S3Region = v
	}
	if v := getEnv("MAX_UPLOAD_SIZE_MB", ""); v != "" {
		c.MaxUploadSizeMB = mustParseInt(v)
	}
	if v := getEnv("ORPHAN_GRACE_MINUTES", ""); v != "" {
		c.OrphanGraceMinutes = mustParseInt(v)
	}
	if v := getEnv("ORPHAN_SWEEP_INTERVAL_MINUTES", ""); v != "" {
		c.OrphanSweepIntervalMinutes = mustParseInt(v)
	}
	if v := getEnv("ORPHAN_SWEEP_DISABLED", ""); v != "" {
		c.OrphanSweepDisabled = v == "true"
	}
	if v := getEnv("CACHE_ENABLED", ""); v != "" {
		c.CacheEnabled = v == "true"
	}
	if v := getEnv("CACHE_TTL_SEC", ""); v != "" {
		c.CacheTTLSec = mustParseInt(v)
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
