package config

import (
	"strconv"
	"time"
)

// Default configuration values.
const (
	defaultServiceName      = "attribution"
	defaultServiceVersion   = "1.0.0"
	defaultServicePort      = 8090
	defaultConcurrency      = 10
	defaultBatchSize        = 500
	defaultDBHost           = "localhost"
	defaultDBPort           = 5432
	defaultDBUser           = "postgres"
	defaultDBName           = "attribution"
	defaultDBSSLMode        = "disable"
	defaultDBMaxConns       = 25
	defaultDBMaxIdleConns   = 5
	defaultRedisAddr        = "localhost:6379"
	defaultRedisTimeoutSec  = 5
	defaultReportTTLHours   = 6
	defaultESURL            = "http://localhost:9200"
	defaultESMaxRetries     = 3
	defaultESTimeoutSec     = 30
	defaultESIndexPrefix    = "attributed_sessions"
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultScanRPS          = 20
	defaultScanPageSize     = 1000
	defaultSuggestionLimit  = 20
	defaultSettingsKey      = "traffic_source_rules"
	defaultDiagnosticWindow = 30 * 24 * time.Hour
	defaultExportInterval   = 5 * time.Minute
)

// Config holds all configuration for the attribution service.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Logging       LoggingConfig       `yaml:"logging"`
	Diagnostics   DiagnosticsConfig   `yaml:"diagnostics"`
	Auth          AuthConfig          `yaml:"auth"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Port        int    `env:"ATTRIBUTION_PORT"        yaml:"port"`
	Debug       bool   `env:"APP_DEBUG"               yaml:"debug"`
	Concurrency int    `env:"ATTRIBUTION_CONCURRENCY" yaml:"concurrency"`
	BatchSize   int    `yaml:"batch_size"`
	SettingsKey string `yaml:"settings_key"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `env:"POSTGRES_HOST"     yaml:"host"`
	Port            int           `env:"POSTGRES_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_PASSWORD" yaml:"password"`
	Database        string        `env:"POSTGRES_DB"       yaml:"database"`
	SSLMode         string        `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

// RedisConfig holds the report cache configuration.
type RedisConfig struct {
	Addr      string        `env:"REDIS_ADDR"     yaml:"addr"`
	Password  string        `env:"REDIS_PASSWORD" yaml:"password"`
	Database  int           `yaml:"database"`
	Timeout   time.Duration `yaml:"timeout"`
	ReportTTL time.Duration `yaml:"report_ttl"`
}

// ElasticsearchConfig holds the attributed-session index configuration.
type ElasticsearchConfig struct {
	URL            string        `env:"ELASTICSEARCH_URL"     yaml:"url"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	MaxRetries     int           `yaml:"max_retries"`
	Timeout        time.Duration `yaml:"timeout"`
	IndexPrefix    string        `yaml:"index_prefix"`
	Enabled        bool          `env:"ELASTICSEARCH_ENABLED" yaml:"enabled"`
	ExportInterval time.Duration `yaml:"export_interval"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// DiagnosticsConfig holds settings for the bulk diagnostics scans.
type DiagnosticsConfig struct {
	Window          time.Duration `yaml:"window"`
	ScanRPS         int           `yaml:"scan_rps"`
	ScanPageSize    int           `yaml:"scan_page_size"`
	SuggestionLimit int           `yaml:"suggestion_limit"`
}

// AuthConfig holds authentication configuration for the admin API.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	setElasticsearchDefaults(&cfg.Elasticsearch)
	setLoggingDefaults(&cfg.Logging)
	setDiagnosticsDefaults(&cfg.Diagnostics)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
	if s.Concurrency == 0 {
		s.Concurrency = defaultConcurrency
	}
	if s.BatchSize == 0 {
		s.BatchSize = defaultBatchSize
	}
	if s.SettingsKey == "" {
		s.SettingsKey = defaultSettingsKey
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Database == "" {
		d.Database = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = time.Hour
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Addr == "" {
		r.Addr = defaultRedisAddr
	}
	if r.Timeout == 0 {
		r.Timeout = defaultRedisTimeoutSec * time.Second
	}
	if r.ReportTTL == 0 {
		r.ReportTTL = defaultReportTTLHours * time.Hour
	}
}

func setElasticsearchDefaults(e *ElasticsearchConfig) {
	if e.URL == "" {
		e.URL = defaultESURL
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = defaultESMaxRetries
	}
	if e.Timeout == 0 {
		e.Timeout = defaultESTimeoutSec * time.Second
	}
	if e.IndexPrefix == "" {
		e.IndexPrefix = defaultESIndexPrefix
	}
	if e.ExportInterval == 0 {
		e.ExportInterval = defaultExportInterval
	}
}

func setLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if l.Format == "" {
		l.Format = defaultLogFormat
	}
}

func setDiagnosticsDefaults(d *DiagnosticsConfig) {
	if d.Window == 0 {
		d.Window = defaultDiagnosticWindow
	}
	if d.ScanRPS == 0 {
		d.ScanRPS = defaultScanRPS
	}
	if d.ScanPageSize == 0 {
		d.ScanPageSize = defaultScanPageSize
	}
	if d.SuggestionLimit == 0 {
		d.SuggestionLimit = defaultSuggestionLimit
	}
}
