package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/sheet-importer/pkg/logging"
)

const Production = "production"

const (
	DriverPostgres  = "postgres"
	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite"
)

const (
	JobStoreMemory   = "memory"
	JobStoreRedis    = "redis"
	JobStorePostgres = "postgres"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory. When none of
// them exist there, it retries from the nearest parent holding a go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root := moduleRoot(); root != "" {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, envFiles []string) []string {
	out := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func moduleRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := wd; ; {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"sheet_importer"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type SQLServerOptions struct {
	DSN string `env:"MSSQL_DSN"`
}

func (s *SQLServerOptions) Validate() error {
	if s.DSN == "" {
		return fmt.Errorf("MSSQL_DSN is required when IMPORT_DRIVER is %q", DriverSQLServer)
	}
	if _, err := msdsn.Parse(s.DSN); err != nil {
		return fmt.Errorf("invalid MSSQL_DSN: %w", err)
	}
	return nil
}

type SQLiteOptions struct {
	Path string `env:"SQLITE_PATH" envDefault:"./data/imports.db"`
}

type ImportOptions struct {
	Driver          string `env:"IMPORT_DRIVER" envDefault:"postgres"`
	Schema          string `env:"IMPORT_SCHEMA" envDefault:"importacionxls"`
	BatchSize       int    `env:"IMPORT_BATCH_SIZE" envDefault:"2000"`
	Workers         int    `env:"IMPORT_WORKERS" envDefault:"4"`
	ReportKindsPath string `env:"REPORT_KINDS_PATH"`
	WarningLimit    int    `env:"IMPORT_WARNING_LIMIT" envDefault:"100"`
}

func (o *ImportOptions) Validate() error {
	o.Driver = strings.ToLower(strings.TrimSpace(o.Driver))
	switch o.Driver {
	case DriverPostgres, DriverSQLServer, DriverSQLite:
	default:
		return fmt.Errorf("invalid IMPORT_DRIVER=%q (expected postgres|sqlserver|sqlite)", o.Driver)
	}
	if o.BatchSize <= 0 {
		return fmt.Errorf("IMPORT_BATCH_SIZE must be positive, got %d", o.BatchSize)
	}
	if o.Workers <= 0 {
		return fmt.Errorf("IMPORT_WORKERS must be positive, got %d", o.Workers)
	}
	if o.WarningLimit < 0 {
		return fmt.Errorf("IMPORT_WARNING_LIMIT must be non-negative, got %d", o.WarningLimit)
	}
	return nil
}

type JobsOptions struct {
	Store           string        `env:"JOB_STORE" envDefault:"memory"`
	TTL             time.Duration `env:"JOB_TTL" envDefault:"24h"`
	JanitorInterval time.Duration `env:"JOB_JANITOR_INTERVAL" envDefault:"10m"`
	RedisPrefix     string        `env:"JOB_REDIS_PREFIX" envDefault:"sheet-importer:jobs:"`
}

func (j *JobsOptions) Validate(redisURL string) error {
	j.Store = strings.ToLower(strings.TrimSpace(j.Store))
	switch j.Store {
	case JobStoreMemory, JobStorePostgres:
	case JobStoreRedis:
		if redisURL == "" {
			return fmt.Errorf("REDIS_URL is required when JOB_STORE is %q", JobStoreRedis)
		}
	default:
		return fmt.Errorf("invalid JOB_STORE=%q (expected memory|redis|postgres)", j.Store)
	}
	if j.TTL <= 0 {
		return fmt.Errorf("JOB_TTL must be positive, got %s", j.TTL)
	}
	if j.JanitorInterval <= 0 {
		return fmt.Errorf("JOB_JANITOR_INTERVAL must be positive, got %s", j.JanitorInterval)
	}
	return nil
}

type LokiOptions struct {
	URL     string `env:"LOKI_URL"`
	AppName string `env:"LOKI_APP_NAME" envDefault:"sheet-importer"`
	LogPath string `env:"LOG_PATH" envDefault:"./logs/app.log"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"sheet-importer"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	UploadRPM int    `env:"RATE_LIMIT_UPLOAD_RPM" envDefault:"60"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.GlobalRPS > 1000000 {
		return fmt.Errorf("rate limit GlobalRPS too high, maximum is 1,000,000, got %d", r.GlobalRPS)
	}
	if r.UploadRPM < 0 {
		return fmt.Errorf("rate limit UploadRPM must be non-negative, got %d", r.UploadRPM)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

// OpsGuardOptions protects /health and the metrics endpoint in production.
type OpsGuardOptions struct {
	Enabled       bool   `env:"OPS_GUARD_ENABLED" envDefault:"true"`
	CIDRs         string `env:"OPS_GUARD_CIDRS" envDefault:""`
	Token         string `env:"OPS_GUARD_TOKEN" envDefault:""`
	BasicAuthUser string `env:"OPS_GUARD_BASIC_AUTH_USER" envDefault:""`
	BasicAuthPass string `env:"OPS_GUARD_BASIC_AUTH_PASS" envDefault:""`
}

type Configuration struct {
	Database      DatabaseOptions
	SQLServer     SQLServerOptions
	SQLite        SQLiteOptions
	Import        ImportOptions
	Jobs          JobsOptions
	Loki          LokiOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions
	OpsGuard      OpsGuardOptions

	RedisURL         string `env:"REDIS_URL"`
	ServerPort       int    `env:"PORT" envDefault:"3001"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	UploadsPath      string `env:"UPLOADS_PATH" envDefault:"uploads"`
	// 0 disables the cap.
	MaxUploadSize   int64    `env:"MAX_UPLOAD_SIZE" envDefault:"52428800"`
	MaxUploadMemory int64    `env:"MAX_UPLOAD_MEMORY" envDefault:"33554432"`
	CORSOrigins     []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel        string   `env:"LOG_LEVEL" envDefault:"error"`
	// Looked up on every request; a random uuidv4 is generated when absent.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	// Looked up on every request; request.RemoteAddr is used when absent.
	RealIPHeader string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

// Load builds a Configuration from envFiles without touching the
// process-wide instance returned by Use.
func Load(envFiles ...string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.Loki.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

// Validate checks every options group. It normalises enum-like values in place.
func (c *Configuration) Validate() error {
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import configuration error: %w", err)
	}
	if c.Import.Driver == DriverSQLServer {
		if err := c.SQLServer.Validate(); err != nil {
			return fmt.Errorf("sqlserver configuration error: %w", err)
		}
	}
	if err := c.Jobs.Validate(c.RedisURL); err != nil {
		return fmt.Errorf("jobs configuration error: %w", err)
	}
	if c.MaxUploadSize < 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be non-negative, got %d", c.MaxUploadSize)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
