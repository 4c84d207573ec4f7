package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	GRPC     GRPCConfig
	Worker   WorkerConfig
	Sources  SourcesConfig
	Cluster  ClusterConfig
	Viewport ViewportConfig
	Session  SessionConfig
	DB       DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type GRPCConfig struct {
	Port int
}

type ServerConfig struct {
	Host         string
	Port         int
	CORSOrigins  []string
	RateLimitRPS float64
	RateBurst    int
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SourcesConfig struct {
	APIURL    string
	JWTSecret string

	ServicesURL string
	ServicesKey string
	ServicesDSN string // when set, services are read from Postgres instead of REST

	IncidentsPollInterval time.Duration
	SensorsPollInterval   time.Duration
	ServicesPollInterval  time.Duration
	AQIPollInterval       time.Duration
	AQICities             []string
	RequestTimeout        time.Duration
}

type ClusterConfig struct {
	MinZoom   int
	MaxZoom   int
	MinPoints int
	Radius    float64
	Extent    int
	ClickZoom bool
}

type ViewportConfig struct {
	Width       int
	Height      int
	InitialZoom int
}

type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

type DatabaseConfig struct {
	Path          string
	SnapshotsKept int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string // json or text
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimitRPS: getEnvFloat("RATE_LIMIT_RPS", 20),
			RateBurst:    getEnvInt("RATE_LIMIT_BURST", 40),
		},
		GRPC: GRPCConfig{
			Port: getEnvInt("GRPC_PORT", 50051),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 4),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Sources: SourcesConfig{
			APIURL:                getEnv("API_URL", "http://localhost:8081"),
			JWTSecret:             getEnv("API_JWT_SECRET", ""),
			ServicesURL:           getEnv("SERVICES_URL", ""),
			ServicesKey:           getEnv("SERVICES_KEY", ""),
			ServicesDSN:           getEnv("SERVICES_DSN", ""),
			IncidentsPollInterval: getEnvDuration("INCIDENTS_POLL_INTERVAL", time.Minute),
			SensorsPollInterval:   getEnvDuration("SENSORS_POLL_INTERVAL", time.Minute),
			ServicesPollInterval:  getEnvDuration("SERVICES_POLL_INTERVAL", 10*time.Minute),
			AQIPollInterval:       getEnvDuration("AQI_POLL_INTERVAL", 15*time.Minute),
			AQICities:             getEnvList("AQI_CITIES", []string{"Mumbai", "Pune", "Hyderabad", "Delhi", "Kolkata"}),
			RequestTimeout:        getEnvDuration("SOURCE_REQUEST_TIMEOUT", 15*time.Second),
		},
		Cluster: ClusterConfig{
			MinZoom:   getEnvInt("CLUSTER_MIN_ZOOM", 0),
			MaxZoom:   getEnvInt("CLUSTER_MAX_ZOOM", 17),
			MinPoints: getEnvInt("CLUSTER_MIN_POINTS", 2),
			Radius:    getEnvFloat("CLUSTER_RADIUS", 60),
			Extent:    getEnvInt("CLUSTER_EXTENT", 512),
			ClickZoom: getEnvBool("CLUSTER_CLICK_ZOOM", true),
		},
		Viewport: ViewportConfig{
			Width:       getEnvInt("VIEWPORT_WIDTH", 1024),
			Height:      getEnvInt("VIEWPORT_HEIGHT", 520),
			InitialZoom: getEnvInt("VIEWPORT_INITIAL_ZOOM", 4),
		},
		Session: SessionConfig{
			TTL:           getEnvDuration("SESSION_TTL", 30*time.Minute),
			SweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		},
		DB: DatabaseConfig{
			Path:          getEnv("DB_PATH", "./data/citymap.db"),
			SnapshotsKept: getEnvInt("DB_SNAPSHOTS_KEPT", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_TTL", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.GRPC.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	intervals := map[string]time.Duration{
		"incidents": c.Sources.IncidentsPollInterval,
		"sensors":   c.Sources.SensorsPollInterval,
		"services":  c.Sources.ServicesPollInterval,
		"aqi":       c.Sources.AQIPollInterval,
	}
	for name, d := range intervals {
		if d < 10*time.Second {
			return fmt.Errorf("%s poll interval must be at least 10 seconds", name)
		}
	}

	if c.Cluster.MinZoom < 0 || c.Cluster.MaxZoom > 22 || c.Cluster.MinZoom > c.Cluster.MaxZoom {
		return fmt.Errorf("invalid cluster zoom range: %d-%d", c.Cluster.MinZoom, c.Cluster.MaxZoom)
	}
	if c.Cluster.Radius <= 0 || c.Cluster.Extent <= 0 {
		return fmt.Errorf("cluster radius and extent must be positive")
	}

	if c.Viewport.Width < 1 || c.Viewport.Height < 1 {
		return fmt.Errorf("invalid viewport size: %dx%d", c.Viewport.Width, c.Viewport.Height)
	}
	if c.Viewport.InitialZoom < c.Cluster.MinZoom || c.Viewport.InitialZoom > c.Cluster.MaxZoom {
		return fmt.Errorf("initial zoom %d outside %d-%d", c.Viewport.InitialZoom, c.Cluster.MinZoom, c.Cluster.MaxZoom)
	}

	if c.Session.TTL < time.Minute {
		return fmt.Errorf("session TTL must be at least 1 minute")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
