package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Relay    RelayConfig    `yaml:"relay"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Camera   CameraConfig   `yaml:"camera"`
	Vision   VisionConfig   `yaml:"vision"`
	Review   ReviewConfig   `yaml:"review"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig is the operator console HTTP server.
type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

// RelayConfig holds the alert relay and its messaging provider credentials.
type RelayConfig struct {
	Port            int           `yaml:"port"`
	AccountSID      string        `yaml:"account_sid"`
	AuthToken       string        `yaml:"auth_token"`
	FromNumber      string        `yaml:"from_number"`
	ToNumber        string        `yaml:"to_number"`
	ProviderBaseURL string        `yaml:"provider_base_url"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
}

type MonitorConfig struct {
	CameraID          string        `yaml:"camera_id"`
	WarningThreshold  int           `yaml:"warning_threshold"`
	CriticalThreshold int           `yaml:"critical_threshold"`
	Cooldown          time.Duration `yaml:"cooldown"`
	SentDisplay       time.Duration `yaml:"sent_display"`
	SampleInterval    time.Duration `yaml:"sample_interval"`
	RelayURL          string        `yaml:"relay_url"`
	DispatchTimeout   time.Duration `yaml:"dispatch_timeout"`
	AutoStart         bool          `yaml:"auto_start"`
}

type CameraConfig struct {
	Source string `yaml:"source"`
	Format string `yaml:"format"` // v4l2, avfoundation, dshow or empty for URLs
	FPS    int    `yaml:"fps"`
	Width  int    `yaml:"width"`
}

type VisionConfig struct {
	ModelPath          string  `yaml:"model_path"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	NMSThreshold       float64 `yaml:"nms_threshold"`
	InputSize          int     `yaml:"input_size"`
}

type ReviewConfig struct {
	RadiusMeters     float64           `yaml:"radius_meters"`
	Directory        string            `yaml:"directory"` // static or redis
	Recipients       []RecipientConfig `yaml:"recipients"`
	PresignExpiry    time.Duration     `yaml:"presign_expiry"`
	ResubscribeDelay time.Duration     `yaml:"resubscribe_delay"`
}

type RecipientConfig struct {
	ID        string  `yaml:"id"`
	Address   string  `yaml:"address"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	GeoKey   string `yaml:"geo_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Error reports configuration that prevents a process from starting.
type Error struct {
	Missing []string
	Reason  string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// Load reads config from an optional YAML file, local .env files and
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Zero is a valid threshold, so these defaults are seeded before decoding.
	cfg.Monitor.WarningThreshold = 1
	cfg.Monitor.CriticalThreshold = 3

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	loadDotEnv()
	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// loadDotEnv loads .env files without overriding variables already set.
func loadDotEnv() {
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		_ = godotenv.Load(file)
	}
}

// ValidateRelay checks the credentials the relay cannot serve without.
func (c *Config) ValidateRelay() error {
	var missing []string
	if c.Relay.AccountSID == "" {
		missing = append(missing, "TWILIO_ACCOUNT_SID")
	}
	if c.Relay.AuthToken == "" {
		missing = append(missing, "TWILIO_AUTH_TOKEN")
	}
	if c.Relay.FromNumber == "" {
		missing = append(missing, "TWILIO_PHONE_NUMBER")
	}
	if c.Relay.ToNumber == "" {
		missing = append(missing, "RECIPIENT_PHONE_NUMBER")
	}
	if len(missing) > 0 {
		return &Error{Missing: missing}
	}
	return nil
}

// ValidateConsole checks monitor and review settings.
func (c *Config) ValidateConsole() error {
	m := c.Monitor
	if m.WarningThreshold < 0 || m.CriticalThreshold < 0 {
		return &Error{Reason: "density thresholds must be non-negative"}
	}
	if m.WarningThreshold > m.CriticalThreshold {
		return &Error{Reason: fmt.Sprintf("warning_threshold (%d) exceeds critical_threshold (%d)",
			m.WarningThreshold, m.CriticalThreshold)}
	}
	if m.RelayURL == "" {
		return &Error{Missing: []string{"monitor.relay_url"}}
	}
	switch c.Review.Directory {
	case "static", "redis":
	default:
		return &Error{Reason: fmt.Sprintf("unknown review directory %q", c.Review.Directory)}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Relay.Port == 0 {
		cfg.Relay.Port = 5000
	}
	if cfg.Relay.ProviderBaseURL == "" {
		cfg.Relay.ProviderBaseURL = "https://api.twilio.com"
	}
	if cfg.Relay.ProviderTimeout == 0 {
		cfg.Relay.ProviderTimeout = 15 * time.Second
	}
	if cfg.Monitor.CameraID == "" {
		cfg.Monitor.CameraID = "default"
	}
	if cfg.Monitor.Cooldown == 0 {
		cfg.Monitor.Cooldown = 10 * time.Second
	}
	if cfg.Monitor.SentDisplay == 0 {
		cfg.Monitor.SentDisplay = 5 * time.Second
	}
	if cfg.Monitor.SampleInterval == 0 {
		cfg.Monitor.SampleInterval = 200 * time.Millisecond
	}
	if cfg.Monitor.RelayURL == "" {
		cfg.Monitor.RelayURL = "http://localhost:5000"
	}
	if cfg.Monitor.DispatchTimeout == 0 {
		cfg.Monitor.DispatchTimeout = 10 * time.Second
	}
	if cfg.Camera.Source == "" {
		cfg.Camera.Source = "/dev/video0"
	}
	if cfg.Camera.Format == "" && strings.HasPrefix(cfg.Camera.Source, "/dev/") {
		cfg.Camera.Format = "v4l2"
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 10
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Vision.ModelPath == "" {
		cfg.Vision.ModelPath = "models/yolov8n.onnx"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.NMSThreshold == 0 {
		cfg.Vision.NMSThreshold = 0.45
	}
	if cfg.Vision.InputSize == 0 {
		cfg.Vision.InputSize = 640
	}
	if cfg.Review.RadiusMeters == 0 {
		cfg.Review.RadiusMeters = 1000
	}
	if cfg.Review.Directory == "" {
		cfg.Review.Directory = "static"
	}
	if cfg.Review.PresignExpiry == 0 {
		cfg.Review.PresignExpiry = 15 * time.Minute
	}
	if cfg.Review.ResubscribeDelay == 0 {
		cfg.Review.ResubscribeDelay = 2 * time.Second
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "crowdwatch"
	}
	if cfg.Redis.GeoKey == "" {
		cfg.Redis.GeoKey = "crowdwatch:recipients"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CROWDWATCH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CROWDWATCH_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}

	// The relay keeps the variable names its deployments already use.
	if v := firstEnv("CROWDWATCH_RELAY_PORT", "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Relay.Port = port
		}
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.Relay.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		cfg.Relay.AuthToken = v
	}
	if v := os.Getenv("TWILIO_PHONE_NUMBER"); v != "" {
		cfg.Relay.FromNumber = v
	}
	if v := os.Getenv("RECIPIENT_PHONE_NUMBER"); v != "" {
		cfg.Relay.ToNumber = v
	}

	if v := os.Getenv("CROWDWATCH_RELAY_URL"); v != "" {
		cfg.Monitor.RelayURL = v
	}
	if v := os.Getenv("CROWDWATCH_WARNING_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.WarningThreshold = n
		}
	}
	if v := os.Getenv("CROWDWATCH_CRITICAL_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Monitor.CriticalThreshold = n
		}
	}
	if v := os.Getenv("CROWDWATCH_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.Cooldown = d
		}
	}
	if v := os.Getenv("CROWDWATCH_CAMERA_SOURCE"); v != "" {
		cfg.Camera.Source = v
	}
	if v := os.Getenv("CROWDWATCH_MODEL_PATH"); v != "" {
		cfg.Vision.ModelPath = v
	}

	if v := os.Getenv("CROWDWATCH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("CROWDWATCH_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("CROWDWATCH_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("CROWDWATCH_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("CROWDWATCH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("CROWDWATCH_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("CROWDWATCH_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("CROWDWATCH_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("CROWDWATCH_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("CROWDWATCH_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("CROWDWATCH_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CROWDWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CROWDWATCH_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
