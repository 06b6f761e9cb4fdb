package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig
	GRPC      GRPCConfig
	HTTP      HTTPConfig
	Auth      AuthConfig
	Log       LogConfig
	Report    ReportConfig
	Bootstrap BootstrapConfig
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string // SQLite database file path
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string // gRPC server listen address (e.g., ":50051")
}

// HTTPConfig contains REST server settings.
type HTTPConfig struct {
	Address        string   // e.g. ":8080"; empty disables the REST server
	RateLimitRPS   float64  // per-client requests per second on /api/auth
	RateLimitBurst int      // per-client burst on /api/auth
	CORSOrigins    []string // allowed origins; "*" allows any
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret  string        // JWT signing secret
	TokenTTL   time.Duration // session token lifetime
	BcryptCost int
}

// LogConfig selects logrus level and formatter.
type LogConfig struct {
	Level  string
	Format string // text or json
}

// ReportConfig selects which timestamp places a request in a report month.
type ReportConfig struct {
	Basis string // created or completed
}

// BootstrapConfig names an admin account created at startup when missing.
type BootstrapConfig struct {
	AdminEmail    string
	AdminPassword string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg, err := load(getEnv("JWT_SECRET", ""))
	if err != nil {
		return nil, err
	}

	// Validate critical settings
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required for production")
	}
	return cfg, nil
}

// LoadWithDefaults is like Load but uses a safe default for JWT_SECRET in development.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults() (*Config, error) {
	return load(getEnv("JWT_SECRET", "dev-secret-change-me"))
}

func load(secret string) (*Config, error) {
	ttl, err := getEnvDuration("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	cost, err := getEnvInt("BCRYPT_COST", 10)
	if err != nil {
		return nil, err
	}
	burst, err := getEnvInt("RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, err
	}
	rps, err := getEnvFloat("RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, err
	}
	basis := strings.ToLower(getEnv("REPORT_BASIS", "created"))
	if basis != "created" && basis != "completed" {
		return nil, fmt.Errorf("invalid REPORT_BASIS %q: want created or completed", basis)
	}
	bootstrap := BootstrapConfig{
		AdminEmail:    getEnv("BOOTSTRAP_ADMIN_EMAIL", ""),
		AdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),
	}
	if bootstrap.AdminEmail != "" && bootstrap.AdminPassword == "" {
		return nil, fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD is required when BOOTSTRAP_ADMIN_EMAIL is set")
	}

	return &Config{
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "ewaste.db"),
		},
		GRPC: GRPCConfig{
			Address: getEnv("GRPC_ADDRESS", ":50051"),
		},
		HTTP: HTTPConfig{
			Address:        getEnv("HTTP_ADDRESS", ":8080"),
			RateLimitRPS:   rps,
			RateLimitBurst: burst,
			CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		},
		Auth: AuthConfig{
			JWTSecret:  secret,
			TokenTTL:   ttl,
			BcryptCost: cost,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Report:    ReportConfig{Basis: basis},
		Bootstrap: bootstrap,
	}, nil
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// getEnvInt retrieves an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return f, nil
	}
	return defaultVal, nil
}

// getEnvDuration parses values like "24h" or "90m".
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	admin := "none"
	if c.Bootstrap.AdminEmail != "" {
		admin = c.Bootstrap.AdminEmail
	}
	return fmt.Sprintf("Config{DB: %s, gRPC: %s, HTTP: %s, Report: %s, Log: %s/%s, BootstrapAdmin: %s, Auth: *** (masked) ***}",
		c.Database.Path, c.GRPC.Address, c.HTTP.Address, c.Report.Basis, c.Log.Level, c.Log.Format, admin)
}
