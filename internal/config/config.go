package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB        DBConfig
	MinIO     MinIOConfig
	JWT       JWTConfig
	Server    ServerConfig
	TwoFactor TwoFactorConfig
	Redis     RedisConfig
	Mail      MailConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	// EncryptionSecret derives the key that seals TOTP secrets at rest.
	EncryptionSecret string
}

type DBConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port        string
	CORSOrigins string
}

type TwoFactorConfig struct {
	Issuer          string
	NonceTTL        time.Duration
	CodeTTL         time.Duration
	MaxAttempts     int
	MaxResends      int
	TOTPWindow      int
	TOTPAlgorithm   string
	TOTPDigits      int
	CleanupInterval time.Duration
	DeviceCookie    string
}

type RedisConfig struct {
	URL string
}

type MailConfig struct {
	PostmarkServerToken  string
	PostmarkAccountToken string
	From                 string
}

type AuditConfig struct {
	ExportInterval time.Duration
}

type MetricsConfig struct {
	Enabled bool
}

// Load reads the environment, first merging a .env file when present.
// Variables already set in the process win over the file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DB: DBConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "backoffice"),
			Password:   getEnv("DB_PASSWORD", "backoffice_secret"),
			Name:       getEnv("DB_NAME", "backoffice"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "backoffice.db"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "backoffice-audit"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:          getEnv("TWOFACTOR_ISSUER", "Backoffice"),
			NonceTTL:        getEnvAsDuration("TWOFACTOR_NONCE_TTL", 5*time.Minute),
			CodeTTL:         getEnvAsDuration("TWOFACTOR_CODE_TTL", 10*time.Minute),
			MaxAttempts:     getEnvAsInt("TWOFACTOR_MAX_ATTEMPTS", 5),
			MaxResends:      getEnvAsInt("TWOFACTOR_MAX_RESENDS", 3),
			TOTPWindow:      getEnvAsInt("TWOFACTOR_TOTP_WINDOW", 1),
			TOTPAlgorithm:   strings.ToUpper(getEnv("TWOFACTOR_TOTP_ALGORITHM", "SHA1")),
			TOTPDigits:      getEnvAsInt("TWOFACTOR_TOTP_DIGITS", 6),
			CleanupInterval: getEnvAsDuration("TWOFACTOR_CLEANUP_INTERVAL", 24*time.Hour),
			DeviceCookie:    getEnv("TWOFACTOR_DEVICE_COOKIE", "bo_trusted_device"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Mail: MailConfig{
			PostmarkServerToken:  getEnv("POSTMARK_SERVER_TOKEN", ""),
			PostmarkAccountToken: getEnv("POSTMARK_ACCOUNT_TOKEN", ""),
			From:                 getEnv("MAIL_FROM", "no-reply@backoffice.local"),
		},
		Audit: AuditConfig{
			ExportInterval: getEnvAsDuration("AUDIT_EXPORT_INTERVAL", 1*time.Hour),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		EncryptionSecret: getEnv("ENCRYPTION_SECRET", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
