package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	Port     string
	Database Database
	JWT      JWT
	Redis    Redis
	Storage  Storage
	HTTP     HTTP
	Admin    Admin
	Log      Log

	// SeedTaxonomy is "Category:Sub1|Sub2;Category2:Sub3" (see database.ParseTaxonomy).
	SeedTaxonomy string
}

type Database struct {
	Driver          string
	DSN             string
	Host            string
	Port            string
	User            string
	Pass            string
	Name            string
	Params          string
	TLS             string
	TLSVerify       bool
	TLSCAPath       string
	ConnectRetries  int
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingOnConnect   bool
	// Debug turns on the gorm Info logger.
	Debug bool
}

type JWT struct {
	Secret string
	Issuer string
}

type Redis struct {
	Addr string
	Pass string
	DB   int
}

type Storage struct {
	Driver     string
	MediaRoot  string
	MediaURL   string
	AccountID  string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Endpoint   string
	Region     string
	PresignTTL time.Duration
}

type HTTP struct {
	CORSAllowedOrigins []string
	TrustedProxies     []string
	MaxBodyBytes       int64
	RequestTimeout     time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	HSTS               bool
	CSP                string
}

type Admin struct {
	Username string
	Password string
}

type Log struct {
	Level  string
	Format string
}

// LoadDotEnv loads .env if present without overwriting variables already set in the environment.
func LoadDotEnv(files ...string) {
	envMap, err := godotenv.Read(files...)
	if err != nil {
		return
	}
	for k, v := range envMap {
		if os.Getenv(k) == "" {
			os.Setenv(k, v)
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")

	v.SetDefault("DB_DRIVER", "mysql")
	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_NAME", "appdownloader")
	v.SetDefault("DB_PARAMS", "charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("DB_TLS", "false")
	v.SetDefault("DB_TLS_VERIFY", false)
	v.SetDefault("DB_CONNECT_RETRIES", 5)
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 3600)
	v.SetDefault("DB_PING_ON_CONNECT", true)

	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("MEDIA_ROOT", "media")
	v.SetDefault("MEDIA_URL", "/media/")
	v.SetDefault("S3_REGION", "auto")
	v.SetDefault("PRESIGN_TTL_SEC", 3600)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000,http://127.0.0.1:5500")
	v.SetDefault("MAX_BODY_BYTES", 12<<20)
	v.SetDefault("REQ_TIMEOUT_SEC", 10)
	v.SetDefault("SEC_HSTS", false)

	v.SetDefault("SEED_TAXONOMY", DefaultTaxonomy)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")
}

// DefaultTaxonomy mirrors the categories offered by the web client.
const DefaultTaxonomy = "Social Media:Messaging|Networking|Photo Sharing;" +
	"Productivity:Office|Notes|Task Management;" +
	"Entertainment:Games|Music|Video Streaming"

// Load reads the configuration from the environment. JWT_SECRET is required.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Env:  strings.ToLower(v.GetString("ENV")),
		Port: v.GetString("PORT"),
		Database: Database{
			Driver:          strings.ToLower(v.GetString("DB_DRIVER")),
			DSN:             v.GetString("DB_DSN"),
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetString("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Pass:            v.GetString("DB_PASS"),
			Name:            v.GetString("DB_NAME"),
			Params:          v.GetString("DB_PARAMS"),
			TLS:             strings.ToLower(v.GetString("DB_TLS")),
			TLSVerify:       v.GetBool("DB_TLS_VERIFY"),
			TLSCAPath:       v.GetString("DB_TLS_CA_PATH"),
			ConnectRetries:  v.GetInt("DB_CONNECT_RETRIES"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME")) * time.Second,
			PingOnConnect:   v.GetBool("DB_PING_ON_CONNECT"),
		},
		JWT: JWT{
			Secret: v.GetString("JWT_SECRET"),
			Issuer: v.GetString("JWT_ISS"),
		},
		Redis: Redis{
			Addr: strings.ReplaceAll(strings.TrimSpace(v.GetString("REDIS_ADDR")), " ", ""),
			Pass: v.GetString("REDIS_PASS"),
			DB:   v.GetInt("REDIS_DB"),
		},
		Storage: Storage{
			Driver:     strings.ToLower(v.GetString("STORAGE_DRIVER")),
			MediaRoot:  v.GetString("MEDIA_ROOT"),
			MediaURL:   v.GetString("MEDIA_URL"),
			AccountID:  v.GetString("R2_ACCOUNT_ID"),
			AccessKey:  v.GetString("R2_ACCESS_KEY_ID"),
			SecretKey:  v.GetString("R2_SECRET_ACCESS_KEY"),
			Bucket:     v.GetString("R2_BUCKET_NAME"),
			Endpoint:   v.GetString("S3_ENDPOINT"),
			Region:     v.GetString("S3_REGION"),
			PresignTTL: time.Duration(v.GetInt("PRESIGN_TTL_SEC")) * time.Second,
		},
		HTTP: HTTP{
			CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			TrustedProxies:     splitList(v.GetString("TRUSTED_PROXIES")),
			MaxBodyBytes:       v.GetInt64("MAX_BODY_BYTES"),
			RequestTimeout:     time.Duration(v.GetInt("REQ_TIMEOUT_SEC")) * time.Second,
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       30 * time.Second,
			IdleTimeout:        60 * time.Second,
			HSTS:               v.GetBool("SEC_HSTS"),
			CSP:                v.GetString("SEC_CSP"),
		},
		Admin: Admin{
			Username: strings.TrimSpace(v.GetString("ADMIN_USERNAME")),
			Password: v.GetString("ADMIN_PASSWORD"),
		},
		Log: Log{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		SeedTaxonomy: v.GetString("SEED_TAXONOMY"),
	}

	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	cfg.Database.Debug = cfg.IsDevelopment()
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
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
