package database

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"appdownloader/config"
	"appdownloader/utils"

	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

var DB *gorm.DB

// Connect opens the configured database and stores it in DB.
func Connect(cfg config.Database) (*gorm.DB, error) {
	if DB != nil {
		return DB, nil
	}
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	DB = db
	return DB, nil
}

// Open connects with pooling and retry. Supported drivers: mysql (default), postgres, sqlite.
func Open(cfg config.Database) (*gorm.DB, error) {
	dialector, safeDSN, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	utils.Log.WithFields(map[string]interface{}{"driver": cfg.Driver, "dsn": safeDSN}).Info("[database] connecting")

	// GORM logger: verbose in development
	var gormLogger logger.Interface
	if cfg.Debug {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	// Retry connection with exponential backoff
	maxRetries := cfg.ConnectRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	var db *gorm.DB
	backoff := time.Second
	for attempt := 0; attempt < maxRetries; attempt++ {
		db, err = gorm.Open(dialector, &gorm.Config{Logger: gormLogger, TranslateError: true})
		if err == nil {
			break
		}
		utils.Log.WithError(err).WithField("attempt", attempt+1).Warn("[database] connect failed")
		if attempt < maxRetries-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" {
		// one writer at a time; a single connection also keeps in-process transactions ordered
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if cfg.PingOnConnect {
		if err := pingWithTimeout(sqlDB, 5*time.Second); err != nil {
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
	}
	return db, nil
}

func dialectorFor(cfg config.Database) (gorm.Dialector, string, error) {
	switch cfg.Driver {
	case "", "mysql":
		dsn, err := mysqlDSN(cfg)
		if err != nil {
			return nil, "", err
		}
		return gormmysql.Open(dsn), maskPassword(dsn, cfg.Pass), nil
	case "postgres", "postgresql":
		dsn := cfg.DSN
		if dsn == "" {
			sslmode := "disable"
			if cfg.TLS == "true" || cfg.TLS == "preferred" {
				sslmode = "require"
			}
			if cfg.TLSVerify {
				sslmode = "verify-full"
			}
			dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
				cfg.Host, cfg.Port, cfg.User, cfg.Pass, cfg.Name, sslmode)
		}
		return postgres.Open(dsn), maskPassword(dsn, cfg.Pass), nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Name + ".db"
		}
		if !strings.Contains(dsn, "_pragma=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		}
		// modernc.org/sqlite registers itself as "sqlite"
		return &sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, dsn, nil
	default:
		return nil, "", fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}
}

func mysqlDSN(cfg config.Database) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	params := cfg.Params
	// Ensure TLS/timeout params are present to enforce encrypted connections and timeouts
	if !strings.Contains(params, "tls=") && (cfg.TLS == "true" || cfg.TLS == "preferred") {
		if cfg.TLSVerify {
			if err := registerCustomTLS(cfg.TLSCAPath); err != nil {
				return "", err
			}
			params += "&tls=custom"
		} else {
			params += "&tls=true"
		}
	}
	for _, p := range []string{"timeout=10s", "readTimeout=10s", "writeTimeout=10s"} {
		name := strings.SplitN(p, "=", 2)[0] + "="
		if !strings.Contains(params, name) {
			params += "&" + p
		}
	}
	params = strings.TrimPrefix(params, "&")
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s", cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name, params), nil
}

// registerCustomTLS registers a TLS config named "custom" for strict certificate validation.
func registerCustomTLS(caPath string) error {
	tlsCfg := &tls.Config{}
	if caPath != "" {
		caCert, err := os.ReadFile(caPath)
		if err != nil {
			return fmt.Errorf("failed reading DB TLS CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return errors.New("failed to append CA certs")
		}
		tlsCfg.RootCAs = pool
	}
	return mysqldriver.RegisterTLSConfig("custom", tlsCfg)
}

func maskPassword(dsn, pass string) string {
	if pass == "" {
		return dsn
	}
	return strings.Replace(dsn, pass, "******", 1)
}

func pingWithTimeout(db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return db.PingContext(ctx)
}
