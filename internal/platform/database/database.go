package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

type Config struct {
	Driver       Dialect
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SQLitePath   string
	MaxOpenConns int
	// ConnectAttempts bounds how long Open waits for the server to come up.
	ConnectAttempts int
	ConnectDelay    time.Duration
}

// DB is a connection pool together with the dialect its queries need.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Rebind rewrites ? placeholders for the pool's dialect.
func (db *DB) Rebind(query string) string {
	return db.Dialect.Rebind(query)
}

func dsn(cfg Config) (driverName, source string, err error) {
	switch cfg.Driver {
	case Postgres:
		return "postgres", fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName), nil
	case MySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
		mc.DBName = cfg.DBName
		mc.MultiStatements = true
		return "mysql", mc.FormatDSN(), nil
	case SQLite:
		path := strings.TrimSpace(cfg.SQLitePath)
		if path == "" {
			return "", "", fmt.Errorf("sqlite path is required")
		}
		return "sqlite", filepath.Clean(path) +
			"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Open connects to the configured database, retrying while the server is
// not ready yet.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*DB, error) {
	driverName, source, err := dsn(cfg)
	if err != nil {
		return nil, err
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 10
	}
	delay := cfg.ConnectDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	var db *sql.DB
	for i := 1; i <= attempts; i++ {
		log.Info("connecting to database", "driver", string(cfg.Driver), "attempt", i, "max_attempts", attempts)
		db, err = sql.Open(driverName, source)
		if err == nil {
			err = db.PingContext(ctx)
		}

		if err == nil {
			if cfg.MaxOpenConns > 0 {
				db.SetMaxOpenConns(cfg.MaxOpenConns)
			}
			log.Info("database connected", "driver", string(cfg.Driver))
			return &DB{DB: db, Dialect: cfg.Driver}, nil
		}
		if db != nil {
			_ = db.Close()
		}

		log.Warn("database not ready yet", "error", err, "retry_in", delay.String())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("connect database: %w", err)
}
