package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

const sqlitePrefix = "sqlite://"

// Options contains the configuration to open a database
type Options struct {
	URI    string
	Logger *zap.Logger
}

func dialector(uri string) gorm.Dialector {
	if strings.HasPrefix(uri, sqlitePrefix) {
		return sqlite.Open(strings.TrimPrefix(uri, sqlitePrefix))
	}
	return postgres.Open(uri)
}

// New returns an instance for interacting with the database. URIs prefixed with sqlite:// open a local SQLite file, everything else is treated as a PostgreSQL DSN
func New(option Options) (*gorm.DB, error) {
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.URI == "" {
		return nil, fmt.Errorf("empty URI is invalid")
	}
	gLogger := zapgorm2.New(option.Logger)
	gLogger.LogLevel = gormlogger.Warn
	gLogger.SlowThreshold = time.Second
	// ErrRecordNotFound will be handled in application logic, let's not forward this to zap/sentry
	gLogger.IgnoreRecordNotFoundError = true

	db, err := gorm.Open(dialector(option.URI), &gorm.Config{
		Logger: gLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Cannot connect to database")
	}
	pool, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "Cannot get the connection pool")
	}
	pool.SetMaxIdleConns(1)
	pool.SetMaxOpenConns(20)
	pool.SetConnMaxLifetime(time.Hour)
	return db, nil
}
