package database

import (
	"errors"
	"fmt"

	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/logging"
	"whatsapp-automation/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound             = errors.New("record not found")
	ErrVersionConflict      = errors.New("conversation version conflict")
	ErrDuplicateMessage     = errors.New("message already stored")
	ErrDefaultChatbotExists = errors.New("workspace already has a default chatbot")
	ErrTriggerExists        = errors.New("trigger already used by another chatbot")
)

// Open connects to the configured database and runs the auto migration.
func Open(cfg *config.Config, log *logging.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(gormLevel(log))}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
		}
	case "sqlite", "":
		db, err = OpenSQLite(cfg.DBPath, gormCfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	log.Info().Str("driver", cfg.DBDriver).Msg("Connected to database")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info().Msg("Database migration completed")
	return db, nil
}

// OpenSQLite opens a SQLite database. The pool is pinned to one connection so
// writers queue instead of failing with "database is locked".
func OpenSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}
	db, err := gorm.Open(sqlite.Open(path), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to SQLite at %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Chatbot{},
		&models.Conversation{},
		&models.Message{},
		&models.AutomationSettings{},
		&models.AutomationLog{},
		&models.Channel{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration: %w", err)
	}
	return nil
}

func gormLevel(log *logging.Logger) logger.LogLevel {
	switch {
	case log.Level() == zerolog.Disabled:
		return logger.Silent
	case log.Level() <= zerolog.DebugLevel:
		return logger.Info
	case log.Level() <= zerolog.WarnLevel:
		return logger.Warn
	default:
		return logger.Error
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
