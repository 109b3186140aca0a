// Command migrate_data copies a SQLite database into PostgreSQL.
package main

import (
	"fmt"
	"os"

	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/database"
	"whatsapp-automation/internal/logging"
	"whatsapp-automation/internal/models"

	"gorm.io/gorm"
)

const batchSize = 200

func main() {
	cfg := config.LoadConfig()
	log := logging.New(nil, cfg.LogLevel)

	if cfg.DBDriver != "postgres" {
		log.Fatal().Str("driver", cfg.DBDriver).Msg("DB_DRIVER must be postgres for the destination")
	}

	// 1. Connect to SQLite (Source)
	sqliteDB, err := database.OpenSQLite(cfg.DBPath, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to SQLite")
	}
	log.Info().Str("path", cfg.DBPath).Msg("Connected to SQLite")

	// 2. Connect to PostgreSQL (Destination), migrating the schema
	pgDB, err := database.Open(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}

	log.Info().Msg("Starting data migration...")

	steps := []struct {
		table string
		copy  func(src, dst *gorm.DB) (int, error)
	}{
		{"channels", copyTable[models.Channel]},
		{"chatbots", copyTable[models.Chatbot]},
		{"automation_settings", copyTable[models.AutomationSettings]},
		{"conversations", copyTable[models.Conversation]},
		{"messages", copyTable[models.Message]},
		{"automation_logs", copyTable[models.AutomationLog]},
	}

	failed := false
	for _, step := range steps {
		n, err := step.copy(sqliteDB, pgDB)
		if err != nil {
			log.Error().Err(err).Str("table", step.table).Msg("Error migrating table")
			failed = true
			continue
		}
		log.Info().Str("table", step.table).Int("rows", n).Msg("Migrated table")
	}

	// automation_logs is the only table with a serial id
	if err := syncSequence(pgDB, "automation_logs"); err != nil {
		log.Error().Err(err).Msg("Error syncing automation_logs sequence")
		failed = true
	}

	if failed {
		os.Exit(1)
	}
	log.Info().Msg("Migration completed!")
}

// copyTable reads every row of T from src and inserts it into dst in one
// transaction.
func copyTable[T any](src, dst *gorm.DB) (int, error) {
	var rows []T
	if err := src.Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	err := dst.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, batchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	return len(rows), nil
}

func syncSequence(db *gorm.DB, table string) error {
	query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
	return db.Exec(query).Error
}
