package main

import (
	"log"

	"care-connect-be/internal/config"
	"care-connect-be/internal/model"
	"care-connect-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.PoolConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    2,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Verbose:         true,
	})
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting GORM Migration...")

	// 3. Pre-Migration: Extensions
	log.Println("Step 1: Setting up Extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to create pgcrypto extension: %v. Continuing...", err)
	}

	// 4. AutoMigrate All Models
	log.Println("Step 2: Running AutoMigrate...")
	models := []interface{}{
		&model.Profile{},
		&model.Membership{},
		&model.Connection{},
		&model.ConnectionUnlock{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 5. Post-Migration: constraints GORM tags cannot express
	log.Println("Step 3: Applying constraints and indexes...")
	postSQL := []string{
		// one live connection per unordered pair; the repository pre-check is only advisory
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_connections_live_pair
			ON connections (LEAST(from_profile_id, to_profile_id), GREATEST(from_profile_id, to_profile_id))
			WHERE status IN ('pending', 'accepted');`,
		`CREATE INDEX IF NOT EXISTS idx_connections_pending_created
			ON connections (created_at) WHERE status = 'pending';`,
		`CREATE INDEX IF NOT EXISTS idx_connections_hidden_by
			ON connections USING GIN ((metadata->'hidden_by'));`,
		`DO $$ BEGIN
			ALTER TABLE connections ADD CONSTRAINT chk_connections_status
				CHECK (status IN ('pending', 'accepted', 'declined', 'archived', 'expired'));
		EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
		`DO $$ BEGIN
			ALTER TABLE connections ADD CONSTRAINT chk_connections_distinct_parties
				CHECK (from_profile_id <> to_profile_id);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$;`,
	}
	for _, sql := range postSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Fatalf("Error: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("Migration completed successfully!")
}
