package main

import (
	"errors"
	"log"

	"care-connect-be/internal/config"
	"care-connect-be/internal/model"
	"care-connect-be/internal/pkg/serverutils"
	"care-connect-be/pkg/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type demoProfile struct {
	profile    model.Profile
	membership string
}

func strPtr(s string) *string { return &s }

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, database.PoolConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    2,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Seeding demo profiles...")

	// Fixed ids so tokens printed here stay valid across reseeds
	demos := []demoProfile{
		{
			profile: model.Profile{
				Id:          uuid.MustParse("7f3c2b1e-0000-4000-8000-000000000001"),
				AccountId:   uuid.MustParse("7f3c2b1e-0000-4000-8000-0000000000a1"),
				Type:        "family",
				DisplayName: "Jane Smith",
				Phone:       strPtr("+1 555 0100"),
				Email:       strPtr("jane.smith@example.com"),
			},
		},
		{
			profile: model.Profile{
				Id:          uuid.MustParse("7f3c2b1e-0000-4000-8000-000000000002"),
				AccountId:   uuid.MustParse("7f3c2b1e-0000-4000-8000-0000000000a2"),
				Type:        "organization",
				DisplayName: "Sunrise Home Care",
				Phone:       strPtr("+1 555 0199"),
				Email:       strPtr("intake@sunrise.example.com"),
				Website:     strPtr("https://sunrise.example.com"),
			},
			membership: "active",
		},
		{
			profile: model.Profile{
				Id:          uuid.MustParse("7f3c2b1e-0000-4000-8000-000000000003"),
				AccountId:   uuid.MustParse("7f3c2b1e-0000-4000-8000-0000000000a3"),
				Type:        "caregiver",
				DisplayName: "Maria Lopez",
				Email:       strPtr("maria.lopez@example.com"),
			},
			membership: "free",
		},
	}

	for _, d := range demos {
		var existing model.Profile
		err := db.Where("id = ?", d.profile.Id).First(&existing).Error
		switch {
		case err == nil:
			log.Printf("Profile '%s' already exists, skipping...", d.profile.DisplayName)
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := db.Create(&d.profile).Error; err != nil {
				log.Printf("Error creating profile '%s': %v", d.profile.DisplayName, err)
				continue
			}
			log.Printf("Created profile: %s (%s)", d.profile.DisplayName, d.profile.Type)
		default:
			log.Fatalf("Error: lookup failed: %v", err)
		}

		if d.membership != "" {
			m := model.Membership{AccountId: d.profile.AccountId, Status: d.membership, BillingCycle: "none"}
			if d.membership == "active" {
				m.BillingCycle = "monthly"
			}
			if err := db.Where("account_id = ?", m.AccountId).FirstOrCreate(&m).Error; err != nil {
				log.Printf("Error creating membership for '%s': %v", d.profile.DisplayName, err)
			}
		}

		if cfg.App.JwtSecret != "" {
			token, err := serverutils.SignProfileToken(cfg.App.JwtSecret, d.profile.Id)
			if err != nil {
				log.Printf("Error signing token: %v", err)
				continue
			}
			log.Printf("  token for %s: %s", d.profile.DisplayName, token)
		}
	}

	log.Println("Seeding completed!")
}
