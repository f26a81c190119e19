package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/visayasmed/access-management/internal/entitlement"
	"github.com/visayasmed/access-management/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample accounts and entitlements for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

		gormDB, _, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if clearData {
			if err := gormDB.Exec("DELETE FROM kv_entries").Error; err != nil {
				log.Fatalf("failed to clear entitlements: %v", err)
			}
			if err := gormDB.Exec("DELETE FROM users").Error; err != nil {
				log.Fatalf("failed to clear users: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		kv, err := selectKV(cfg, gormDB, nil)
		if err != nil {
			log.Fatalf("failed to select entitlement store: %v", err)
		}
		store := entitlement.NewStore(kv, cfg.Entitlements.DesignatedAdminEmail, logger.LoggerWrapper())

		password := "password"
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		accounts := []struct {
			Email     string
			AdminHint bool
		}{
			{cfg.Entitlements.DesignatedAdminEmail, false},
			{"it.santos@visayasmed.com.ph", true},
			{"nurse.reyes@visayasmed.com.ph", false},
		}

		ctx := context.Background()
		for _, account := range accounts {
			var exists int
			row := gormDB.Raw("SELECT 1 FROM users WHERE email = ?", account.Email).Row()
			if err := row.Scan(&exists); err == nil {
				fmt.Println("user already exists, skipping:", account.Email)
				continue
			}

			id := uuid.NewString()
			now := time.Now().UTC()
			err := gormDB.Exec(
				"INSERT INTO users (id, email, password_hash, is_active, created_at, updated_at) VALUES (?, ?, ?, true, ?, ?)",
				id, account.Email, string(hash), now, now,
			).Error
			if err != nil {
				log.Fatalf("failed to insert user %s: %v", account.Email, err)
			}

			record, err := store.ProvisionAccount(ctx, id, account.Email, account.AdminHint)
			if err != nil {
				log.Fatalf("failed to provision %s: %v", account.Email, err)
			}
			fmt.Printf("Seeded user %s (admin=%v, modules=%v)\n", account.Email, record.IsAdmin, record.Modules)
		}

		fmt.Println("Seeding complete; all passwords are", password)
	},
}
