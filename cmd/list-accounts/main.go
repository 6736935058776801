package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/crypto"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/repository/postgres"
)

// Lists every tenant's connected shops with token expiry. Tokens are never printed.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cipher, err := crypto.NewTokenCipher(cfg.Security.TokenEncryptionKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid TOKEN_ENCRYPTION_KEY: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, cipher, logger)
	ctx := context.Background()

	tenants, err := repos.Tenant.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list tenants: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("📋 Connected marketplace shops:")
	now := time.Now()
	var count int
	for _, t := range tenants {
		for _, platform := range domain.Platforms {
			accounts, err := repos.BusinessAccount.ListByTenantID(ctx, t.ID, platform)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to list %s accounts of %s: %v\n", platform, t.Name, err)
				os.Exit(1)
			}
			for _, a := range accounts {
				count++
				expiry := "never"
				if a.TokenExpiresAt != nil {
					expiry = a.TokenExpiresAt.Format("2006-01-02 15:04")
					if a.TokenExpiresAt.Before(now) {
						expiry += " (expired)"
					}
				}
				fmt.Printf("  [%s] %s  shop %s %q  status=%s  token expires %s\n",
					t.Name, platform, a.ShopID, a.ShopName, a.Status, expiry)
			}
		}
	}
	if count == 0 {
		fmt.Println("  No shops connected yet.")
	}
}
