package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/repository/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, nil, logger)

	tenants, err := repos.Tenant.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list tenants: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Tenants (API keys are only shown when you create a tenant):")
	fmt.Println()
	if len(tenants) == 0 {
		fmt.Println("  No tenants found. Create one with:")
		fmt.Println("  go run ./cmd/create-tenant \"Tenant Name\" \"your-api-key\"")
		os.Exit(0)
	}

	for _, t := range tenants {
		active := "active"
		if !t.IsActive {
			active = "inactive"
		}
		fmt.Printf("  ID: %s  Name: %s  (%s)  Created: %s\n",
			t.ID.String(), t.Name, active, t.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println()
	fmt.Println("Use the API key you saved when creating each tenant:")
	fmt.Println("  curl -H \"Authorization: Bearer YOUR_API_KEY\" http://localhost:8080/v1/integrations/shopee/accounts")
}
