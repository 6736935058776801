package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/repository"
	"github.com/jafarshop/sellerhub/internal/repository/postgres"
)

func main() {
	nameFlag := flag.String("name", "", "Tenant display name")
	apiKeyFlag := flag.String("api-key", "", "API key for this tenant (save it; it cannot be retrieved later)")
	flag.Parse()

	var tenantName, apiKey string
	if *nameFlag != "" && *apiKeyFlag != "" {
		tenantName = *nameFlag
		apiKey = *apiKeyFlag
	} else if flag.NArg() >= 2 {
		tenantName = flag.Arg(0)
		apiKey = flag.Arg(1)
	} else {
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/create-tenant --name \"Tenant Name\" --api-key \"your-api-key\"")
		fmt.Println("  go run ./cmd/create-tenant \"Tenant Name\" \"your-api-key\"")
		os.Exit(1)
	}
	// Trim so the stored hash matches what the server receives (AuthMiddleware trims the Bearer token)
	apiKey = strings.TrimSpace(apiKey)
	tenantName = strings.TrimSpace(tenantName)
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "Error: API key cannot be empty after trimming.\n")
		os.Exit(1)
	}

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

	tenant, err := repository.NewTenant(tenantName, apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid tenant: %v\n", err)
		os.Exit(1)
	}

	// tenants hold no marketplace tokens, so no cipher is needed here
	repos := postgres.NewRepositories(db, nil, logger)

	if err := repos.Tenant.Create(context.Background(), tenant); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create tenant: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Tenant created successfully!\n\n")
	fmt.Printf("Tenant ID: %s\n", tenant.ID.String())
	fmt.Printf("Tenant Name: %s\n", tenant.Name)
	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("\n⚠️  IMPORTANT: Save this API key securely! You won't be able to see it again.\n")
	fmt.Printf("\nUse this API key in the Authorization header:\n")
	fmt.Printf("Authorization: Bearer %s\n", apiKey)
}
