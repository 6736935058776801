// marketplace-auth walks through a platform's OAuth flow by hand: print the
// authorization URL, then exchange the code the platform redirects back with.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/config"
	"github.com/jafarshop/sellerhub/internal/crypto"
	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/marketplace"
	"github.com/jafarshop/sellerhub/internal/service"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "marketplace-auth",
	Short: "Authorize marketplace shops from the command line",
	Long: `Authorize marketplace shops from the command line.

Credentials are read from the environment and from .env files, the same
variables the server uses (SHOPEE_PARTNER_ID, TIKTOK_APP_KEY, ...).

  1. marketplace-auth auth-url shopee
  2. Open the URL, authorize, and copy code and shop_id from the redirect
  3. marketplace-auth exchange shopee --code <code> --shop-id <shop_id>`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		for _, f := range envFiles {
			// missing files are fine, the environment may already be set
			_ = godotenv.Load(f)
		}
		return nil
	},
}

var authURLCmd = &cobra.Command{
	Use:   "auth-url <platform>",
	Short: "Print the authorization URL for a platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := loadProvider(args[0])
		if err != nil {
			return err
		}
		state, err := service.NewStateToken()
		if err != nil {
			return err
		}
		authURL, err := provider.AuthURL(state)
		if err != nil {
			return err
		}

		fmt.Printf("Step 1: Authorize the app\n\n")
		fmt.Printf("Visit this URL in your browser:\n%s\n\n", authURL)
		fmt.Printf("State: %s\n\n", state)
		fmt.Printf("Then run:\n")
		fmt.Printf("marketplace-auth exchange %s --code <code> --shop-id <shop_id>\n", provider.Platform())
		return nil
	},
}

var (
	code         string
	shopID       string
	refreshToken string
)

var exchangeCmd = &cobra.Command{
	Use:   "exchange <platform>",
	Short: "Exchange an authorization code for tokens",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := loadProvider(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		tokens, err := provider.ExchangeCode(ctx, code, shopID)
		if err != nil {
			return fmt.Errorf("failed to get access token: %w", err)
		}
		printTokens(provider.Platform(), tokens)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <platform>",
	Short: "Refresh a shop's access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := loadProvider(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		tokens, err := provider.RefreshToken(ctx, shopID, refreshToken)
		if err != nil {
			return fmt.Errorf("failed to refresh token: %w", err)
		}
		printTokens(provider.Platform(), tokens)
		return nil
	},
}

var genKeyCmd = &cobra.Command{
	Use:   "gen-key",
	Short: "Generate a TOKEN_ENCRYPTION_KEY",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Printf("TOKEN_ENCRYPTION_KEY=%s\n", key)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "env files to load before reading configuration")

	exchangeCmd.Flags().StringVar(&code, "code", "", "authorization code from the redirect")
	exchangeCmd.Flags().StringVar(&shopID, "shop-id", "", "shop id from the redirect (Shopee)")
	_ = exchangeCmd.MarkFlagRequired("code")

	refreshCmd.Flags().StringVar(&shopID, "shop-id", "", "shop id")
	refreshCmd.Flags().StringVar(&refreshToken, "refresh-token", "", "current refresh token")
	_ = refreshCmd.MarkFlagRequired("refresh-token")

	rootCmd.AddCommand(authURLCmd, exchangeCmd, refreshCmd, genKeyCmd)
}

func loadProvider(name string) (marketplace.Provider, error) {
	platform, ok := domain.ParsePlatform(name)
	if !ok {
		return nil, fmt.Errorf("unknown platform %q", name)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, _ := zap.NewDevelopment()
	registry, err := marketplace.NewRegistry(cfg, marketplace.Options{
		HTTPClient: &http.Client{Timeout: cfg.OAuth.HTTPTimeout},
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	return registry.Get(platform)
}

func printTokens(platform domain.Platform, tokens *marketplace.TokenSet) {
	fmt.Printf("✅ Access Token obtained!\n\n")
	fmt.Printf("Platform:      %s\n", platform)
	if tokens.ShopID != "" {
		fmt.Printf("Shop ID:       %s\n", tokens.ShopID)
	}
	if tokens.ShopName != "" {
		fmt.Printf("Shop Name:     %s\n", tokens.ShopName)
	}
	fmt.Printf("Access Token:  %s\n", tokens.AccessToken)
	fmt.Printf("Refresh Token: %s\n", tokens.RefreshToken)
	if tokens.ExpiresIn > 0 {
		fmt.Printf("Expires At:    %s\n", time.Now().Add(tokens.ExpiresIn).UTC().Format(time.RFC3339))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
