/**
 * @description
 * Script to delete a linkage record so a test identity can go through a provider's
 * onboarding again from the first step. It only removes the local record; the vendor
 * side account is left as is.
 *
 * Usage:
 *   go run ./cmd/reset-linkage <provider> <identity>
 *
 * Example:
 *   go run ./cmd/reset-linkage wyre 5f1c2d9e-7a41-4f0e-9a55-1f3c0b2e6d10
 *
 * @notes
 * - Refuses to run unless APP_ENV is development.
 */
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kash/onboarding-service/internal/config"
	"github.com/kash/onboarding-service/internal/crypto"
	"github.com/kash/onboarding-service/internal/domain"
	"github.com/kash/onboarding-service/internal/store"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Println("Usage: go run ./cmd/reset-linkage <provider> <identity>")
		fmt.Printf("Providers: %s\n", providerList())
		os.Exit(1)
	}

	provider, ok := parseProvider(os.Args[1])
	if !ok {
		log.Fatalf("unknown provider %q, expected one of: %s", os.Args[1], providerList())
	}
	identity := os.Args[2]

	for _, f := range []string{"../.env", ".env"} {
		_ = godotenv.Load(f)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.IsDevelopment() {
		log.Fatalf("Refusing to reset linkage records with APP_ENV=%s", cfg.AppEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Pool.Close()

	keys, err := crypto.NewKeyring(map[domain.Provider]string{
		domain.ProviderPrimeTrust:         cfg.PrimeTrustMasterKey,
		domain.ProviderPrimeTrustBusiness: cfg.PrimeTrustMasterKey,
		domain.ProviderBaanx:              cfg.BaanxMasterKey,
		domain.ProviderWyre:               cfg.WyreMasterKey,
		domain.ProviderSolaris:            cfg.SolarisMasterKey,
	})
	if err != nil {
		log.Fatalf("Failed to build keyring: %v", err)
	}
	repo := store.NewLinkageRepository(db, keys)

	fmt.Printf("Fetching %s linkage for identity: %s\n", provider, identity)
	l, err := repo.GetByIdentity(ctx, provider, identity)
	if err != nil {
		log.Fatalf("Failed to fetch linkage: %v", err)
	}

	fmt.Printf("Linkage Details:\n")
	fmt.Printf("  Provider: %s\n", l.Provider)
	fmt.Printf("  Identity: %s\n", l.Identity)
	fmt.Printf("  Step: %s\n", l.CurrentStep)
	fmt.Printf("  Account: %s\n", orNone(l.ExternalAccountID))
	fmt.Printf("  Contact: %s\n", orNone(l.ExternalContactID))
	fmt.Printf("  KYC reference: %s\n", orNone(l.KycReference))
	fmt.Printf("  Created: %s\n", l.CreatedAt.Format(time.RFC3339))

	fmt.Printf("\nAre you sure you want to delete this linkage? (yes/no): ")
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	if strings.TrimSpace(answer) != "yes" {
		fmt.Println("Reset cancelled.")
		os.Exit(0)
	}

	if err := repo.Delete(ctx, provider, identity); err != nil {
		log.Fatalf("Failed to delete linkage: %v", err)
	}
	fmt.Printf("Deleted %s linkage for %s. The identity can onboard again.\n", provider, identity)
}

func parseProvider(s string) (domain.Provider, bool) {
	for _, p := range domain.Providers {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

func providerList() string {
	names := make([]string, len(domain.Providers))
	for i, p := range domain.Providers {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
