package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hallbook/hallbook/internal/app"
	"github.com/hallbook/hallbook/internal/platform/db"
	"github.com/hallbook/hallbook/internal/tenant"
)

func main() {
	ownerID := flag.Int64("owner", 1, "tenant owner user id")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed bearer token")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, 2)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Seeding tenant", *ownerID)
	if err := seedTenant(ctx, pool, *ownerID); err != nil {
		log.Fatalf("seed tenant: %v", err)
	}
	token, err := tenant.NewJWTResolver(cfg.JWTSecret).IssueToken(tenant.Identity{UserID: *ownerID, Role: tenant.RoleOwner}, *tokenTTL)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
	fmt.Println("  Authorization: Bearer " + token)
}

func seedTenant(ctx context.Context, pool *pgxpool.Pool, ownerID int64) error {
	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO subscriptions (owner_id, status, trial_ends_at)
			VALUES ($1, 'TRIAL', now() + interval '30 days')
			ON CONFLICT (owner_id) DO NOTHING`, ownerID); err != nil {
			return fmt.Errorf("subscription: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO tenant_settings (owner_id) VALUES ($1)
			ON CONFLICT (owner_id) DO NOTHING`, ownerID); err != nil {
			return fmt.Errorf("settings: %w", err)
		}

		halls := []struct {
			name     string
			capacity int
		}{
			{"Main Hall", 400},
			{"Garden Hall", 150},
		}
		for _, h := range halls {
			var token string
			err := tx.QueryRow(ctx, `
				INSERT INTO halls (owner_id, name, capacity)
				SELECT $1, $2, $3
				WHERE NOT EXISTS (SELECT 1 FROM halls WHERE owner_id = $1 AND name = $2)
				RETURNING public_token::text`, ownerID, h.name, h.capacity).Scan(&token)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				fmt.Printf("  hall %q already present\n", h.name)
			case err != nil:
				return fmt.Errorf("hall %s: %w", h.name, err)
			default:
				fmt.Printf("  hall %q public link token %s\n", h.name, token)
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO customers (owner_id, name, phone, email)
			VALUES ($1, 'Walk-in Customer', '0500000000', 'walkin@example.com')
			ON CONFLICT (owner_id, phone) DO NOTHING`, ownerID); err != nil {
			return fmt.Errorf("customer: %w", err)
		}
		return nil
	})
}
