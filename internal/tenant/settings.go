package tenant

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hallbook/hallbook/internal/money"
	"github.com/hallbook/hallbook/internal/platform/cache"
	"github.com/hallbook/hallbook/internal/platform/db"
)

// DefaultQoyodBaseURL is used when a tenant leaves the base URL empty.
const DefaultQoyodBaseURL = "https://api.qoyod.com/2.0"

// AccountingSettings is the typed per-tenant accounting configuration.
type AccountingSettings struct {
	Enabled               bool            `json:"enabled"`
	AutoSync              bool            `json:"auto_sync"`
	APIKey                string          `json:"api_key" validate:"required_if=Enabled true"`
	BaseURL               string          `json:"base_url" validate:"omitempty,url"`
	DefaultBankAccountID  string          `json:"default_bank_account_id"`
	DefaultSalesAccountID string          `json:"default_sales_account_id"`
	VATPercentage         decimal.Decimal `json:"vat_percentage"`
}

var settingsValidator = validator.New()

// Validate checks the settings once at load time.
func (s AccountingSettings) Validate() error {
	if err := settingsValidator.Struct(s); err != nil {
		return fmt.Errorf("tenant: invalid accounting settings: %w", err)
	}
	if s.VATPercentage.IsNegative() || s.VATPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("tenant: vat percentage must be between 0 and 100")
	}
	return nil
}

// AutoSyncEnabled reports whether mutations should be mirrored automatically.
func (s AccountingSettings) AutoSyncEnabled() bool {
	return s.Enabled && s.AutoSync
}

// RemoteBaseURL returns the configured base URL or the public default.
func (s AccountingSettings) RemoteBaseURL() string {
	if s.BaseURL == "" {
		return DefaultQoyodBaseURL
	}
	return s.BaseURL
}

// DefaultSettings is what a tenant without a settings row gets.
func DefaultSettings() AccountingSettings {
	return AccountingSettings{VATPercentage: decimal.NewFromInt(money.DefaultVATPercentage)}
}

// SettingsProvider exposes validated settings per tenant.
type SettingsProvider interface {
	Accounting(ctx context.Context, ownerID int64) (AccountingSettings, error)
}

// SettingsRepository reads tenant_settings.
type SettingsRepository struct {
	db db.DBTX
}

// NewSettingsRepository builds the repository.
func NewSettingsRepository(conn db.DBTX) *SettingsRepository {
	return &SettingsRepository{db: conn}
}

// Load returns the stored settings or the defaults when none are stored.
func (r *SettingsRepository) Load(ctx context.Context, ownerID int64) (AccountingSettings, error) {
	s := DefaultSettings()
	err := r.db.QueryRow(ctx, `
		SELECT qoyod_enabled, qoyod_auto_sync, qoyod_api_key, qoyod_base_url,
		       qoyod_bank_account_id, qoyod_sales_account_id, vat_percentage
		FROM tenant_settings
		WHERE owner_id = $1`, ownerID).Scan(
		&s.Enabled, &s.AutoSync, &s.APIKey, &s.BaseURL,
		&s.DefaultBankAccountID, &s.DefaultSalesAccountID, &s.VATPercentage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultSettings(), nil
		}
		return AccountingSettings{}, fmt.Errorf("tenant: load settings: %w", err)
	}
	return s, nil
}

// SettingsLoader is the storage side of SettingsStore.
type SettingsLoader interface {
	Load(ctx context.Context, ownerID int64) (AccountingSettings, error)
}

// SettingsStore validates settings and caches them in Redis.
type SettingsStore struct {
	loader SettingsLoader
	cache  *cache.JSON
}

// NewSettingsStore builds the store. A nil cache reads through every time.
func NewSettingsStore(loader SettingsLoader, c *cache.JSON) *SettingsStore {
	return &SettingsStore{loader: loader, cache: c}
}

// Accounting implements SettingsProvider.
func (s *SettingsStore) Accounting(ctx context.Context, ownerID int64) (AccountingSettings, error) {
	var out AccountingSettings
	key := s.cache.Key("settings", "accounting", strconv.FormatInt(ownerID, 10))
	err := s.cache.Fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
		loaded, err := s.loader.Load(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if err := loaded.Validate(); err != nil {
			return nil, err
		}
		return loaded, nil
	})
	if err != nil {
		return AccountingSettings{}, err
	}
	return out, nil
}

// StaticSettings serves fixed settings, for tests and single-tenant setups.
type StaticSettings map[int64]AccountingSettings

// Accounting implements SettingsProvider.
func (s StaticSettings) Accounting(_ context.Context, ownerID int64) (AccountingSettings, error) {
	if v, ok := s[ownerID]; ok {
		return v, nil
	}
	return DefaultSettings(), nil
}
