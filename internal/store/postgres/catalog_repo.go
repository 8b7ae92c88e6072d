package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

// serviceRow and userRow are read-only views of tables owned by the catalogue
// and account services.
type serviceRow struct {
	bun.BaseModel `bun:"table:services"`

	ID          string                `bun:"id,pk"`
	Name        string                `bun:"name"`
	DurationMin int                   `bun:"duration_minutes"`
	PriceAmount decimal.Decimal       `bun:"price_amount,type:numeric"`
	Currency    string                `bun:"price_currency"`
	IsActive    bool                  `bun:"is_active"`
	AddOns      []domain.ServiceAddOn `bun:"add_ons,type:jsonb"`
}

type userRow struct {
	bun.BaseModel `bun:"table:users"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name"`
	Role string `bun:"role"`
}

type CatalogRepo struct {
	db *bun.DB
}

func NewCatalogRepo(db *bun.DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) GetService(ctx context.Context, serviceID string) (domain.Service, error) {
	var row serviceRow
	err := r.db.NewSelect().Model(&row).Where("id = ?", serviceID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Service{}, store.ErrNotFound
		}
		return domain.Service{}, err
	}
	return domain.Service{
		ID:       row.ID,
		Name:     row.Name,
		Duration: row.DurationMin,
		Price:    domain.Money{Amount: row.PriceAmount, Currency: row.Currency},
		IsActive: row.IsActive,
		AddOns:   row.AddOns,
	}, nil
}

func (r *CatalogRepo) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var row userRow
	err := r.db.NewSelect().Model(&row).Column("id", "name", "role").Where("id = ?", userID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, store.ErrNotFound
		}
		return domain.User{}, err
	}
	return domain.User{ID: row.ID, Name: row.Name, Role: domain.ActorRole(row.Role)}, nil
}
