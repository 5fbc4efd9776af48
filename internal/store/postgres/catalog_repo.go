package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"vetbook/internal/domain"
	"vetbook/internal/store"
)

// ServiceCatalogRepo reads the service catalog. The booking engine never
// writes services; the catalog is maintained elsewhere.
type ServiceCatalogRepo struct {
	db *bun.DB
}

func NewServiceCatalogRepo(db *bun.DB) *ServiceCatalogRepo {
	return &ServiceCatalogRepo{db: db}
}

func (r *ServiceCatalogRepo) GetService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	var svc domain.Service
	err := r.db.NewSelect().
		Model(&svc).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Service{}, store.ErrNotFound
		}
		return domain.Service{}, err
	}
	return svc, nil
}
