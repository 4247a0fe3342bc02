// Package repository provides SQL-backed persistence for listings and orders.
package repository

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"log/slog"

	"github.com/workmanhq/workman-bot/internal/domain"
	apperrors "github.com/workmanhq/workman-bot/internal/errors"
)

// ServiceRepository defines persistence operations for service listings.
type ServiceRepository interface {
	Create(ctx context.Context, service *domain.Service) error
	FindByID(ctx context.Context, id int64) (*domain.Service, error)
	ListAll(ctx context.Context) ([]domain.Service, error)
	ListByLocation(ctx context.Context, city, country string) ([]domain.Service, error)
	UpdateAvailability(ctx context.Context, id int64, available bool) (*domain.Service, error)
	UpdateImage(ctx context.Context, id int64, imagePath string) error
}

type serviceRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewServiceRepository creates a new SQL-backed service repository.
func NewServiceRepository(db *sql.DB, log *slog.Logger) ServiceRepository {
	return &serviceRepository{
		db:  db,
		log: log,
	}
}

const serviceColumns = `id, name, description, price, image_path, city, country, is_active, is_available, created_at`

// Create persists a new listing and assigns its identifier.
func (r *serviceRepository) Create(ctx context.Context, service *domain.Service) error {
	const query = `
		INSERT INTO services (name, description, price, image_path, city, country, is_active, is_available, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	if err := r.db.QueryRowContext(
		ctx,
		query,
		service.Name,
		service.Description,
		service.Price,
		service.ImagePath,
		service.City,
		service.Country,
		service.IsActive,
		service.IsAvailableInLocation,
		service.CreatedAt,
	).Scan(&service.ID); err != nil {
		if r.log != nil {
			r.log.Error("failed to create service", slog.String("name", service.Name), slog.Any("error", err))
		}
		return fmt.Errorf("insert service: %w", err)
	}

	return nil
}

// FindByID retrieves a listing by its identifier.
func (r *serviceRepository) FindByID(ctx context.Context, id int64) (*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`

	var service domain.Service
	err := apperrors.WithRetry(ctx, func() error {
		err := scanService(r.db.QueryRowContext(ctx, query, id), &service)
		if err == nil || stdErrors.Is(err, sql.ErrNoRows) {
			return err
		}
		return apperrors.NewStoreError(err)
	})
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}

		if r.log != nil {
			r.log.Error("failed to fetch service", slog.Int64("service_id", id), slog.Any("error", err))
		}
		return nil, fmt.Errorf("select service by id: %w", err)
	}

	return &service, nil
}

// ListAll returns every listing in insertion order.
func (r *serviceRepository) ListAll(ctx context.Context) ([]domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services ORDER BY id`
	return r.queryServices(ctx, query)
}

// ListByLocation returns listings scoped to the given city and country, compared
// exactly as stored. Empty city and country return the full set.
func (r *serviceRepository) ListByLocation(ctx context.Context, city, country string) ([]domain.Service, error) {
	if city == "" && country == "" {
		return r.ListAll(ctx)
	}

	query := `SELECT ` + serviceColumns + ` FROM services WHERE city = $1 AND country = $2 ORDER BY id`
	return r.queryServices(ctx, query, city, country)
}

// UpdateAvailability flips the location availability flag and returns the updated listing.
func (r *serviceRepository) UpdateAvailability(ctx context.Context, id int64, available bool) (*domain.Service, error) {
	query := `
		UPDATE services
		SET is_available = $2
		WHERE id = $1
		RETURNING ` + serviceColumns

	var service domain.Service
	if err := scanService(r.db.QueryRowContext(ctx, query, id, available), &service); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}

		if r.log != nil {
			r.log.Error("failed to update service availability", slog.Int64("service_id", id), slog.Any("error", err))
		}
		return nil, fmt.Errorf("update service availability: %w", err)
	}

	return &service, nil
}

// UpdateImage records the path of a rendered listing card.
func (r *serviceRepository) UpdateImage(ctx context.Context, id int64, imagePath string) error {
	const query = `UPDATE services SET image_path = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, imagePath)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to update service image", slog.Int64("service_id", id), slog.Any("error", err))
		}
		return fmt.Errorf("update service image: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *serviceRepository) queryServices(ctx context.Context, query string, args ...any) ([]domain.Service, error) {
	var services []domain.Service

	err := apperrors.WithRetry(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return apperrors.NewStoreError(err)
		}
		defer rows.Close()

		services = services[:0]
		for rows.Next() {
			var service domain.Service
			if err := scanService(rows, &service); err != nil {
				return apperrors.NewStoreError(err)
			}
			services = append(services, service)
		}

		if err := rows.Err(); err != nil {
			return apperrors.NewStoreError(err)
		}

		return nil
	})
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to list services", slog.Any("error", err))
		}
		return nil, fmt.Errorf("select services: %w", err)
	}

	return services, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner, service *domain.Service) error {
	return row.Scan(
		&service.ID,
		&service.Name,
		&service.Description,
		&service.Price,
		&service.ImagePath,
		&service.City,
		&service.Country,
		&service.IsActive,
		&service.IsAvailableInLocation,
		&service.CreatedAt,
	)
}
