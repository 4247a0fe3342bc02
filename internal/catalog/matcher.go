// Package catalog resolves user locations to the listings offered there.
package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/workmanhq/workman-bot/internal/domain"
	"github.com/workmanhq/workman-bot/internal/repository"
)

// Matcher filters the service catalog down to listings a user can order at a
// given location. It is side-effect free and preserves store order.
type Matcher struct {
	services repository.ServiceRepository
	log      *slog.Logger
}

// NewMatcher constructs a Matcher over the given service repository.
func NewMatcher(services repository.ServiceRepository, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}

	return &Matcher{
		services: services,
		log:      log,
	}
}

// FindAvailable returns the listings scoped to city and country (matched
// exactly, as stored) that are both operator-active and available in their
// location. Empty city and country return the unscoped visible set.
func (m *Matcher) FindAvailable(ctx context.Context, city, country string) ([]domain.Service, error) {
	services, err := m.services.ListByLocation(ctx, city, country)
	if err != nil {
		return nil, fmt.Errorf("list services by location: %w", err)
	}

	available := make([]domain.Service, 0, len(services))
	for _, service := range services {
		if service.IsActive && service.IsAvailableInLocation {
			available = append(available, service)
		}
	}

	m.log.Debug("matched services",
		slog.String("city", city),
		slog.String("country", country),
		slog.Int("total", len(services)),
		slog.Int("available", len(available)),
	)

	return available, nil
}
