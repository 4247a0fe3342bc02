package domain

import "time"

// Service represents a service listing offered in the catalog.
type Service struct {
	ID                    int64
	Name                  string
	Description           string
	Price                 int64
	ImagePath             string
	City                  string
	Country               string
	IsActive              bool
	IsAvailableInLocation bool
	CreatedAt             time.Time
}

// Visible reports whether the listing may be offered to users.
func (s *Service) Visible() bool {
	return s != nil && s.IsActive && s.IsAvailableInLocation
}
