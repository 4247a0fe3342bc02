package domain

import "fmt"

// Coordinates holds a geographic point shared from the user's device.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location is either a coordinate pair or a free-text manual location.
type Location struct {
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Manual      string       `json:"manual,omitempty"`
}

// String renders the location for logging and confirmation texts.
func (l Location) String() string {
	if l.Coordinates != nil {
		return fmt.Sprintf("%.5f,%.5f", l.Coordinates.Latitude, l.Coordinates.Longitude)
	}

	return l.Manual
}
