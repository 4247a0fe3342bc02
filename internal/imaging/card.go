// Package imaging renders placeholder listing cards for services that were
// created without a photo.
package imaging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"

	"github.com/workmanhq/workman-bot/internal/domain"
)

const (
	cardWidth  = 800
	cardHeight = 400
)

// CardRenderer draws simple service cards into the configured images
// directory.
type CardRenderer struct {
	dir      string
	currency string
}

// NewCardRenderer creates a renderer writing PNG cards under dir.
func NewCardRenderer(dir, currency string) *CardRenderer {
	if currency == "" {
		currency = "Ugx"
	}
	return &CardRenderer{dir: dir, currency: currency}
}

// Render draws a card for the service and returns the path of the PNG file.
func (r *CardRenderer) Render(service *domain.Service) (string, error) {
	if service == nil {
		return "", fmt.Errorf("imaging: nil service")
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("imaging: create images dir: %w", err)
	}

	dc := gg.NewContext(cardWidth, cardHeight)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB255(33, 37, 41)
	dc.DrawStringAnchored(service.Name, cardWidth/2, 80, 0.5, 0.5)

	dc.SetRGB255(73, 80, 87)
	for i, line := range wrapText(service.Description, 70) {
		dc.DrawStringAnchored(line, cardWidth/2, 160+float64(i)*28, 0.5, 0.5)
		if i == 4 {
			break
		}
	}

	dc.SetRGB255(25, 135, 84)
	dc.DrawStringAnchored(fmt.Sprintf("%s %d", r.currency, service.Price), cardWidth/2, 340, 0.5, 0.5)

	path := filepath.Join(r.dir, fmt.Sprintf("service_%d.png", service.ID))
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("imaging: save card: %w", err)
	}

	return path, nil
}

func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) > width {
			lines = append(lines, current)
			current = word
			continue
		}
		current += " " + word
	}

	return append(lines, current)
}
