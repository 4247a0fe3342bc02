package conversation

import (
	"time"

	"github.com/workmanhq/workman-bot/internal/domain"
)

// State represents a step of the ordering conversation.
type State string

const (
	// StateAwaitingDescription indicates the user has not yet described the needed service.
	StateAwaitingDescription State = "awaiting_description"
	// StateAwaitingLocation indicates the user is expected to share or type a location.
	StateAwaitingLocation State = "awaiting_location"
	// StateAwaitingSelection indicates the user is choosing from candidate listings.
	StateAwaitingSelection State = "awaiting_selection"
	// StateAwaitingConfirmation indicates the user is confirming or declining the order.
	StateAwaitingConfirmation State = "awaiting_confirmation"
)

// Candidate is the snapshot of a listing offered to the user within one session.
// Label is what the user must echo back to select it; it is unique within a batch.
type Candidate struct {
	ServiceID   int64  `json:"service_id"`
	Label       string `json:"label"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	ImagePath   string `json:"image_path"`
}

// Session captures one user's in-progress ordering conversation. A session exists
// only while the user is mid-flow: confirmation, cancellation, and unrecoverable
// failures all delete it.
type Session struct {
	UserID            int64            `json:"user_id"`
	State             State            `json:"state"`
	NeedDescription   string           `json:"need_description,omitempty"`
	Location          *domain.Location `json:"location,omitempty"`
	Candidates        []Candidate      `json:"candidates,omitempty"`
	SelectedServiceID int64            `json:"selected_service_id,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// CandidateByLabel returns the candidate whose label exactly matches text.
func (s *Session) CandidateByLabel(text string) (Candidate, bool) {
	if s == nil {
		return Candidate{}, false
	}

	for _, candidate := range s.Candidates {
		if candidate.Label == text {
			return candidate, true
		}
	}

	return Candidate{}, false
}

// SelectedCandidate returns the snapshot matching the stored selection.
func (s *Session) SelectedCandidate() (Candidate, bool) {
	if s == nil || s.SelectedServiceID == 0 {
		return Candidate{}, false
	}

	for _, candidate := range s.Candidates {
		if candidate.ServiceID == s.SelectedServiceID {
			return candidate, true
		}
	}

	return Candidate{}, false
}
