package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/workmanhq/workman-bot/internal/domain"
	apperrors "github.com/workmanhq/workman-bot/internal/errors"
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe conversation transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

var orderRecorder = func(status string) {}

// RegisterOrderRecorder allows external packages to observe order placement outcomes.
func RegisterOrderRecorder(recorder func(status string)) {
	if recorder == nil {
		orderRecorder = func(string) {}
		return
	}

	orderRecorder = recorder
}

// Matcher resolves a location to the listings currently offered there.
type Matcher interface {
	FindAvailable(ctx context.Context, city, country string) ([]domain.Service, error)
}

// CatalogStore is the read side of the service catalog used at confirmation time.
type CatalogStore interface {
	FindByID(ctx context.Context, id int64) (*domain.Service, error)
}

// OrderStore persists confirmed orders.
type OrderStore interface {
	Create(ctx context.Context, serviceID, userID int64) (*domain.Order, error)
}

// Messenger sends outbound messages. Choices are rendered as reply buttons; an
// empty choice list removes any visible keyboard. Delivery is best effort: the
// implementation logs failures and the engine never rolls back on them.
type Messenger interface {
	SendText(ctx context.Context, userID int64, text string, choices ...string) error
	SendPhoto(ctx context.Context, userID int64, imageRef, caption string, choices ...string) error
}

// Inbound is one message received from a user.
type Inbound struct {
	Text        string
	Coordinates *domain.Coordinates
}

// Engine drives the per-user ordering conversation. It owns session state and
// serializes handling per user; collaborators are injected once at construction.
type Engine struct {
	storage   Storage
	matcher   Matcher
	catalog   CatalogStore
	orders    OrderStore
	messenger Messenger
	texts     Texts
	currency  string
	log       *slog.Logger
	locks     *userLocks
}

// NewEngine constructs the conversation engine.
func NewEngine(
	storage Storage,
	matcher Matcher,
	catalog CatalogStore,
	orders OrderStore,
	messenger Messenger,
	texts Texts,
	currency string,
	log *slog.Logger,
) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if currency == "" {
		currency = "Ugx"
	}

	return &Engine{
		storage:   storage,
		matcher:   matcher,
		catalog:   catalog,
		orders:    orders,
		messenger: messenger,
		texts:     texts,
		currency:  currency,
		log:       log,
		locks:     newUserLocks(),
	}
}

// HandleMessage applies one inbound message to the user's session. Every path
// out of a non-terminal state produces exactly one outbound send; user-visible
// error handling happens here, and the returned error is for reporting only.
func (e *Engine) HandleMessage(ctx context.Context, userID int64, in Inbound) error {
	e.locks.Lock(userID)
	defer e.locks.Unlock(userID)

	text := strings.TrimSpace(in.Text)

	session, err := e.storage.GetSession(ctx, userID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		e.send(ctx, userID, e.texts.BackendUnavailable)
		return apperrors.NewStoreError(err)
	}

	if text == CommandCancel {
		return e.cancel(ctx, userID, session)
	}

	if session == nil {
		return e.handleEntry(ctx, userID, text)
	}

	switch session.State {
	case StateAwaitingDescription:
		return e.handleDescription(ctx, session, text)
	case StateAwaitingLocation:
		return e.handleLocation(ctx, session, in, text)
	case StateAwaitingSelection:
		return e.handleSelection(ctx, session, text)
	case StateAwaitingConfirmation:
		return e.handleConfirmation(ctx, session, text)
	default:
		// unknown persisted state, drop the session and restart
		_ = e.storage.ClearSession(ctx, session.UserID)
		e.send(ctx, userID, e.texts.StartHint)
		return apperrors.NewStateError(fmt.Sprintf("unknown session state %q", session.State))
	}
}

// handleEntry covers users with no session: only the start command or the
// trigger button opens a conversation.
func (e *Engine) handleEntry(ctx context.Context, userID int64, text string) error {
	if text != CommandStart && text != TriggerLabel {
		e.send(ctx, userID, e.texts.StartHint)
		return nil
	}

	session := &Session{
		UserID: userID,
		State:  StateAwaitingDescription,
	}

	if err := e.storage.SetSession(ctx, userID, session); err != nil {
		e.send(ctx, userID, e.texts.BackendUnavailable)
		return apperrors.NewStoreError(err)
	}
	transitionRecorder("none", string(StateAwaitingDescription))

	if text == CommandStart {
		e.send(ctx, userID, e.texts.Welcome, TriggerLabel)
		return nil
	}

	e.send(ctx, userID, e.texts.DescribePrompt)
	return nil
}

func (e *Engine) handleDescription(ctx context.Context, session *Session, text string) error {
	if text == TriggerLabel {
		// the trigger button was pressed (again); re-send the prompt and stay
		e.send(ctx, session.UserID, e.texts.DescribePrompt)
		return nil
	}

	if text == "" || strings.HasPrefix(text, "/") {
		e.send(ctx, session.UserID, e.texts.EmptyInput)
		return apperrors.NewValidationError("empty or command text for need description")
	}

	session.NeedDescription = text
	if err := e.transition(ctx, session, StateAwaitingLocation); err != nil {
		return err
	}

	e.send(ctx, session.UserID, e.texts.LocationPrompt, ShareLocationLabel, ManualLocationLabel)
	return nil
}

func (e *Engine) handleLocation(ctx context.Context, session *Session, in Inbound, text string) error {
	if in.Coordinates == nil && text == ManualLocationLabel {
		e.send(ctx, session.UserID, e.texts.ManualPrompt)
		return nil
	}

	if in.Coordinates == nil && (text == "" || strings.HasPrefix(text, "/")) {
		e.send(ctx, session.UserID, e.texts.ManualPrompt)
		return apperrors.NewValidationError("empty or command text for location")
	}

	location := &domain.Location{}
	if in.Coordinates != nil {
		coords := *in.Coordinates
		location.Coordinates = &coords
	} else {
		location.Manual = text
	}
	session.Location = location

	city, country := splitCityCountry(location)

	services, err := e.matcher.FindAvailable(ctx, city, country)
	if err != nil {
		e.terminate(ctx, session, e.texts.BackendUnavailable)
		return apperrors.NewStoreError(err)
	}

	if len(services) == 0 {
		e.terminate(ctx, session, e.texts.NoServices)
		return nil
	}

	session.Candidates = buildCandidates(services)
	if err := e.transition(ctx, session, StateAwaitingSelection); err != nil {
		return err
	}

	labels := make([]string, 0, len(session.Candidates))
	for _, candidate := range session.Candidates {
		labels = append(labels, candidate.Label)
	}

	e.send(ctx, session.UserID, e.texts.SelectPrompt, labels...)
	return nil
}

func (e *Engine) handleSelection(ctx context.Context, session *Session, text string) error {
	candidate, ok := session.CandidateByLabel(text)
	if !ok {
		e.send(ctx, session.UserID, e.texts.SelectNotFound)
		return apperrors.NewValidationError(fmt.Sprintf("no candidate matches label %q", text))
	}

	session.SelectedServiceID = candidate.ServiceID
	if err := e.transition(ctx, session, StateAwaitingConfirmation); err != nil {
		return err
	}

	caption := fmt.Sprintf(
		e.texts.ConfirmPrompt,
		candidate.Name,
		e.currency,
		candidate.Price,
		candidate.Description,
	)

	if candidate.ImagePath != "" {
		if err := e.messenger.SendPhoto(ctx, session.UserID, candidate.ImagePath, caption, ConfirmLabel, DeclineLabel); err != nil {
			e.logDelivery(session.UserID, err)
		}
		return nil
	}

	e.send(ctx, session.UserID, caption, ConfirmLabel, DeclineLabel)
	return nil
}

func (e *Engine) handleConfirmation(ctx context.Context, session *Session, text string) error {
	switch text {
	case ConfirmLabel:
		return e.placeOrder(ctx, session)
	case DeclineLabel:
		e.terminate(ctx, session, e.texts.OrderDeclined)
		return nil
	default:
		e.send(ctx, session.UserID, e.texts.ConfirmHint, ConfirmLabel, DeclineLabel)
		return apperrors.NewValidationError(fmt.Sprintf("unexpected confirmation reply %q", text))
	}
}

// placeOrder writes the order after re-validating the selection against the
// session's candidate batch and the live catalog. A selection that was never
// offered in this session can not produce an order.
func (e *Engine) placeOrder(ctx context.Context, session *Session) error {
	candidate, ok := session.SelectedCandidate()
	if !ok {
		e.terminate(ctx, session, e.texts.ServiceGone)
		return apperrors.NewStateError("confirmed selection missing from session candidates")
	}

	if _, err := e.catalog.FindByID(ctx, candidate.ServiceID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.terminate(ctx, session, e.texts.ServiceGone)
			return apperrors.NewNotFoundError(fmt.Sprintf("service %d vanished before order creation", candidate.ServiceID))
		}

		e.terminate(ctx, session, e.texts.OrderFailed)
		return apperrors.NewStoreError(err)
	}

	order, err := e.orders.Create(ctx, candidate.ServiceID, session.UserID)
	if err != nil {
		orderRecorder("failed")
		e.terminate(ctx, session, e.texts.OrderFailed)
		return apperrors.NewStoreError(err)
	}

	orderRecorder(string(order.Status))
	e.log.Info("order placed",
		slog.Int64("order_id", order.ID),
		slog.Int64("service_id", order.ServiceID),
		slog.Int64("user_id", order.UserID),
	)

	e.terminate(ctx, session, e.texts.OrderPlaced)
	return nil
}

func (e *Engine) cancel(ctx context.Context, userID int64, session *Session) error {
	if session != nil {
		e.terminate(ctx, session, e.texts.Cancelled)
		return nil
	}

	e.send(ctx, userID, e.texts.Cancelled)
	return nil
}

// transition validates and persists a state change, clearing candidate
// snapshots when the selection step is left behind.
func (e *Engine) transition(ctx context.Context, session *Session, to State) error {
	from := session.State
	if !IsTransitionAllowed(from, to) {
		e.log.Warn("invalid conversation transition",
			slog.Int64("user_id", session.UserID),
			slog.String("from", string(from)),
			slog.String("to", string(to)),
		)
		e.send(ctx, session.UserID, e.texts.BackendUnavailable)
		return apperrors.NewStateError(fmt.Sprintf("transition %s -> %s not allowed", from, to))
	}

	session.State = to
	if from == StateAwaitingSelection && to != StateAwaitingSelection && to != StateAwaitingConfirmation {
		session.Candidates = nil
	}

	if err := e.storage.SetSession(ctx, session.UserID, session); err != nil {
		e.send(ctx, session.UserID, e.texts.BackendUnavailable)
		return apperrors.NewStoreError(err)
	}

	transitionRecorder(string(from), string(to))
	return nil
}

// terminate deletes the session and sends the closing message.
func (e *Engine) terminate(ctx context.Context, session *Session, text string) {
	if err := e.storage.ClearSession(ctx, session.UserID); err != nil {
		e.log.Error("failed to clear session",
			slog.Int64("user_id", session.UserID),
			slog.Any("error", err),
		)
	}

	transitionRecorder(string(session.State), "terminated")
	e.send(ctx, session.UserID, text)
}

func (e *Engine) send(ctx context.Context, userID int64, text string, choices ...string) {
	if err := e.messenger.SendText(ctx, userID, text, choices...); err != nil {
		e.logDelivery(userID, err)
	}
}

func (e *Engine) logDelivery(userID int64, err error) {
	e.log.Error("outbound delivery failed",
		slog.Int64("user_id", userID),
		slog.Any("error", apperrors.NewDeliveryError(err)),
	)
}

// buildCandidates snapshots the matched listings and guarantees unique labels
// within the batch, suffixing the service id when two listings share a name.
func buildCandidates(services []domain.Service) []Candidate {
	nameCounts := make(map[string]int, len(services))
	for _, service := range services {
		nameCounts[service.Name]++
	}

	candidates := make([]Candidate, 0, len(services))
	for _, service := range services {
		label := service.Name
		if nameCounts[service.Name] > 1 {
			label = fmt.Sprintf("%s #%d", service.Name, service.ID)
		}

		candidates = append(candidates, Candidate{
			ServiceID:   service.ID,
			Label:       label,
			Name:        service.Name,
			Description: service.Description,
			Price:       service.Price,
			ImagePath:   service.ImagePath,
		})
	}

	return candidates
}

// splitCityCountry derives the matcher arguments from the captured location.
// Coordinates carry no place names, so they match unscoped; manual text is
// split on the first comma into city and country, as stored.
func splitCityCountry(location *domain.Location) (string, string) {
	if location == nil || location.Coordinates != nil {
		return "", ""
	}

	manual := strings.TrimSpace(location.Manual)
	if idx := strings.Index(manual, ","); idx >= 0 {
		return strings.TrimSpace(manual[:idx]), strings.TrimSpace(manual[idx+1:])
	}

	return manual, ""
}
