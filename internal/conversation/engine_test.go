package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/workmanhq/workman-bot/internal/domain"
)

var errBackendDown = errors.New("backend down")

type mockMatcher struct {
	mock.Mock
}

func (m *mockMatcher) FindAvailable(ctx context.Context, city, country string) ([]domain.Service, error) {
	args := m.Called(ctx, city, country)
	services, _ := args.Get(0).([]domain.Service)
	return services, args.Error(1)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) FindByID(ctx context.Context, id int64) (*domain.Service, error) {
	args := m.Called(ctx, id)
	service, _ := args.Get(0).(*domain.Service)
	return service, args.Error(1)
}

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) Create(ctx context.Context, serviceID, userID int64) (*domain.Order, error) {
	args := m.Called(ctx, serviceID, userID)
	order, _ := args.Get(0).(*domain.Order)
	return order, args.Error(1)
}

// recordingMessenger captures outbound sends for assertions.
type recordingMessenger struct {
	mu    sync.Mutex
	sends []recordedSend
}

type recordedSend struct {
	userID  int64
	text    string
	image   string
	choices []string
}

func (r *recordingMessenger) SendText(ctx context.Context, userID int64, text string, choices ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, recordedSend{userID: userID, text: text, choices: choices})
	return nil
}

func (r *recordingMessenger) SendPhoto(ctx context.Context, userID int64, imageRef, caption string, choices ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, recordedSend{userID: userID, text: caption, image: imageRef, choices: choices})
	return nil
}

func (r *recordingMessenger) last(t *testing.T) recordedSend {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sends, "expected at least one outbound send")
	return r.sends[len(r.sends)-1]
}

func (r *recordingMessenger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

// memoryStorage is the in-process Storage used by engine tests.
type memoryStorage struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{sessions: make(map[int64]*Session)}
}

func (s *memoryStorage) GetSession(ctx context.Context, userID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := *session
	return &copied, nil
}

func (s *memoryStorage) SetSession(ctx context.Context, userID int64, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.UpdatedAt = time.Now().UTC()
	copied := *session
	s.sessions[userID] = &copied
	return nil
}

func (s *memoryStorage) ClearSession(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
	return nil
}

func (s *memoryStorage) GetAllSessions(ctx context.Context) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied := *session
		result = append(result, &copied)
	}
	return result, nil
}

type engineFixture struct {
	engine    *Engine
	storage   *memoryStorage
	matcher   *mockMatcher
	catalog   *mockCatalog
	orders    *mockOrders
	messenger *recordingMessenger
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		storage:   newMemoryStorage(),
		matcher:   &mockMatcher{},
		catalog:   &mockCatalog{},
		orders:    &mockOrders{},
		messenger: &recordingMessenger{},
	}

	f.engine = NewEngine(
		f.storage,
		f.matcher,
		f.catalog,
		f.orders,
		f.messenger,
		DefaultTexts(),
		"Ugx",
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	return f
}

func (f *engineFixture) seedSession(t *testing.T, session *Session) {
	t.Helper()
	require.NoError(t, f.storage.SetSession(context.Background(), session.UserID, session))
}

func (f *engineFixture) session(t *testing.T, userID int64) *Session {
	t.Helper()
	session, err := f.storage.GetSession(context.Background(), userID)
	require.NoError(t, err)
	return session
}

func (f *engineFixture) requireNoSession(t *testing.T, userID int64) {
	t.Helper()
	_, err := f.storage.GetSession(context.Background(), userID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func plumbingFix() domain.Service {
	return domain.Service{
		ID:                    31,
		Name:                  "Plumbing Fix",
		Description:           "Taps, sinks and pipe repairs",
		Price:                 50000,
		City:                  "Kampala",
		Country:               "Uganda",
		IsActive:              true,
		IsAvailableInLocation: true,
	}
}

func TestEngine_StartToLocationPrompt(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(100)

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: "/start"}))

	send := f.messenger.last(t)
	require.Contains(t, send.text, "Welcome to WorkMan")
	require.Equal(t, []string{TriggerLabel}, send.choices)
	require.Equal(t, StateAwaitingDescription, f.session(t, userID).State)

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: TriggerLabel}))
	require.Contains(t, f.messenger.last(t).text, "describe the service")
	require.Equal(t, StateAwaitingDescription, f.session(t, userID).State)

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: "fix my sink"}))

	send = f.messenger.last(t)
	require.Contains(t, send.text, "share your location")
	require.Equal(t, []string{ShareLocationLabel, ManualLocationLabel}, send.choices)

	session := f.session(t, userID)
	require.Equal(t, StateAwaitingLocation, session.State)
	require.Equal(t, "fix my sink", session.NeedDescription)

	// one outbound per inbound message
	require.Equal(t, 3, f.messenger.count())
}

func TestEngine_ManualLocationToSelection(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(101)

	f.seedSession(t, &Session{
		UserID:          userID,
		State:           StateAwaitingLocation,
		NeedDescription: "fix my sink",
	})

	f.matcher.On("FindAvailable", mock.Anything, "Kampala", "Uganda").
		Return([]domain.Service{plumbingFix()}, nil).Once()

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: "Kampala, Uganda"}))

	send := f.messenger.last(t)
	require.Contains(t, send.text, "select a service")
	require.Equal(t, []string{"Plumbing Fix"}, send.choices)

	session := f.session(t, userID)
	require.Equal(t, StateAwaitingSelection, session.State)
	require.Len(t, session.Candidates, 1)
	require.Equal(t, int64(31), session.Candidates[0].ServiceID)
	require.Equal(t, "Kampala, Uganda", session.Location.Manual)

	f.matcher.AssertExpectations(t)
}

func TestEngine_SharedCoordinatesQueryUnscoped(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(102)

	f.seedSession(t, &Session{
		UserID:          userID,
		State:           StateAwaitingLocation,
		NeedDescription: "fix my sink",
	})

	f.matcher.On("FindAvailable", mock.Anything, "", "").
		Return([]domain.Service{plumbingFix()}, nil).Once()

	coords := &domain.Coordinates{Latitude: 0.3476, Longitude: 32.5825}
	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Coordinates: coords}))

	session := f.session(t, userID)
	require.Equal(t, StateAwaitingSelection, session.State)
	require.NotNil(t, session.Location.Coordinates)
	require.InDelta(t, 0.3476, session.Location.Coordinates.Latitude, 1e-9)

	f.matcher.AssertExpectations(t)
}

func TestEngine_SelectionAndConfirmation(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(103)
	service := plumbingFix()

	f.seedSession(t, &Session{
		UserID: userID,
		State:  StateAwaitingSelection,
		Candidates: []Candidate{{
			ServiceID:   service.ID,
			Label:       service.Name,
			Name:        service.Name,
			Description: service.Description,
			Price:       service.Price,
		}},
	})

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: "Plumbing Fix"}))

	send := f.messenger.last(t)
	require.Contains(t, send.text, "Ugx 50000")
	require.Contains(t, send.text, "Taps, sinks and pipe repairs")
	require.Equal(t, []string{ConfirmLabel, DeclineLabel}, send.choices)

	session := f.session(t, userID)
	require.Equal(t, StateAwaitingConfirmation, session.State)
	require.Equal(t, service.ID, session.SelectedServiceID)

	f.catalog.On("FindByID", mock.Anything, service.ID).Return(&service, nil).Once()
	f.orders.On("Create", mock.Anything, service.ID, userID).
		Return(&domain.Order{ID: 7, ServiceID: service.ID, UserID: userID, Status: domain.OrderStatusPending}, nil).Once()

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: ConfirmLabel}))

	require.Contains(t, f.messenger.last(t).text, "Order placed")
	f.requireNoSession(t, userID)

	f.catalog.AssertExpectations(t)
	f.orders.AssertExpectations(t)
}

func TestEngine_SelectionNotFoundReprompts(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(104)

	f.seedSession(t, &Session{
		UserID:     userID,
		State:      StateAwaitingSelection,
		Candidates: []Candidate{{ServiceID: 31, Label: "Plumbing Fix", Name: "Plumbing Fix"}},
	})

	err := f.engine.HandleMessage(ctx, userID, Inbound{Text: "Gardening"})
	require.Error(t, err)

	require.Contains(t, f.messenger.last(t).text, "not found")
	require.Equal(t, StateAwaitingSelection, f.session(t, userID).State)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_NoServicesTerminates(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(105)

	f.seedSession(t, &Session{
		UserID:          userID,
		State:           StateAwaitingLocation,
		NeedDescription: "fix my sink",
	})

	f.matcher.On("FindAvailable", mock.Anything, "Gulu", "Uganda").
		Return([]domain.Service{}, nil).Once()

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: "Gulu, Uganda"}))

	require.Contains(t, f.messenger.last(t).text, "no services available")
	f.requireNoSession(t, userID)
}

func TestEngine_MatcherErrorTerminates(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(106)

	f.seedSession(t, &Session{
		UserID:          userID,
		State:           StateAwaitingLocation,
		NeedDescription: "fix my sink",
	})

	f.matcher.On("FindAvailable", mock.Anything, "Kampala", "Uganda").
		Return(nil, errBackendDown).Once()

	err := f.engine.HandleMessage(ctx, userID, Inbound{Text: "Kampala, Uganda"})
	require.Error(t, err)

	require.Contains(t, f.messenger.last(t).text, "something went wrong")
	f.requireNoSession(t, userID)
}

func TestEngine_CancelFromAnyState(t *testing.T) {
	states := []State{
		StateAwaitingDescription,
		StateAwaitingLocation,
		StateAwaitingSelection,
		StateAwaitingConfirmation,
	}

	for _, state := range states {
		state := state
		t.Run(string(state), func(t *testing.T) {
			f := newEngineFixture()
			ctx := context.Background()
			userID := int64(107)

			f.seedSession(t, &Session{UserID: userID, State: state})

			require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: "/cancel"}))

			require.Contains(t, f.messenger.last(t).text, "cancelled")
			f.requireNoSession(t, userID)
			f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestEngine_DeclineTerminatesWithoutOrder(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(108)

	f.seedSession(t, &Session{
		UserID:            userID,
		State:             StateAwaitingConfirmation,
		Candidates:        []Candidate{{ServiceID: 31, Label: "Plumbing Fix", Name: "Plumbing Fix"}},
		SelectedServiceID: 31,
	})

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: DeclineLabel}))

	require.Contains(t, f.messenger.last(t).text, "Order cancelled")
	f.requireNoSession(t, userID)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_UnknownConfirmationReplyReprompts(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(109)

	f.seedSession(t, &Session{
		UserID:            userID,
		State:             StateAwaitingConfirmation,
		Candidates:        []Candidate{{ServiceID: 31, Label: "Plumbing Fix", Name: "Plumbing Fix"}},
		SelectedServiceID: 31,
	})

	err := f.engine.HandleMessage(ctx, userID, Inbound{Text: "maybe"})
	require.Error(t, err)

	send := f.messenger.last(t)
	require.Equal(t, []string{ConfirmLabel, DeclineLabel}, send.choices)
	require.Equal(t, StateAwaitingConfirmation, f.session(t, userID).State)
}

func TestEngine_ForgedSelectionCannotCreateOrder(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(110)

	// selected id was never offered in this session's candidate batch
	f.seedSession(t, &Session{
		UserID:            userID,
		State:             StateAwaitingConfirmation,
		Candidates:        []Candidate{{ServiceID: 31, Label: "Plumbing Fix", Name: "Plumbing Fix"}},
		SelectedServiceID: 99,
	})

	err := f.engine.HandleMessage(ctx, userID, Inbound{Text: ConfirmLabel})
	require.Error(t, err)

	require.Contains(t, f.messenger.last(t).text, "no longer available")
	f.requireNoSession(t, userID)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_ServiceVanishedBeforeOrder(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(111)

	f.seedSession(t, &Session{
		UserID:            userID,
		State:             StateAwaitingConfirmation,
		Candidates:        []Candidate{{ServiceID: 31, Label: "Plumbing Fix", Name: "Plumbing Fix"}},
		SelectedServiceID: 31,
	})

	f.catalog.On("FindByID", mock.Anything, int64(31)).
		Return((*domain.Service)(nil), domain.ErrNotFound).Once()

	err := f.engine.HandleMessage(ctx, userID, Inbound{Text: ConfirmLabel})
	require.Error(t, err)

	require.Contains(t, f.messenger.last(t).text, "no longer available")
	f.requireNoSession(t, userID)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_OrderStoreFailureTerminates(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(112)
	service := plumbingFix()

	f.seedSession(t, &Session{
		UserID: userID,
		State:  StateAwaitingConfirmation,
		Candidates: []Candidate{{
			ServiceID: service.ID,
			Label:     service.Name,
			Name:      service.Name,
			Price:     service.Price,
		}},
		SelectedServiceID: service.ID,
	})

	f.catalog.On("FindByID", mock.Anything, service.ID).Return(&service, nil).Once()
	f.orders.On("Create", mock.Anything, service.ID, userID).
		Return((*domain.Order)(nil), errBackendDown).Once()

	err := f.engine.HandleMessage(ctx, userID, Inbound{Text: ConfirmLabel})
	require.Error(t, err)

	require.Contains(t, f.messenger.last(t).text, "error processing your order")
	f.requireNoSession(t, userID)
	f.orders.AssertExpectations(t)
}

func TestEngine_DuplicateNamesGetUniqueLabels(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(113)

	first := plumbingFix()
	second := plumbingFix()
	second.ID = 32

	f.seedSession(t, &Session{
		UserID:          userID,
		State:           StateAwaitingLocation,
		NeedDescription: "fix my sink",
	})

	f.matcher.On("FindAvailable", mock.Anything, "Kampala", "Uganda").
		Return([]domain.Service{first, second}, nil).Once()

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: "Kampala, Uganda"}))

	send := f.messenger.last(t)
	require.Equal(t, []string{"Plumbing Fix #31", "Plumbing Fix #32"}, send.choices)

	// the disambiguated label is still selectable
	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: "Plumbing Fix #32"}))

	session := f.session(t, userID)
	require.Equal(t, StateAwaitingConfirmation, session.State)
	require.Equal(t, int64(32), session.SelectedServiceID)
}

func TestEngine_NoSessionHint(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(114)

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: "hello"}))

	require.Contains(t, f.messenger.last(t).text, "/start")
	f.requireNoSession(t, userID)
}

func TestEngine_EmptyDescriptionReprompts(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(115)

	f.seedSession(t, &Session{UserID: userID, State: StateAwaitingDescription})

	err := f.engine.HandleMessage(ctx, userID, Inbound{Text: "   "})
	require.Error(t, err)
	require.Equal(t, StateAwaitingDescription, f.session(t, userID).State)
	require.Equal(t, 1, f.messenger.count())
}

func TestEngine_ManualLocationButtonPrompts(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(116)

	f.seedSession(t, &Session{
		UserID:          userID,
		State:           StateAwaitingLocation,
		NeedDescription: "fix my sink",
	})

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: ManualLocationLabel}))

	require.Contains(t, f.messenger.last(t).text, "city, country")
	require.Equal(t, StateAwaitingLocation, f.session(t, userID).State)
}

func TestEngine_CommandInLocationStateReprompts(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(121)

	f.seedSession(t, &Session{
		UserID:          userID,
		State:           StateAwaitingLocation,
		NeedDescription: "fix my sink",
	})

	err := f.engine.HandleMessage(ctx, userID, Inbound{Text: "/help"})
	require.Error(t, err)

	// a command must not be matched as a manual location or end the session
	f.matcher.AssertNotCalled(t, "FindAvailable", mock.Anything, mock.Anything, mock.Anything)
	require.Contains(t, f.messenger.last(t).text, "city, country")
	require.Equal(t, StateAwaitingLocation, f.session(t, userID).State)
	require.Equal(t, 1, f.messenger.count())
}

func TestEngine_ConfirmationPromptUsesPhotoWhenImagePresent(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(117)

	f.seedSession(t, &Session{
		UserID: userID,
		State:  StateAwaitingSelection,
		Candidates: []Candidate{{
			ServiceID: 31,
			Label:     "Plumbing Fix",
			Name:      "Plumbing Fix",
			Price:     50000,
			ImagePath: "images/service_images/plumbing-fix.png",
		}},
	})

	require.NoError(t, f.engine.HandleMessage(ctx, userID, Inbound{Text: "Plumbing Fix"}))

	send := f.messenger.last(t)
	require.Equal(t, "images/service_images/plumbing-fix.png", send.image)
	require.Contains(t, send.text, "Ugx 50000")
}

func TestEngine_SameUserMessagesAreSerialized(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	userID := int64(118)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.engine.HandleMessage(ctx, userID, Inbound{Text: "/start"})
		}()
	}
	wg.Wait()

	// serialized handling leaves exactly one consistent session behind
	session := f.session(t, userID)
	require.Equal(t, StateAwaitingDescription, session.State)
	require.Equal(t, 8, f.messenger.count())
}

func TestEngine_EveryReplyCarriesText(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	f.matcher.On("FindAvailable", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.Service{plumbingFix()}, nil)

	userID := int64(119)
	inputs := []Inbound{
		{Text: "/start"},
		{Text: TriggerLabel},
		{Text: "fix my sink"},
		{Text: "Kampala, Uganda"},
		{Text: "Plumbing Fix"},
	}

	for _, in := range inputs {
		_ = f.engine.HandleMessage(ctx, userID, in)
	}

	require.Equal(t, len(inputs), f.messenger.count())
	f.messenger.mu.Lock()
	defer f.messenger.mu.Unlock()
	for _, send := range f.messenger.sends {
		require.False(t, strings.TrimSpace(send.text) == "", "outbound send without text")
	}
}
