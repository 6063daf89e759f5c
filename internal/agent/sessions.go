package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/linjoshua/ChatGPT-Line-Bot/internal/domain"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/llm"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/logging"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/metrics"
	"github.com/linjoshua/ChatGPT-Line-Bot/internal/store"
)

// ErrUnregistered is returned when a user without a credential invokes a
// command that needs a model.
var ErrUnregistered = errors.New("user is not registered")

type binding struct {
	credential string
	model      llm.Model
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// Sessions owns every user's credential and the model bound to it, plus
// the per-user locks that serialize dispatch for one user.
type Sessions struct {
	factory llm.Factory
	creds   store.CredentialStore
	log     *logging.Logger

	mu       sync.RWMutex
	bindings map[string]binding

	locksMu sync.Mutex
	locks   map[string]*userLock
}

// NewSessions creates an empty registry. Call Load before serving.
func NewSessions(factory llm.Factory, creds store.CredentialStore, log *logging.Logger) *Sessions {
	return &Sessions{
		factory:  factory,
		creds:    creds,
		log:      log.Sub("sessions"),
		bindings: make(map[string]binding),
		locks:    make(map[string]*userLock),
	}
}

// Load binds every stored credential. A credential that cannot be bound is
// logged and skipped. Returns the number of users bound.
func (s *Sessions) Load(ctx context.Context) (int, error) {
	stored, err := store.LoadAll(ctx, s.creds)
	if err != nil {
		return 0, fmt.Errorf("loading credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, credential := range stored {
		model, err := s.factory(credential)
		if err != nil {
			s.log.Warn().Err(err).Str("user", userID).Msg("skipping stored credential")
			continue
		}
		s.bindings[userID] = binding{credential: credential, model: model}
	}
	metrics.RegisteredUsers.Set(float64(len(s.bindings)))

	s.log.Info().Int("users", len(s.bindings)).Msg("credentials loaded")
	return len(s.bindings), nil
}

// Lock acquires userID's lock and returns the function that releases it.
// Lock entries exist only while someone holds or waits for them.
func (s *Sessions) Lock(userID string) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.locksMu.Unlock()
	}
}

// Bind builds a model for credential without registering it.
func (s *Sessions) Bind(credential string) (llm.Model, error) {
	return s.factory(credential)
}

// Register persists credential for userID and then binds model to the user,
// replacing any previous binding. Nothing changes if persisting fails.
func (s *Sessions) Register(ctx context.Context, userID, credential string, model llm.Model) error {
	if err := s.creds.Save(ctx, userID, credential); err != nil {
		return fmt.Errorf("persisting credential: %w", err)
	}

	s.mu.Lock()
	s.bindings[userID] = binding{credential: credential, model: model}
	n := len(s.bindings)
	s.mu.Unlock()

	metrics.RegisteredUsers.Set(float64(n))
	s.log.Info().Str("user", userID).Str("credential", domain.MaskCredential(credential)).Msg("user registered")
	return nil
}

// Model returns the model bound to userID, or ErrUnregistered.
func (s *Sessions) Model(userID string) (llm.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[userID]
	if !ok {
		return nil, ErrUnregistered
	}
	return b.model, nil
}

// Credential returns the credential registered for userID.
func (s *Sessions) Credential(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[userID]
	return b.credential, ok
}

// Users returns the registered user IDs, sorted.
func (s *Sessions) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.bindings))
	for id := range s.bindings {
		users = append(users, id)
	}
	slices.Sort(users)
	return users
}

// Len returns the number of registered users.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings)
}

func (s *Sessions) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}
