package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"jarvis/internal/metrics"
)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, t Token) (Token, error)
}

// Authorizer runs the interactive consent flow for scopes and blocks until it
// completes, is rejected or times out.
type Authorizer interface {
	Authorize(ctx context.Context, scopes []string) (Token, error)
}

type ManagerConfig struct {
	Store      Store
	Refresher  Refresher
	Authorizer Authorizer
	// Scopes is the union of every scope a registered capability may need.
	// Interactive authorization always asks for all of them.
	Scopes []string
	Logger *slog.Logger
	Now    func() time.Time
}

// Manager hands out tokens. Handlers call Acquire once per call and never keep
// the token.
type Manager struct {
	store      Store
	refresher  Refresher
	authorizer Authorizer
	scopes     []string
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex // guards cached and loaded
	cached *Token
	loaded bool

	// flights coalesces refresh and authorization so concurrent callers wait
	// for the attempt already in flight.
	flights singleflight.Group
}

func NewManager(cfg ManagerConfig) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      cfg.Store,
		refresher:  cfg.Refresher,
		authorizer: cfg.Authorizer,
		scopes:     normalizeScopes(cfg.Scopes),
		logger:     logger,
		now:        now,
	}
}

// Scopes returns the scope union the manager authorizes for.
func (m *Manager) Scopes() []string {
	return append([]string(nil), m.scopes...)
}

// Acquire returns a token whose scopes cover required. A cached valid token is
// returned unchanged; an expired one is refreshed when possible; otherwise the
// interactive flow runs for the full scope union.
func (m *Manager) Acquire(ctx context.Context, required []string) (Token, error) {
	required = normalizeScopes(required)
	if missing := m.unregistered(required); len(missing) > 0 {
		return Token{}, fmt.Errorf("%w: %s", ErrScopeNotRegistered, strings.Join(missing, ", "))
	}

	if t, ok, err := m.usable(required); err != nil {
		return Token{}, err
	} else if ok {
		return t, nil
	}

	v, err, shared := m.flights.Do(strings.Join(m.scopes, " "), func() (any, error) {
		return m.negotiate(ctx, required)
	})
	if err != nil {
		return Token{}, err
	}
	t := v.(Token)
	if shared && !t.Covers(required) {
		// The flight we joined was for narrower needs than ours.
		return m.Acquire(ctx, required)
	}
	return t.clone(), nil
}

// Login forces the interactive flow and stores its result.
func (m *Manager) Login(ctx context.Context) (Token, error) {
	v, err, _ := m.flights.Do(strings.Join(m.scopes, " "), func() (any, error) {
		return m.authorize(ctx, m.scopes)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token).clone(), nil
}

// Current returns the stored token without refreshing or authorizing.
func (m *Manager) Current() (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(); err != nil {
		return nil, err
	}
	if m.cached == nil {
		return nil, nil
	}
	t := m.cached.clone()
	return &t, nil
}

func (m *Manager) unregistered(required []string) []string {
	known := make(map[string]struct{}, len(m.scopes))
	for _, s := range m.scopes {
		known[s] = struct{}{}
	}
	var missing []string
	for _, s := range required {
		if _, ok := known[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

// usable returns the cached token when it is valid and covers required,
// re-reading the store once on a miss.
func (m *Manager) usable(required []string) (Token, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stale := m.loaded
	if err := m.loadLocked(); err != nil {
		return Token{}, false, err
	}
	if m.fits(required) {
		return m.cached.clone(), true, nil
	}
	// Another process may have written a newer token since the last load.
	if stale && m.store != nil {
		m.loaded = false
		if err := m.loadLocked(); err != nil {
			return Token{}, false, err
		}
		if m.fits(required) {
			return m.cached.clone(), true, nil
		}
	}
	return Token{}, false, nil
}

func (m *Manager) fits(required []string) bool {
	return m.cached != nil && m.cached.Valid(m.now()) && m.cached.Covers(required)
}

func (m *Manager) loadLocked() error {
	if m.loaded {
		return nil
	}
	if m.store == nil {
		m.loaded = true
		return nil
	}
	t, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, ErrCredentialIO) {
			err = fmt.Errorf("%w: %v", ErrCredentialIO, err)
		}
		return err
	}
	m.cached = t
	m.loaded = true
	return nil
}

// negotiate runs inside the single flight.
func (m *Manager) negotiate(ctx context.Context, required []string) (Token, error) {
	if t, ok, err := m.usable(required); err != nil {
		return Token{}, err
	} else if ok {
		return t, nil
	}

	m.mu.Lock()
	var current *Token
	if m.cached != nil {
		c := m.cached.clone()
		current = &c
	}
	m.mu.Unlock()

	if current != nil && current.RefreshToken != "" && current.Covers(required) && m.refresher != nil {
		refreshed, err := m.refresh(ctx, *current)
		if err == nil {
			return refreshed, nil
		}
		if errors.Is(err, ErrCredentialIO) {
			return Token{}, err
		}
		m.logger.Warn("token refresh failed, falling back to interactive authorization", "error", err)
	}

	t, err := m.authorize(ctx, m.scopes)
	if err != nil {
		return Token{}, err
	}
	if !t.Covers(required) {
		return Token{}, fmt.Errorf("%w: granted scopes do not cover %s", ErrAuthorizationDenied, strings.Join(required, ", "))
	}
	return t, nil
}

func (m *Manager) refresh(ctx context.Context, current Token) (Token, error) {
	metrics.TokenRefreshes.Inc()
	t, err := m.refresher.Refresh(ctx, current)
	if err != nil {
		return Token{}, fmt.Errorf("refresh: %w", err)
	}
	if t.RefreshToken == "" {
		t.RefreshToken = current.RefreshToken
	}
	if len(t.Scopes) == 0 {
		t.Scopes = current.Scopes
	}
	t.Scopes = normalizeScopes(t.Scopes)
	if !t.Valid(m.now()) {
		return Token{}, errors.New("refresh returned an expired token")
	}
	if err := m.persist(t); err != nil {
		return Token{}, err
	}
	m.logger.Info("token refreshed", "expiry", t.Expiry)
	return t, nil
}

func (m *Manager) authorize(ctx context.Context, scopes []string) (Token, error) {
	if m.authorizer == nil {
		return Token{}, fmt.Errorf("%w: no interactive authorizer configured", ErrAuthorizationDenied)
	}
	metrics.AuthorizationFlows.Inc()
	m.logger.Info("starting interactive authorization", "scopes", strings.Join(scopes, " "))
	t, err := m.authorizer.Authorize(ctx, scopes)
	if err != nil {
		if !errors.Is(err, ErrAuthorizationDenied) && !errors.Is(err, ErrCredentialIO) {
			err = fmt.Errorf("%w: %v", ErrAuthorizationDenied, err)
		}
		return Token{}, err
	}
	if len(t.Scopes) == 0 {
		t.Scopes = scopes
	}
	t.Scopes = normalizeScopes(t.Scopes)
	if err := m.persist(t); err != nil {
		return Token{}, err
	}
	m.logger.Info("authorization complete", "scopes", strings.Join(t.Scopes, " "))
	return t, nil
}

// persist saves t and then updates the cache in place.
func (m *Manager) persist(t Token) error {
	if m.store != nil {
		if err := m.store.Save(t); err != nil {
			if !errors.Is(err, ErrCredentialIO) {
				err = fmt.Errorf("%w: %v", ErrCredentialIO, err)
			}
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		m.cached = &Token{}
	}
	*m.cached = t.clone()
	m.loaded = true
	return nil
}
