package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"campusconnect/internal/apiclient"
	"campusconnect/internal/domain"
	"campusconnect/internal/session"
)

// State is the position of the auth state machine.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// authResponse is the success body of /auth/login and /auth/register.
type authResponse struct {
	Token string              `json:"token"`
	User  *domain.UserProfile `json:"user"`
}

// Controller drives login, registration and logout. It is the only writer
// of the session store besides the store's own restore path.
type Controller struct {
	api      *apiclient.Client
	sessions *session.Store
	messages domain.Messages
	now      func() time.Time

	mu      sync.Mutex
	state   State
	message string
	lastErr error
	attempt uint64
}

var _ domain.SessionInvalidator = (*Controller)(nil)

// NewController wires the controller. It starts Idle; call Restore to pick
// up a persisted session.
func NewController(api *apiclient.Client, sessions *session.Store, messages domain.Messages) *Controller {
	return &Controller{
		api:      api,
		sessions: sessions,
		messages: messages,
		now:      time.Now,
	}
}

// Restore loads the persisted session. A JWT session token that has already
// expired is discarded instead of being sent to the server.
func (c *Controller) Restore(ctx context.Context) domain.Session {
	s := c.sessions.Restore(ctx)
	if !s.Active() {
		c.setIdle("")
		return domain.Session{}
	}
	if tokenExpired(s.Token, c.now()) {
		log.Info().Str("user", s.User.ID).Msg("persisted session expired")
		if err := c.sessions.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to clear expired session")
		}
		c.setIdle(c.messages.ErrorMessage(domain.ErrUnauthorized))
		return domain.Session{}
	}

	c.mu.Lock()
	c.state = StateAuthenticated
	c.message = ""
	c.lastErr = nil
	c.mu.Unlock()
	return s
}

// Login authenticates with email and password.
func (c *Controller) Login(ctx context.Context, email, password string) (*domain.UserProfile, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domain.Invalid("email and password are required")
	}
	body := map[string]string{"email": email, "password": password}
	return c.submit(ctx, "/auth/login", body)
}

// Register creates an account and logs into it.
func (c *Controller) Register(ctx context.Context, reg domain.Registration) (*domain.UserProfile, error) {
	if reg == nil {
		return nil, domain.Invalid("registration is required")
	}
	body, err := reg.Body()
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, "/auth/register", body)
}

func (c *Controller) submit(ctx context.Context, path string, body any) (*domain.UserProfile, error) {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return nil, domain.ErrOperationInProgress
	}
	c.state = StateSubmitting
	c.message = ""
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	_, gen := c.sessions.Snapshot()
	user, err := c.authenticate(ctx, gen, path, body)
	if err != nil {
		log.Info().Str("path", path).Str("code", domain.Code(err)).Msg("authentication failed")
		c.finish(attempt, StateFailed, err)
		return nil, err
	}

	log.Info().Str("user", user.ID).Str("role", string(user.Role)).Msg("authenticated")
	c.finish(attempt, StateAuthenticated, nil)
	return user, nil
}

func (c *Controller) authenticate(ctx context.Context, gen uint64, path string, body any) (*domain.UserProfile, error) {
	resp, err := c.api.Do(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return nil, err
	}
	var out authResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.User.Validate() != nil {
		return nil, domain.NewError(domain.KindMalformed, "", errors.New("auth response without token or valid user"))
	}
	if err := c.sessions.SaveAt(ctx, gen, out.Token, out.User); err != nil {
		return nil, err
	}
	return out.User, nil
}

// finish applies the outcome of attempt unless a logout or a newer attempt
// has superseded it.
func (c *Controller) finish(attempt uint64, state State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt != attempt {
		return
	}
	c.state = state
	c.lastErr = err
	c.message = c.messages.ErrorMessage(err)
}

// Logout clears the session unconditionally and returns to Idle. A storage
// failure is returned, but the process is logged out regardless.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.attempt++
	c.state = StateIdle
	c.message = ""
	c.lastErr = nil
	c.mu.Unlock()

	if err := c.sessions.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("session clear failed on logout")
		return err
	}
	log.Info().Msg("logged out")
	return nil
}

// Invalidate drops the session after the server rejected its token, unless
// the session has changed since the rejected request was sent. A login in
// flight replaces the session itself, so nothing is cleared under it.
func (c *Controller) Invalidate(ctx context.Context, generation uint64) {
	c.mu.Lock()
	submitting := c.state == StateSubmitting
	c.mu.Unlock()
	if submitting {
		log.Debug().Uint64("generation", generation).Msg("login in flight, invalidation skipped")
		return
	}

	err := c.sessions.ClearAt(ctx, generation)
	if errors.Is(err, domain.ErrSessionChanged) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("session clear failed on invalidation")
	}
	log.Info().Msg("session invalidated by server")

	c.mu.Lock()
	defer c.mu.Unlock()
	// A login may have started after the check above.
	if c.state == StateSubmitting {
		return
	}
	c.state = StateIdle
	c.lastErr = domain.ErrUnauthorized
	c.message = c.messages.ErrorMessage(domain.ErrUnauthorized)
}

// RequireRole gates role-restricted operations locally.
func (c *Controller) RequireRole(role domain.Role) error {
	s := c.sessions.Load()
	if !s.Active() {
		return domain.ErrAuthRequired
	}
	if s.User.Role != role {
		return domain.NewError(domain.KindForbidden, "", fmt.Errorf("requires role %s, have %s", role, s.User.Role))
	}
	return nil
}

// Profile returns the logged-in user, or nil.
func (c *Controller) Profile() *domain.UserProfile {
	return c.sessions.Load().User
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Message is the user-facing text of the last failure, if any.
func (c *Controller) Message() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) setIdle(message string) {
	c.mu.Lock()
	c.state = StateIdle
	c.message = message
	c.lastErr = nil
	c.mu.Unlock()
}
