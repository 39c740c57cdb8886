package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"campusconnect/internal/apiclient"
	"campusconnect/internal/domain"
	"campusconnect/internal/metrics"
)

// State is the position of the feed state machine.
type State int

const (
	StateLoading State = iota
	StateReady
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRefreshing:
		return "refreshing"
	default:
		return "loading"
	}
}

const fetchKey = "events"

// Controller owns the event feed. The visible feed is the last confirmed
// server list with pending RSVPs applied on top, so a rollback is just the
// removal of a pending entry.
type Controller struct {
	api         *apiclient.Client
	sessions    domain.SessionReader
	invalidator domain.SessionInvalidator
	messages    domain.Messages
	flights     singleflight.Group

	mu        sync.Mutex
	state     State
	confirmed []domain.Event
	loaded    bool
	// pending holds event ids with an RSVP in flight; the value reports
	// whether the optimistic patch is shown.
	pending map[string]bool
	started uint64
	applied uint64
	lastErr error
}

// NewController wires the feed. invalidator is told about sessions the server
// rejected and may be nil.
func NewController(api *apiclient.Client, sessions domain.SessionReader, invalidator domain.SessionInvalidator, messages domain.Messages) *Controller {
	return &Controller{
		api:         api,
		sessions:    sessions,
		invalidator: invalidator,
		messages:    messages,
		pending:     make(map[string]bool),
	}
}

// Fetch loads the feed. Concurrent calls share one request, which outlives
// the cancellation of any single caller and is bounded by the client
// timeout. A cancelled caller returns ctx.Err() right away. On failure the
// previous feed stays visible and the error is returned.
func (c *Controller) Fetch(ctx context.Context) ([]domain.Event, error) {
	err := c.shared(ctx)
	return c.Events(), err
}

// refresh starts a new request instead of joining one already in flight,
// whose response may predate a mutation.
func (c *Controller) refresh(ctx context.Context) error {
	c.flights.Forget(fetchKey)
	return c.shared(ctx)
}

func (c *Controller) shared(ctx context.Context) error {
	detached := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(fetchKey, func() (any, error) {
		return nil, c.load(detached, nil)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// load runs one GET /events. Responses older than the last applied one are
// dropped. settle, if set, runs under the lock once the outcome is known.
func (c *Controller) load(ctx context.Context, settle func(err error)) error {
	c.mu.Lock()
	c.started++
	seq := c.started
	if c.loaded {
		c.state = StateRefreshing
	} else {
		c.state = StateLoading
	}
	c.mu.Unlock()

	events, err := c.request(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err != nil && seq < c.applied:
		log.Debug().Err(err).Uint64("seq", seq).Uint64("applied", c.applied).Msg("ignoring failure of superseded feed request")
	case err != nil:
		c.lastErr = err
		log.Warn().Err(err).Uint64("seq", seq).Msg("feed fetch failed")
	case seq < c.applied:
		log.Debug().Uint64("seq", seq).Uint64("applied", c.applied).Msg("discarding stale feed response")
	default:
		c.confirmed = events
		c.applied = seq
		c.loaded = true
		c.lastErr = nil
	}
	if seq == c.started && c.loaded {
		c.state = StateReady
	}
	if settle != nil {
		settle(err)
	}
	return err
}

func (c *Controller) request(ctx context.Context) ([]domain.Event, error) {
	resp, err := c.api.Do(ctx, http.MethodGet, "/events", nil, "")
	if err != nil {
		return nil, err
	}
	var events []domain.Event
	if err := resp.Decode(&events); err != nil {
		return nil, err
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return nil, domain.NewError(domain.KindMalformed, "", fmt.Errorf("event list: %w", err))
		}
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

type rsvpResponse struct {
	RSVPCount *int `json:"rsvpCount"`
}

// RSVP marks the current user as going to eventID. The change is shown
// immediately and rolled back if the server does not accept it; on success
// the feed is reloaded so the server's count replaces the optimistic one.
func (c *Controller) RSVP(ctx context.Context, eventID string) error {
	s, gen := c.sessions.Snapshot()
	if !s.Active() {
		metrics.RSVPs.WithLabelValues("rejected_local").Inc()
		return domain.ErrAuthRequired
	}
	if eventID == "" {
		metrics.RSVPs.WithLabelValues("rejected_local").Inc()
		return domain.Invalid("event id is required")
	}

	c.mu.Lock()
	if _, busy := c.pending[eventID]; busy {
		c.mu.Unlock()
		metrics.RSVPs.WithLabelValues("rejected_local").Inc()
		return domain.ErrOperationInProgress
	}
	c.pending[eventID] = c.indexLocked(eventID) >= 0
	since := c.applied
	c.mu.Unlock()

	resp, err := c.api.Do(ctx, http.MethodPost, "/events/"+url.PathEscape(eventID)+"/rsvp",
		map[string]string{"status": string(domain.RSVPGoing)}, s.Token)

	if _, now := c.sessions.Snapshot(); now != gen {
		c.rollback(eventID, domain.ErrAuthRequired)
		return domain.ErrAuthRequired
	}
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) && c.invalidator != nil {
			c.invalidator.Invalidate(ctx, gen)
		}
		c.rollback(eventID, err)
		return err
	}

	var confirmed rsvpResponse
	if decodeErr := resp.Decode(&confirmed); decodeErr != nil {
		log.Debug().Err(decodeErr).Str("event", eventID).Msg("rsvp response without body")
	}

	err = c.load(ctx, func(fetchErr error) {
		delete(c.pending, eventID)
		if fetchErr != nil {
			c.confirmLocked(eventID, confirmed.RSVPCount, since)
		}
	})
	metrics.RSVPs.WithLabelValues("confirmed").Inc()
	log.Info().Str("event", eventID).Msg("rsvp confirmed")
	if err != nil {
		return fmt.Errorf("rsvp saved, refresh failed: %w", err)
	}
	return nil
}

func (c *Controller) rollback(eventID string, err error) {
	c.mu.Lock()
	delete(c.pending, eventID)
	c.lastErr = err
	c.mu.Unlock()
	metrics.RSVPs.WithLabelValues("rolled_back").Inc()
	log.Info().Str("event", eventID).Str("code", domain.Code(err)).Msg("rsvp rolled back")
}

// confirmLocked applies an accepted RSVP to the confirmed list when no fresh
// list could be fetched. Without a server count the confirmed count is only
// incremented if no list was applied since the RSVP was sent, as such a list
// may already include it.
func (c *Controller) confirmLocked(eventID string, count *int, since uint64) {
	i := c.indexLocked(eventID)
	if i < 0 {
		return
	}
	updated := append([]domain.Event(nil), c.confirmed...)
	switch {
	case count != nil && *count >= 0:
		updated[i].RSVPCount = *count
	case c.applied == since:
		updated[i].RSVPCount++
	}
	updated[i].CurrentUserRSVPStatus = domain.RSVPGoing
	c.confirmed = updated
}

func (c *Controller) indexLocked(eventID string) int {
	for i, e := range c.confirmed {
		if e.ID == eventID {
			return i
		}
	}
	return -1
}

// CreateEvent publishes an event. Only organizers may create events; the
// feed is reloaded afterwards.
func (c *Controller) CreateEvent(ctx context.Context, draft domain.EventDraft) (domain.Event, error) {
	s, gen := c.sessions.Snapshot()
	if !s.Active() {
		return domain.Event{}, domain.ErrAuthRequired
	}
	if s.User.Role != domain.RoleOrganizer {
		return domain.Event{}, domain.NewError(domain.KindForbidden, "", errors.New("only organizers can create events"))
	}
	if err := draft.Validate(); err != nil {
		return domain.Event{}, err
	}

	resp, err := c.api.Do(ctx, http.MethodPost, "/events", draft, s.Token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) && c.invalidator != nil {
			c.invalidator.Invalidate(ctx, gen)
		}
		c.setErr(err)
		return domain.Event{}, err
	}
	var created domain.Event
	decodeErr := resp.Decode(&created)
	log.Info().Str("event", created.ID).Str("title", draft.Title).Msg("event created")

	if err := c.refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("feed refresh after create failed")
	}
	if decodeErr != nil {
		return domain.Event{}, decodeErr
	}
	return created, nil
}

// Events returns a copy of the visible feed.
func (c *Controller) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.confirmed))
	copy(out, c.confirmed)
	for i := range out {
		if c.pending[out[i].ID] {
			out[i].RSVPCount++
			out[i].CurrentUserRSVPStatus = domain.RSVPGoing
		}
	}
	return out
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError is the most recent failure, cleared by the next successful fetch.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Message renders LastError for display.
func (c *Controller) Message() string {
	return c.messages.ErrorMessage(c.LastError())
}

func (c *Controller) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
