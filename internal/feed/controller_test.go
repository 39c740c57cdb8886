package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"campusconnect/internal/apiclient"
	"campusconnect/internal/auth"
	"campusconnect/internal/domain"
	"campusconnect/internal/i18n"
	"campusconnect/internal/session"
	"campusconnect/internal/store"
)

// fakeAPI serves a mutable event list and records requests.
type fakeAPI struct {
	t *testing.T

	mu         sync.Mutex
	events     string
	listStatus int
	listGate   chan struct{}
	rsvpStatus int
	rsvpBody   string
	rsvpGate   chan struct{}
	rsvpDrop   bool
	lists      int
	rsvps      []string
	tokens     []string
	created    map[string]any
	entered    chan string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *apiclient.Client) {
	f := &fakeAPI{
		t:          t,
		events:     `[{"_id":"ev1","title":"Hackathon","rsvpCount":3},{"_id":"ev2","title":"Talk","rsvpCount":0}]`,
		listStatus: http.StatusOK,
		rsvpStatus: http.StatusOK,
		rsvpBody:   `{"msg":"RSVP updated"}`,
		entered:    make(chan string, 16),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, apiclient.New(srv.URL+"/api", time.Second)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	switch {
	case r.Method == http.MethodGet && path == "/events":
		f.mu.Lock()
		f.lists++
		gate, status, body := f.listGate, f.listStatus, f.events
		f.listGate = nil
		f.mu.Unlock()
		if r.Header.Get(apiclient.AuthHeader) != "" {
			f.t.Errorf("event list must be fetched without a token")
		}
		f.entered <- "list"
		if gate != nil {
			<-gate
		}
		w.WriteHeader(status)
		w.Write([]byte(body))

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/rsvp"):
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["status"] != "going" {
			f.t.Errorf("expected status going, got %v", body)
		}
		f.mu.Lock()
		f.rsvps = append(f.rsvps, strings.TrimSuffix(strings.TrimPrefix(path, "/events/"), "/rsvp"))
		f.tokens = append(f.tokens, r.Header.Get(apiclient.AuthHeader))
		gate, status, resp, drop := f.rsvpGate, f.rsvpStatus, f.rsvpBody, f.rsvpDrop
		f.mu.Unlock()
		f.entered <- "rsvp"
		if gate != nil {
			<-gate
		}
		if drop {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err != nil {
				f.t.Errorf("hijack: %v", err)
				return
			}
			conn.Close()
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(resp))

	case r.Method == http.MethodPost && path == "/events":
		f.mu.Lock()
		json.NewDecoder(r.Body).Decode(&f.created)
		f.tokens = append(f.tokens, r.Header.Get(apiclient.AuthHeader))
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"_id":"ev3","title":"Demo Day","rsvpCount":0}`))

	case r.Method == http.MethodPost && path == "/auth/login":
		w.Write([]byte(`{"token":"t1","user":{"id":"u1","name":"Asha","email":"a@b.com","role":"organizer"}}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeAPI) rsvpCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rsvps)
}

func (f *fakeAPI) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

type recordingInvalidator struct {
	mu          sync.Mutex
	generations []uint64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, gen uint64) {
	r.mu.Lock()
	r.generations = append(r.generations, gen)
	r.mu.Unlock()
}

func loggedIn(t *testing.T, role domain.Role) *session.Store {
	t.Helper()
	s := session.New(store.NewMemory())
	if err := s.Save(context.Background(), "t1", &domain.UserProfile{ID: "u1", Role: role}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	return s
}

func newController(api *apiclient.Client, sessions domain.SessionReader, inv domain.SessionInvalidator) *Controller {
	return NewController(api, sessions, inv, i18n.NewTranslator("en"))
}

func find(events []domain.Event, id string) domain.Event {
	for _, e := range events {
		if e.ID == id {
			return e
		}
	}
	return domain.Event{}
}

func TestFetchPopulatesFeedInServerOrder(t *testing.T) {
	_, api := newFakeAPI(t)
	c := newController(api, session.New(store.NewMemory()), nil)
	if c.State() != StateLoading {
		t.Fatalf("expected loading before first fetch, got %s", c.State())
	}
	events, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 2 || events[0].ID != "ev1" || events[1].ID != "ev2" {
		t.Fatalf("unexpected feed %+v", events)
	}
	if c.State() != StateReady {
		t.Fatalf("expected ready, got %s", c.State())
	}
}

func TestFetchFailureKeepsPreviousFeed(t *testing.T) {
	f, api := newFakeAPI(t)
	c := newController(api, session.New(store.NewMemory()), nil)
	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	cases := map[string]func(f *fakeAPI){
		"server fault": func(f *fakeAPI) { f.listStatus = http.StatusInternalServerError; f.events = `{"msg":"down"}` },
		"malformed":    func(f *fakeAPI) { f.listStatus = http.StatusOK; f.events = `{"not":"a list"}` },
		"negative":     func(f *fakeAPI) { f.listStatus = http.StatusOK; f.events = `[{"id":"ev1","rsvpCount":-1}]` },
	}
	for name, setup := range cases {
		f.set(setup)
		events, err := c.Fetch(context.Background())
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if len(events) != 2 || find(events, "ev1").RSVPCount != 3 {
			t.Fatalf("%s: expected stale feed kept, got %+v", name, events)
		}
		if c.LastError() == nil || c.Message() == "" || c.State() != StateReady {
			t.Fatalf("%s: expected surfaced error in ready state", name)
		}
	}

	f.set(func(f *fakeAPI) { f.listStatus = http.StatusOK; f.events = `[]` })
	events, err := c.Fetch(context.Background())
	if err != nil || len(events) != 0 || c.LastError() != nil {
		t.Fatalf("expected successful empty fetch to replace feed, got %+v %v", events, err)
	}
}

func TestInitialFetchFailureStaysLoading(t *testing.T) {
	f, api := newFakeAPI(t)
	f.set(func(f *fakeAPI) { f.listStatus = http.StatusBadGateway })
	c := newController(api, session.New(store.NewMemory()), nil)
	if _, err := c.Fetch(context.Background()); !errors.Is(err, domain.ErrServerFault) {
		t.Fatalf("expected server fault, got %v", err)
	}
	if c.State() != StateLoading || len(c.Events()) != 0 {
		t.Fatalf("expected loading with no feed, got %s", c.State())
	}
}

func TestConcurrentFetchesShareOneRequest(t *testing.T) {
	f, api := newFakeAPI(t)
	gate := make(chan struct{})
	f.set(func(f *fakeAPI) { f.listGate = gate })
	c := newController(api, session.New(store.NewMemory()), nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Fetch(context.Background()); err != nil {
				t.Errorf("fetch: %v", err)
			}
		}()
	}
	<-f.entered
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if f.listCount() != 1 {
		t.Fatalf("expected one request, got %d", f.listCount())
	}
}

func TestSlowInitialLoadDoesNotClobberRefresh(t *testing.T) {
	f, api := newFakeAPI(t)
	gate := make(chan struct{})
	f.set(func(f *fakeAPI) { f.listGate = gate })
	c := newController(api, session.New(store.NewMemory()), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Fetch(context.Background())
	}()
	<-f.entered

	f.set(func(f *fakeAPI) { f.events = `[{"id":"ev9","title":"Fresh","rsvpCount":1}]` })
	if err := c.refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	<-f.entered
	close(gate)
	<-done

	events := c.Events()
	if len(events) != 1 || events[0].ID != "ev9" {
		t.Fatalf("expected newer response to win, got %+v", events)
	}
	if c.State() != StateReady {
		t.Fatalf("expected ready, got %s", c.State())
	}
}

func TestRefreshKeepsPreviousFeedVisible(t *testing.T) {
	f, api := newFakeAPI(t)
	c := newController(api, session.New(store.NewMemory()), nil)
	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	gate := make(chan struct{})
	f.set(func(f *fakeAPI) {
		f.listGate = gate
		f.events = `[{"id":"ev9","title":"Fresh","rsvpCount":1}]`
	})
	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background())
		done <- err
	}()
	<-f.entered
	<-f.entered

	if c.State() != StateRefreshing {
		t.Fatalf("expected refreshing, got %s", c.State())
	}
	if events := c.Events(); len(events) != 2 || events[0].ID != "ev1" {
		t.Fatalf("expected previous feed while refreshing, got %+v", events)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if events := c.Events(); c.State() != StateReady || len(events) != 1 || events[0].ID != "ev9" {
		t.Fatalf("expected refreshed feed, got %s %+v", c.State(), events)
	}
}

func TestSupersededFetchFailureIsNotSurfaced(t *testing.T) {
	f, api := newFakeAPI(t)
	gate := make(chan struct{})
	f.set(func(f *fakeAPI) { f.listGate = gate; f.listStatus = http.StatusInternalServerError })
	c := newController(api, session.New(store.NewMemory()), nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background())
		done <- err
	}()
	<-f.entered

	f.set(func(f *fakeAPI) {
		f.listStatus = http.StatusOK
		f.events = `[{"id":"ev9","title":"Fresh","rsvpCount":1}]`
	})
	if err := c.refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	<-f.entered
	close(gate)

	if err := <-done; !errors.Is(err, domain.ErrServerFault) {
		t.Fatalf("expected slow request to report its own failure, got %v", err)
	}
	if c.LastError() != nil {
		t.Fatalf("superseded failure must not be surfaced, got %v", c.LastError())
	}
	if events := c.Events(); len(events) != 1 || events[0].ID != "ev9" || c.State() != StateReady {
		t.Fatalf("expected fresh feed kept, got %s %+v", c.State(), events)
	}
}

func TestCancelledFetchDoesNotFailJoinedCallers(t *testing.T) {
	f, api := newFakeAPI(t)
	gate := make(chan struct{})
	f.set(func(f *fakeAPI) { f.listGate = gate })
	c := newController(api, session.New(store.NewMemory()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx)
		first <- err
	}()
	<-f.entered

	second := make(chan error, 1)
	go func() {
		_, err := c.Fetch(context.Background())
		second <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to return, got %v", err)
	}
	close(gate)

	if err := <-second; err != nil {
		t.Fatalf("joined caller: %v", err)
	}
	if len(c.Events()) != 2 || f.listCount() != 1 {
		t.Fatalf("expected one shared request to populate the feed, got %d lists", f.listCount())
	}
}

func TestRSVPWithoutSessionSendsNothing(t *testing.T) {
	f, api := newFakeAPI(t)
	c := newController(api, session.New(store.NewMemory()), nil)
	c.Fetch(context.Background())

	for i := 0; i < 3; i++ {
		if err := c.RSVP(context.Background(), "ev1"); !errors.Is(err, domain.ErrAuthRequired) {
			t.Fatalf("expected auth required, got %v", err)
		}
	}
	if f.rsvpCount() != 0 {
		t.Fatalf("expected no rsvp request, got %d", f.rsvpCount())
	}
	if find(c.Events(), "ev1").RSVPCount != 3 {
		t.Fatalf("feed must not change")
	}
}

func TestRSVPOptimisticThenRollback(t *testing.T) {
	cases := map[string]int{
		"rejected":     http.StatusBadRequest,
		"server fault": http.StatusInternalServerError,
		"unauthorized": http.StatusUnauthorized,
	}
	for name, status := range cases {
		t.Run(name, func(t *testing.T) {
			f, api := newFakeAPI(t)
			gate := make(chan struct{})
			f.set(func(f *fakeAPI) { f.rsvpGate = gate; f.rsvpStatus = status; f.rsvpBody = `{"msg":"no"}` })
			inv := &recordingInvalidator{}
			sessions := loggedIn(t, domain.RoleStudent)
			c := newController(api, sessions, inv)
			c.Fetch(context.Background())
			<-f.entered

			errc := make(chan error, 1)
			go func() { errc <- c.RSVP(context.Background(), "ev1") }()
			<-f.entered

			tentative := find(c.Events(), "ev1")
			if tentative.RSVPCount != 4 || tentative.CurrentUserRSVPStatus != domain.RSVPGoing {
				t.Fatalf("expected tentative apply, got %+v", tentative)
			}
			close(gate)

			if err := <-errc; err == nil {
				t.Fatalf("expected error")
			}
			after := find(c.Events(), "ev1")
			if after.RSVPCount != 3 || after.CurrentUserRSVPStatus != domain.RSVPNone {
				t.Fatalf("expected rollback to confirmed values, got %+v", after)
			}
			_, gen := sessions.Snapshot()
			invalidated := len(inv.generations) == 1 && inv.generations[0] == gen
			if invalidated != (status == http.StatusUnauthorized) {
				t.Fatalf("unexpected invalidations %v", inv.generations)
			}
		})
	}
}

func TestRSVPRollbackOnNetworkFailure(t *testing.T) {
	f, api := newFakeAPI(t)
	gate := make(chan struct{})
	f.set(func(f *fakeAPI) { f.rsvpGate = gate; f.rsvpDrop = true })
	inv := &recordingInvalidator{}
	c := newController(api, loggedIn(t, domain.RoleStudent), inv)
	c.Fetch(context.Background())
	<-f.entered

	errc := make(chan error, 1)
	go func() { errc <- c.RSVP(context.Background(), "ev1") }()
	<-f.entered
	if got := find(c.Events(), "ev1").RSVPCount; got != 4 {
		t.Fatalf("expected tentative apply, got %d", got)
	}
	close(gate)

	if err := <-errc; !errors.Is(err, domain.ErrNetworkUnavailable) {
		t.Fatalf("expected network unavailable, got %v", err)
	}
	if got := find(c.Events(), "ev1"); got.RSVPCount != 3 || got.CurrentUserRSVPStatus != domain.RSVPNone {
		t.Fatalf("expected rollback, got %+v", got)
	}
	if !errors.Is(c.LastError(), domain.ErrNetworkUnavailable) || len(inv.generations) != 0 {
		t.Fatalf("expected surfaced network error without invalidation")
	}
	if f.listCount() != 1 {
		t.Fatalf("no reconciliation fetch expected after a failed rsvp")
	}
}

func TestRSVPReconcilesWithServerCount(t *testing.T) {
	f, api := newFakeAPI(t)
	c := newController(api, loggedIn(t, domain.RoleStudent), nil)
	c.Fetch(context.Background())
	f.set(func(f *fakeAPI) {
		f.events = `[{"_id":"ev1","title":"Hackathon","rsvpCount":10,"currentUserRsvpStatus":"going"},{"_id":"ev2","rsvpCount":0}]`
	})

	if err := c.RSVP(context.Background(), "ev1"); err != nil {
		t.Fatalf("rsvp: %v", err)
	}
	got := find(c.Events(), "ev1")
	if got.RSVPCount != 10 || got.CurrentUserRSVPStatus != domain.RSVPGoing {
		t.Fatalf("expected server count 10, got %+v", got)
	}
	if f.listCount() != 2 {
		t.Fatalf("expected a reconciliation fetch, got %d lists", f.listCount())
	}
}

func TestRSVPReconcileFetchFailureUsesRSVPResponse(t *testing.T) {
	cases := map[string]struct {
		body     string
		expected int
	}{
		"count in response": {`{"rsvpCount":7}`, 7},
		"no count":          {`{"msg":"RSVP updated"}`, 4},
		"empty body":        {``, 4},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f, api := newFakeAPI(t)
			c := newController(api, loggedIn(t, domain.RoleStudent), nil)
			c.Fetch(context.Background())
			f.set(func(f *fakeAPI) { f.listStatus = http.StatusServiceUnavailable; f.rsvpBody = tc.body })

			err := c.RSVP(context.Background(), "ev1")
			if !errors.Is(err, domain.ErrServerFault) {
				t.Fatalf("expected refresh error surfaced, got %v", err)
			}
			got := find(c.Events(), "ev1")
			if got.RSVPCount != tc.expected || got.CurrentUserRSVPStatus != domain.RSVPGoing {
				t.Fatalf("expected count %d going, got %+v", tc.expected, got)
			}
		})
	}
}

func TestRSVPFallbackKeepsCountFromNewerList(t *testing.T) {
	f, api := newFakeAPI(t)
	gate := make(chan struct{})
	f.set(func(f *fakeAPI) { f.rsvpGate = gate })
	c := newController(api, loggedIn(t, domain.RoleStudent), nil)
	c.Fetch(context.Background())
	<-f.entered

	errc := make(chan error, 1)
	go func() { errc <- c.RSVP(context.Background(), "ev1") }()
	<-f.entered

	// The server already counts the rsvp in this list.
	f.set(func(f *fakeAPI) { f.events = `[{"_id":"ev1","title":"Hackathon","rsvpCount":4},{"_id":"ev2","rsvpCount":0}]` })
	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	<-f.entered
	f.set(func(f *fakeAPI) { f.listStatus = http.StatusServiceUnavailable })
	close(gate)

	if err := <-errc; !errors.Is(err, domain.ErrServerFault) {
		t.Fatalf("expected refresh error surfaced, got %v", err)
	}
	got := find(c.Events(), "ev1")
	if got.RSVPCount != 4 || got.CurrentUserRSVPStatus != domain.RSVPGoing {
		t.Fatalf("expected the last server count 4 going, got %+v", got)
	}
}

func TestDoubleRSVPIsRejectedWhilePending(t *testing.T) {
	f, api := newFakeAPI(t)
	gate := make(chan struct{})
	f.set(func(f *fakeAPI) { f.rsvpGate = gate })
	c := newController(api, loggedIn(t, domain.RoleStudent), nil)
	c.Fetch(context.Background())
	<-f.entered

	errc := make(chan error, 1)
	go func() { errc <- c.RSVP(context.Background(), "ev1") }()
	<-f.entered

	if err := c.RSVP(context.Background(), "ev1"); !errors.Is(err, domain.ErrOperationInProgress) {
		t.Fatalf("expected operation in progress, got %v", err)
	}
	if got := find(c.Events(), "ev1").RSVPCount; got != 4 {
		t.Fatalf("second tap must not increment again, got %d", got)
	}
	close(gate)
	if err := <-errc; err != nil {
		t.Fatalf("first rsvp: %v", err)
	}
	if f.rsvpCount() != 1 {
		t.Fatalf("expected exactly one rsvp request, got %d", f.rsvpCount())
	}
}

func TestRSVPResponseAfterLogoutIsDiscarded(t *testing.T) {
	f, api := newFakeAPI(t)
	gate := make(chan struct{})
	f.set(func(f *fakeAPI) { f.rsvpGate = gate })
	sessions := loggedIn(t, domain.RoleStudent)
	c := newController(api, sessions, nil)
	c.Fetch(context.Background())
	<-f.entered

	errc := make(chan error, 1)
	go func() { errc <- c.RSVP(context.Background(), "ev1") }()
	<-f.entered
	if err := sessions.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	close(gate)

	if err := <-errc; !errors.Is(err, domain.ErrAuthRequired) {
		t.Fatalf("expected auth required, got %v", err)
	}
	if got := find(c.Events(), "ev1"); got.RSVPCount != 3 || got.CurrentUserRSVPStatus != domain.RSVPNone {
		t.Fatalf("expected rollback, got %+v", got)
	}
	if f.listCount() != 1 {
		t.Fatalf("no reconciliation fetch expected after logout")
	}
}

func TestRSVPUnknownEventHasNoVisiblePatch(t *testing.T) {
	f, api := newFakeAPI(t)
	c := newController(api, loggedIn(t, domain.RoleStudent), nil)
	c.Fetch(context.Background())

	if err := c.RSVP(context.Background(), "ev404"); err != nil {
		t.Fatalf("rsvp: %v", err)
	}
	if f.rsvpCount() != 1 || f.rsvps[0] != "ev404" {
		t.Fatalf("expected request for unknown event, got %v", f.rsvps)
	}
	if len(c.Events()) != 2 {
		t.Fatalf("unknown event must not appear in the feed")
	}
}

func TestOrganizerLoginThenRSVPSendsToken(t *testing.T) {
	f, api := newFakeAPI(t)
	sessions := session.New(store.NewMemory())
	authCtrl := auth.NewController(api, sessions, i18n.NewTranslator("en"))
	c := newController(api, sessions, authCtrl)

	user, err := authCtrl.Login(context.Background(), "a@b.com", "x")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Role != domain.RoleOrganizer || sessions.Load().Role() != domain.RoleOrganizer {
		t.Fatalf("expected organizer session")
	}
	if err := c.RSVP(context.Background(), "ev1"); err != nil {
		t.Fatalf("rsvp: %v", err)
	}
	if len(f.tokens) != 1 || f.tokens[0] != "t1" {
		t.Fatalf("expected x-auth-token t1, got %q", f.tokens)
	}
}

func TestCreateEvent(t *testing.T) {
	draft := domain.EventDraft{
		Title:    "Demo Day",
		Date:     time.Date(2026, 11, 2, 15, 0, 0, 0, time.UTC),
		Location: "Hall B",
		Category: "tech",
		ImageURL: "https://res.cloudinary.com/demo/image/upload/x.jpg",
	}

	t.Run("gated", func(t *testing.T) {
		_, api := newFakeAPI(t)
		if _, err := newController(api, session.New(store.NewMemory()), nil).CreateEvent(context.Background(), draft); !errors.Is(err, domain.ErrAuthRequired) {
			t.Fatalf("expected auth required, got %v", err)
		}
		if _, err := newController(api, loggedIn(t, domain.RoleStudent), nil).CreateEvent(context.Background(), draft); !errors.Is(err, domain.ErrForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
		bad := draft
		bad.Location = " "
		if _, err := newController(api, loggedIn(t, domain.RoleOrganizer), nil).CreateEvent(context.Background(), bad); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})

	t.Run("organizer", func(t *testing.T) {
		f, api := newFakeAPI(t)
		c := newController(api, loggedIn(t, domain.RoleOrganizer), nil)
		created, err := c.CreateEvent(context.Background(), draft)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if created.ID != "ev3" {
			t.Fatalf("unexpected created event %+v", created)
		}
		if f.created["title"] != "Demo Day" || f.created["imageUrl"] != draft.ImageURL || f.tokens[0] != "t1" {
			t.Fatalf("unexpected create request %v tokens %v", f.created, f.tokens)
		}
		if f.listCount() != 1 || len(c.Events()) != 2 {
			t.Fatalf("expected feed refreshed after create")
		}
	})
}
