package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campusconnect/internal/apiclient"
	"campusconnect/internal/domain"
	"campusconnect/internal/session"
	"campusconnect/internal/store"
)

func TestDecodePayload(t *testing.T) {
	cases := map[string]string{
		`{"eventId":"ev42"}`:            "ev42",
		`{"eventId":17,"title":"Talk"}`: "17",
		` {"eventId":"ev7"} `:           "ev7",
		`ev42`:                          "ev42",
		`https://campus.example/e/ev42`: "https://campus.example/e/ev42",
		`{"event":"ev42"}`:              `{"event":"ev42"}`,
		`{"eventId":""}`:                `{"eventId":""}`,
		`{"eventId":null}`:              `{"eventId":null}`,
		`["ev42"]`:                      `["ev42"]`,
		`{"eventId":"ev1"`:              `{"eventId":"ev1"`,
		"":                              "",
		"   ":                           "",
	}
	for raw, expected := range cases {
		if got := DecodePayload(raw); got != expected {
			t.Fatalf("payload %q: expected %q, got %q", raw, expected, got)
		}
	}
}

type verifyServer struct {
	status int
	body   string
	hits   atomic.Int32

	mu     sync.Mutex
	ids    []string
	tokens []string
}

func (s *verifyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.ids = append(s.ids, body["eventId"])
	s.tokens = append(s.tokens, r.Header.Get(apiclient.AuthHeader))
	s.mu.Unlock()
	w.WriteHeader(s.status)
	w.Write([]byte(s.body))
}

func newVerifier(t *testing.T, srv *verifyServer, loggedIn bool) (*Verifier, *session.Store) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	sessions := session.New(store.NewMemory())
	if loggedIn {
		if err := sessions.Save(context.Background(), "t1", &domain.UserProfile{ID: "u1", Role: domain.RoleStudent}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	return NewVerifier(apiclient.New(ts.URL, time.Second), sessions, nil), sessions
}

func TestScanSuccessLocksUntilRearm(t *testing.T) {
	srv := &verifyServer{status: http.StatusOK, body: `{"msg":"Attendance marked"}`}
	v, _ := newVerifier(t, srv, true)
	ctx := context.Background()

	res, accepted := v.OnScan(ctx, `{"eventId":"ev1"}`)
	if !accepted || res.Err != nil || res.Message != "Attendance marked" || res.Scan.EventID != "ev1" {
		t.Fatalf("unexpected result %+v accepted=%v", res, accepted)
	}
	if v.State() != StateLocked {
		t.Fatalf("expected locked, got %s", v.State())
	}

	for i := 0; i < 3; i++ {
		if _, accepted := v.OnScan(ctx, "ev2"); accepted {
			t.Fatalf("scan accepted while locked")
		}
	}
	if srv.hits.Load() != 1 {
		t.Fatalf("expected one request while latched, got %d", srv.hits.Load())
	}

	v.Rearm()
	if _, accepted := v.OnScan(ctx, "ev2"); !accepted {
		t.Fatalf("expected scan accepted after rearm")
	}
	if srv.ids[0] != "ev1" || srv.ids[1] != "ev2" || srv.tokens[1] != "t1" {
		t.Fatalf("unexpected requests ids=%v tokens=%v", srv.ids, srv.tokens)
	}
}

func TestScanFailureLocks(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		kind   domain.Kind
	}{
		"rejected":     {http.StatusBadRequest, `{"msg":"Event not found"}`, domain.KindServerRejected},
		"unauthorized": {http.StatusUnauthorized, `{"msg":"Token is not valid"}`, domain.KindUnauthorized},
		"fault":        {http.StatusInternalServerError, ``, domain.KindServerFault},
		"malformed":    {http.StatusOK, `<html>`, domain.KindMalformed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := &verifyServer{status: tc.status, body: tc.body}
			v, _ := newVerifier(t, srv, true)
			res, accepted := v.OnScan(context.Background(), "ev1")
			if !accepted || domain.KindOf(res.Err) != tc.kind {
				t.Fatalf("expected %s, got %v", tc.kind, res.Err)
			}
			if v.State() != StateLocked {
				t.Fatalf("a failed scan must lock, got %s", v.State())
			}
			if _, accepted := v.OnScan(context.Background(), "ev1"); accepted || srv.hits.Load() != 1 {
				t.Fatalf("failed scan must not be retried automatically")
			}
		})
	}
}

func TestScanWithoutSessionRearms(t *testing.T) {
	srv := &verifyServer{status: http.StatusOK, body: `{"msg":"ok"}`}
	v, _ := newVerifier(t, srv, false)

	res, accepted := v.OnScan(context.Background(), "ev1")
	if !accepted || !errors.Is(res.Err, domain.ErrAuthRequired) {
		t.Fatalf("expected auth required, got %v", res.Err)
	}
	if v.State() != StateArmed {
		t.Fatalf("expected armed, got %s", v.State())
	}
	if srv.hits.Load() != 0 {
		t.Fatalf("expected no request")
	}
}

func TestEmptyScanIsRejectedLocally(t *testing.T) {
	srv := &verifyServer{status: http.StatusOK, body: `{"msg":"ok"}`}
	v, _ := newVerifier(t, srv, true)

	res, accepted := v.OnScan(context.Background(), "  ")
	if !accepted || !errors.Is(res.Err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", res.Err)
	}
	if v.State() != StateLocked || srv.hits.Load() != 0 {
		t.Fatalf("expected locked with no request")
	}
	if last := v.Last(); last == nil || !errors.Is(last.Err, domain.ErrInvalidInput) {
		t.Fatalf("expected last result recorded, got %+v", last)
	}
}

type invalidations struct{ gens []uint64 }

func (i *invalidations) Invalidate(_ context.Context, gen uint64) { i.gens = append(i.gens, gen) }

func TestUnauthorizedScanInvalidatesSession(t *testing.T) {
	srv := &verifyServer{status: http.StatusUnauthorized, body: `{"msg":"Token is not valid"}`}
	v, sessions := newVerifier(t, srv, true)
	inv := &invalidations{}
	v.invalidator = inv

	v.OnScan(context.Background(), "ev1")
	_, gen := sessions.Snapshot()
	if len(inv.gens) != 1 || inv.gens[0] != gen {
		t.Fatalf("expected invalidation of generation %d, got %v", gen, inv.gens)
	}
}

func TestConcurrentScansSubmitOnce(t *testing.T) {
	srv := &verifyServer{status: http.StatusOK, body: `{"msg":"ok"}`}
	v, _ := newVerifier(t, srv, true)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := v.OnScan(context.Background(), "ev1"); ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	if accepted.Load() != 1 || srv.hits.Load() != 1 {
		t.Fatalf("expected exactly one accepted scan, got %d accepted %d requests", accepted.Load(), srv.hits.Load())
	}
}
