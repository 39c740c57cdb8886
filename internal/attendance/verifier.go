package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"campusconnect/internal/apiclient"
	"campusconnect/internal/domain"
	"campusconnect/internal/metrics"
)

// State is the position of the scan latch.
type State int

const (
	StateArmed State = iota
	StateSubmitting
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	case StateLocked:
		return "locked"
	default:
		return "armed"
	}
}

// Scan is one accepted scan.
type Scan struct {
	RawPayload string
	EventID    string
}

// Result is the outcome of an accepted scan. On success Err is nil and
// Message holds the server's confirmation.
type Result struct {
	Scan    Scan
	Message string
	Err     error
}

// Verifier submits attendance scans one at a time. After every result it
// stays Locked until Rearm is called.
type Verifier struct {
	api         *apiclient.Client
	sessions    domain.SessionReader
	invalidator domain.SessionInvalidator

	mu    sync.Mutex
	state State
	last  *Result
}

// NewVerifier creates an Armed verifier. invalidator may be nil.
func NewVerifier(api *apiclient.Client, sessions domain.SessionReader, invalidator domain.SessionInvalidator) *Verifier {
	return &Verifier{api: api, sessions: sessions, invalidator: invalidator}
}

// OnScan handles a scanned payload. Scans arriving while not Armed are
// dropped and accepted is false.
func (v *Verifier) OnScan(ctx context.Context, raw string) (res Result, accepted bool) {
	v.mu.Lock()
	if v.state != StateArmed {
		v.mu.Unlock()
		metrics.Scans.WithLabelValues("ignored").Inc()
		return Result{}, false
	}
	v.state = StateSubmitting
	v.mu.Unlock()

	scan := Scan{RawPayload: raw, EventID: DecodePayload(raw)}
	if scan.EventID == "" {
		return v.settle(Result{Scan: scan, Err: domain.Invalid("scanned code is empty")}, StateLocked), true
	}

	s, gen := v.sessions.Snapshot()
	if !s.Active() {
		return v.settle(Result{Scan: scan, Err: domain.ErrAuthRequired}, StateArmed), true
	}

	msg, err := v.verify(ctx, scan.EventID, s.Token)
	if errors.Is(err, domain.ErrUnauthorized) && v.invalidator != nil {
		v.invalidator.Invalidate(ctx, gen)
	}
	return v.settle(Result{Scan: scan, Message: msg, Err: err}, StateLocked), true
}

func (v *Verifier) verify(ctx context.Context, eventID, token string) (string, error) {
	resp, err := v.api.Do(ctx, http.MethodPost, "/attendance/verify", map[string]string{"eventId": eventID}, token)
	if err != nil {
		return "", err
	}
	var out struct {
		Msg string `json:"msg"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	return out.Msg, nil
}

func (v *Verifier) settle(res Result, next State) Result {
	outcome := "verified"
	evt := log.Info()
	if res.Err != nil {
		outcome = domain.Code(res.Err)
		evt = log.Warn().Err(res.Err)
	}
	metrics.Scans.WithLabelValues(outcome).Inc()
	evt.Str("event", res.Scan.EventID).Str("outcome", outcome).Msg("attendance scan")

	v.mu.Lock()
	v.state = next
	v.last = &res
	v.mu.Unlock()
	return res
}

// Rearm accepts the next scan.
func (v *Verifier) Rearm() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == StateLocked {
		v.state = StateArmed
	}
}

func (v *Verifier) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Last returns the most recent result, or nil before the first scan.
func (v *Verifier) Last() *Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.last == nil {
		return nil
	}
	r := *v.last
	return &r
}

// DecodePayload extracts the event id from a scanned code. A JSON object
// with an eventId field yields that value; anything else is taken verbatim.
func DecodePayload(raw string) string {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return raw
	}
	field, ok := obj["eventId"]
	if !ok {
		return raw
	}
	var s string
	if err := json.Unmarshal(field, &s); err == nil && strings.TrimSpace(s) != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(field, &n); err == nil && n != "" {
		return n.String()
	}
	return raw
}
