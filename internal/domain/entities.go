package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Role is the account type chosen at registration.
type Role string

const (
	RoleStudent   Role = "student"
	RoleOrganizer Role = "organizer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleOrganizer
}

// Home is the landing destination for a freshly authenticated user of role r.
func (r Role) Home() string {
	if r == RoleOrganizer {
		return "organizer-dashboard"
	}
	return "events"
}

// UserProfile is the account returned by the auth endpoints.
type UserProfile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	RollNo      string `json:"rollNo,omitempty"`
	YearSection string `json:"yearSection,omitempty"`
}

// UnmarshalJSON accepts both "id" and "_id" and drops the student-only
// fields from non-student profiles.
func (u *UserProfile) UnmarshalJSON(data []byte) error {
	type alias UserProfile
	var raw struct {
		alias
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = UserProfile(raw.alias)
	if u.ID == "" {
		u.ID = raw.MongoID
	}
	if u.Role != RoleStudent {
		u.RollNo = ""
		u.YearSection = ""
	}
	return nil
}

// Validate checks the invariants a stored profile must satisfy.
func (u *UserProfile) Validate() error {
	if u == nil {
		return Invalid("user profile missing")
	}
	if strings.TrimSpace(u.ID) == "" {
		return Invalid("user profile has no id")
	}
	if !u.Role.Valid() {
		return Invalid("user profile has unknown role %q", u.Role)
	}
	return nil
}

// Session is the pair of auth token and profile that represents who is
// logged in. Both are present or both are absent.
type Session struct {
	Token string
	User  *UserProfile
}

// Active reports whether the session holds a token and a profile.
func (s Session) Active() bool {
	return s.Token != "" && s.User != nil
}

// Role returns the session role, or "" when logged out.
func (s Session) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// RSVPStatus is the current user's answer for an event.
type RSVPStatus string

const (
	RSVPNone  RSVPStatus = ""
	RSVPGoing RSVPStatus = "going"
)

// Event is a campus event as served by GET /events.
type Event struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	Date                  time.Time  `json:"date"`
	Location              string     `json:"location"`
	Category              string     `json:"category"`
	ImageURL              string     `json:"imageUrl,omitempty"`
	RSVPCount             int        `json:"rsvpCount"`
	CurrentUserRSVPStatus RSVPStatus `json:"currentUserRsvpStatus,omitempty"`
}

// UnmarshalJSON accepts both "id" and "_id".
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	var raw struct {
		alias
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event(raw.alias)
	if e.ID == "" {
		e.ID = raw.MongoID
	}
	return nil
}

// Validate rejects events the feed cannot hold.
func (e Event) Validate() error {
	if e.ID == "" {
		return Invalid("event has no id")
	}
	if e.RSVPCount < 0 {
		return Invalid("event %s has negative rsvp count %d", e.ID, e.RSVPCount)
	}
	return nil
}

// EventDraft is the organizer input for POST /events.
type EventDraft struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"imageUrl"`
}

// Validate checks the required draft fields.
func (d EventDraft) Validate() error {
	switch {
	case strings.TrimSpace(d.Title) == "":
		return Invalid("title is required")
	case d.Date.IsZero():
		return Invalid("date is required")
	case strings.TrimSpace(d.Location) == "":
		return Invalid("location is required")
	case strings.TrimSpace(d.Category) == "":
		return Invalid("category is required")
	}
	return nil
}
