package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"campusconnect/internal/domain"
	"campusconnect/internal/media"
	"campusconnect/internal/scanner"
)

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("CAMPUS_PASSWORD"), "password (or CAMPUS_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return domain.Invalid("%v", err)
	}
	user, err := a.auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	a.welcome(user)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := newFlags("register")
	role := fs.String("role", string(domain.RoleStudent), "student or organizer")
	name := fs.String("name", "", "full name")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("CAMPUS_PASSWORD"), "password (or CAMPUS_PASSWORD)")
	roll := fs.String("roll", "", "roll number (students)")
	year := fs.String("year", "", "year and section (students)")
	if err := fs.Parse(args); err != nil {
		return domain.Invalid("%v", err)
	}

	var reg domain.Registration
	switch domain.Role(*role) {
	case domain.RoleStudent:
		reg = domain.StudentRegistration{Name: *name, Email: *email, Password: *password, RollNo: *roll, YearSection: *year}
	case domain.RoleOrganizer:
		reg = domain.OrganizerRegistration{Name: *name, Email: *email, Password: *password}
	default:
		return domain.Invalid("role must be student or organizer")
	}
	user, err := a.auth.Register(ctx, reg)
	if err != nil {
		return err
	}
	a.welcome(user)
	return nil
}

func (a *app) welcome(user *domain.UserProfile) {
	fmt.Println(a.msgs.T("auth.welcome", map[string]any{"Name": user.Name, "Role": user.Role}))
	fmt.Println("->", user.Role.Home())
}

func (a *app) logout(ctx context.Context) error {
	err := a.auth.Logout(ctx)
	fmt.Println(a.msgs.T("auth.logged_out", nil))
	return err
}

func (a *app) whoami() error {
	user := a.auth.Profile()
	if user == nil {
		fmt.Println(a.msgs.T("auth.not_logged_in", nil))
		return nil
	}
	fmt.Printf("%s <%s> %s", user.Name, user.Email, user.Role)
	if user.Role == domain.RoleStudent {
		fmt.Printf(" %s %s", user.RollNo, user.YearSection)
	}
	fmt.Println()
	return nil
}

func (a *app) events(ctx context.Context) error {
	events, err := a.feed.Fetch(ctx)
	if err != nil {
		return err
	}
	a.printEvents(events)
	return nil
}

func (a *app) printEvents(events []domain.Event) {
	if len(events) == 0 {
		fmt.Println(a.msgs.T("feed.empty", nil))
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, e := range events {
		going := ""
		if e.CurrentUserRSVPStatus == domain.RSVPGoing {
			going = a.msgs.T("feed.going", nil)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID, e.Date.Local().Format("Mon 02 Jan 15:04"), e.Title, e.Location, e.RSVPCount, going)
	}
	tw.Flush()
}

func (a *app) rsvp(ctx context.Context, args []string) error {
	fs := newFlags("rsvp")
	eventID := fs.String("event", "", "event id")
	if err := fs.Parse(args); err != nil {
		return domain.Invalid("%v", err)
	}
	if _, err := a.feed.Fetch(ctx); err != nil {
		return err
	}
	if err := a.feed.RSVP(ctx, *eventID); err != nil {
		return err
	}
	for _, e := range a.feed.Events() {
		if e.ID == *eventID {
			fmt.Println(a.msgs.T("feed.rsvp_done", map[string]any{"Title": e.Title, "Count": e.RSVPCount}))
		}
	}
	return nil
}

// dateLayouts are the accepted -date formats, tried in order.
var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(s), time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.Invalid("date %q is not in a recognized format (e.g. 2026-11-02 15:00)", s)
}

func (a *app) createEvent(ctx context.Context, args []string) error {
	fs := newFlags("create-event")
	title := fs.String("title", "", "event title")
	description := fs.String("description", "", "event description")
	date := fs.String("date", "", "start time, e.g. 2026-11-02 15:00")
	location := fs.String("location", "", "venue")
	category := fs.String("category", "", "category")
	image := fs.String("image", "", "cover image file to upload")
	if err := fs.Parse(args); err != nil {
		return domain.Invalid("%v", err)
	}
	when, err := parseDate(*date)
	if err != nil {
		return err
	}
	draft := domain.EventDraft{
		Title:       *title,
		Description: *description,
		Date:        when,
		Location:    *location,
		Category:    *category,
	}
	if err := draft.Validate(); err != nil {
		return err
	}
	if err := a.auth.RequireRole(domain.RoleOrganizer); err != nil {
		return err
	}

	if *image != "" {
		uploader, err := media.New(a.cfg.CloudinaryURL, a.cfg.CloudinaryFolder)
		if err != nil {
			return domain.Invalid("image upload unavailable: %v", err)
		}
		res, err := uploader.UploadFile(ctx, *image)
		if err != nil {
			return domain.NewError(domain.KindNetworkUnavailable, "", err)
		}
		draft.ImageURL = res.SecureURL
	}

	created, err := a.feed.CreateEvent(ctx, draft)
	if err != nil {
		return err
	}
	fmt.Println(a.msgs.T("feed.event_created", map[string]any{"Title": created.Title}))
	a.printEvents(a.feed.Events())
	return nil
}

func (a *app) verify(ctx context.Context, args []string) error {
	fs := newFlags("verify")
	payload := fs.String("payload", "", "scanned QR text")
	if err := fs.Parse(args); err != nil {
		return domain.Invalid("%v", err)
	}
	res, accepted := a.verifier.OnScan(ctx, *payload)
	if !accepted {
		return errors.New(a.msgs.T("scan.ignored", nil))
	}
	if res.Err != nil {
		return res.Err
	}
	if res.Message != "" {
		fmt.Println(a.msgs.T("scan.verified", map[string]any{"Message": res.Message}))
	} else {
		fmt.Println(a.msgs.T("scan.verified_default", nil))
	}
	return nil
}

func (a *app) scannerToken(args []string) error {
	fs := newFlags("scanner-token")
	device := fs.String("device", "", "scanner device id")
	ttl := fs.Duration("ttl", a.cfg.ScannerTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return domain.Invalid("%v", err)
	}
	if err := a.auth.RequireRole(domain.RoleOrganizer); err != nil {
		return err
	}
	token, exp, err := scanner.IssueDeviceToken(*device, a.cfg.ScannerIssuer, a.cfg.ScannerSigningKey, *ttl)
	if err != nil {
		return domain.Invalid("%v", err)
	}
	fmt.Println(a.msgs.T("scan.device_token", map[string]any{"Device": *device}))
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Local().Format(time.RFC1123))
	return nil
}
