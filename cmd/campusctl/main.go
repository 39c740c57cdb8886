package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"campusconnect/internal/apiclient"
	"campusconnect/internal/attendance"
	"campusconnect/internal/auth"
	"campusconnect/internal/config"
	"campusconnect/internal/domain"
	"campusconnect/internal/feed"
	"campusconnect/internal/i18n"
	"campusconnect/internal/logging"
	"campusconnect/internal/session"
	"campusconnect/internal/store"
)

const usage = `usage: campusctl <command> [flags]

commands:
  login          -email -password
  register       -role student|organizer -name -email -password [-roll -year]
  logout
  whoami
  events
  rsvp           -event ID
  create-event   -title -date -location -category [-description -image FILE]
  verify         -payload CODE
  scanner-token  -device ID
`

// app holds the wired client core for one command invocation.
type app struct {
	cfg      config.App
	rdb      *store.Redis
	backend  store.Sessions
	sessions *session.Store
	msgs     *i18n.Translator
	auth     *auth.Controller
	feed     *feed.Controller
	verifier *attendance.Verifier
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "help" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	err = a.run(ctx, os.Args[1], os.Args[2:])
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, a.msgs.ErrorMessage(err))
		log.Debug().Err(err).Str("command", os.Args[1]).Msg("command failed")
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg config.App) (*app, error) {
	a := &app{cfg: cfg, msgs: i18n.NewTranslator(cfg.Locale)}
	if cfg.SessionBackend == "redis" {
		a.rdb = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	}
	backend, err := store.OpenSessions(cfg, a.rdb)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open session storage: %w", err)
	}
	a.backend = backend
	a.sessions = session.New(backend)

	api := apiclient.New(cfg.APIBaseURL, cfg.RequestTimeout)
	a.auth = auth.NewController(api, a.sessions, a.msgs)
	a.feed = feed.NewController(api, a.sessions, a.auth, a.msgs)
	a.verifier = attendance.NewVerifier(api, a.sessions, a.auth)
	a.auth.Restore(ctx)
	return a, nil
}

func (a *app) close() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			log.Warn().Err(err).Msg("close session storage")
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami()
	case "events":
		return a.events(ctx)
	case "rsvp":
		return a.rsvp(ctx, args)
	case "create-event":
		return a.createEvent(ctx, args)
	case "verify":
		return a.verify(ctx, args)
	case "scanner-token":
		return a.scannerToken(args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return domain.Invalid("unknown command %q", cmd)
	}
}
