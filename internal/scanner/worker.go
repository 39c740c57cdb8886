package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"campusconnect/internal/attendance"
	"campusconnect/internal/domain"
	"campusconnect/internal/queue"
)

// Worker feeds queued scans to the verifier and re-arms it after Cooldown.
// Scans consumed while the verifier is latched are dropped.
type Worker struct {
	Verifier *attendance.Verifier
	Messages domain.Messages
	Cooldown time.Duration
}

// Run consumes msgs until ctx ends or msgs is closed.
func (w *Worker) Run(ctx context.Context, msgs <-chan queue.Message) {
	var rearm <-chan time.Time
	log.Info().Dur("cooldown", w.Cooldown).Msg("scan worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scan worker stopped")
			return
		case <-rearm:
			rearm = nil
			w.Verifier.Rearm()
			log.Debug().Msg("scanner re-armed")
		case msg, ok := <-msgs:
			if !ok {
				log.Info().Msg("scan queue closed")
				return
			}
			w.handle(ctx, msg)
			if rearm == nil && w.Verifier.State() == attendance.StateLocked {
				rearm = time.After(w.Cooldown)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	res, accepted := w.Verifier.OnScan(ctx, msg.Payload)
	evt := log.Info().Str("scan", msg.ID).Str("device", msg.DeviceID).Dur("queued", time.Since(msg.ReceivedAt))
	if !accepted {
		evt.Msg(w.Messages.T("scan.ignored", nil))
		return
	}
	if res.Err != nil {
		evt.Str("event", res.Scan.EventID).Str("code", domain.Code(res.Err)).Msg(w.Messages.ErrorMessage(res.Err))
		return
	}
	text := res.Message
	if text == "" {
		text = w.Messages.T("scan.verified_default", nil)
	}
	evt.Str("event", res.Scan.EventID).Msg(text)
}
