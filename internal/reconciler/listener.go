package reconciler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/decentralized-86/pumpshie-backend/internal/chain"
)

// catchupLimit is how many recent signatures get replayed per address when a
// websocket session (re)connects. Idempotent processing makes overlap with
// already-handled signatures harmless.
const catchupLimit = 20

// Listener supervises the websocket subscription and feeds every surfaced
// signature into the Reconciler. It reconnects with exponential backoff and
// only stops when its context is cancelled.
type Listener struct {
	rec   *Reconciler
	wsURL string
}

// NewListener creates a Listener over the given websocket endpoint.
func NewListener(rec *Reconciler, wsURL string) *Listener {
	return &Listener{rec: rec, wsURL: wsURL}
}

// Run blocks until ctx is cancelled, keeping one subscription session alive
// at a time.
func (l *Listener) Run(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}

		err := l.runSession(ctx)
		if ctx.Err() != nil {
			return
		}

		wait := policy.NextBackOff()
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Chain listener session ended, reconnecting")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// runSession holds one websocket session: subscribe, replay recent history,
// then drain notifications until the socket drops.
func (l *Listener) runSession(ctx context.Context) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := chain.Subscribe(sessionCtx, l.wsURL, l.rec.cfg.DepositTokenAccount, l.rec.cfg.AdminAddress)
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Info().Str("ws_url", l.wsURL).Msg("Chain listener connected")

	// Deposits that landed while disconnected are settled before live
	// events are consumed.
	l.catchUp(sessionCtx)

	for {
		select {
		case <-sessionCtx.Done():
			return sessionCtx.Err()
		case n, ok := <-sub.Events():
			if !ok {
				return chain.ErrUnavailable
			}
			l.handle(sessionCtx, n)
		}
	}
}

func (l *Listener) handle(ctx context.Context, n chain.Notification) {
	switch n.Kind {
	case chain.LogsNotification:
		if err := l.rec.ProcessSignature(ctx, n.Signature); err != nil {
			log.Error().Err(err).Str("sig", n.Signature).Msg("Failed to process signature")
		}
	case chain.AccountNotification:
		// Account notifications carry no signature; resolve the recent
		// ones by polling the deposit account.
		l.replayAddress(ctx, l.rec.cfg.DepositTokenAccount)
	}
}

func (l *Listener) catchUp(ctx context.Context) {
	l.replayAddress(ctx, l.rec.cfg.DepositTokenAccount)
	l.replayAddress(ctx, l.rec.cfg.AdminAddress)
}

func (l *Listener) replayAddress(ctx context.Context, address string) {
	sigs, err := l.rec.chain.GetSignaturesForAddress(ctx, address, catchupLimit)
	if err != nil {
		log.Warn().Err(err).Str("address", address).Msg("Signature replay fetch failed")
		return
	}
	// Oldest first so late settlements apply in chain order.
	for i := len(sigs) - 1; i >= 0; i-- {
		if err := l.rec.ProcessSignature(ctx, sigs[i]); err != nil {
			log.Error().Err(err).Str("sig", sigs[i]).Msg("Failed to process replayed signature")
		}
	}
}
