// Package supervisor owns the transport connection: it brings it up after
// the control plane is listening, runs the single dispatcher loop over the
// transport event stream, and re-establishes the connection when it drops.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grabtexts/wabridge/pkg/bus"
	"github.com/grabtexts/wabridge/pkg/config"
	"github.com/grabtexts/wabridge/pkg/logger"
	"github.com/grabtexts/wabridge/pkg/session"
	"github.com/grabtexts/wabridge/pkg/transport"
)

var (
	reconnectBaseDelay = 2 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// A logout invalidates the stored credentials; anything else keeps them.
const reasonLoggedOut = "logged_out"

// Forwarder handles one inbound message event end to end.
type Forwarder interface {
	Forward(ctx context.Context, ev *bus.MessageEvent)
}

type Supervisor struct {
	cfg  *config.Config
	sess *session.Session
	tr   transport.Transport
	fwd  Forwarder

	// workCtx outlives the run context so in-flight forwards can finish
	// during the shutdown grace period.
	workCtx    context.Context
	workCancel context.CancelFunc

	inflight sync.WaitGroup
	fatal    chan error
}

func New(cfg *config.Config, sess *session.Session, tr transport.Transport, fwd Forwarder) *Supervisor {
	workCtx, workCancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:        cfg,
		sess:       sess,
		tr:         tr,
		fwd:        fwd,
		workCtx:    workCtx,
		workCancel: workCancel,
		fatal:      make(chan error, 1),
	}
}

// Start initiates the transport asynchronously so the caller's HTTP
// surface answers health checks while the transport is still connecting.
// Initialization failure after the lock-cleanup retry is surfaced on
// Fatal.
func (s *Supervisor) Start(ctx context.Context) {
	go func() {
		if err := s.initialize(ctx); err != nil {
			s.fatal <- err
			return
		}
		s.dispatch(ctx)
	}()
}

// Fatal reports an unrecoverable initialization failure.
func (s *Supervisor) Fatal() <-chan error {
	return s.fatal
}

// IsReady is the readiness source of truth for the pipeline and the
// control plane.
func (s *Supervisor) IsReady() bool {
	return s.sess.IsReady()
}

// initialize connects, retrying once after clearing stale lock state left
// by a crashed predecessor.
func (s *Supervisor) initialize(ctx context.Context) error {
	if err := transport.EnsureAuthStore(s.cfg.AuthStorePath); err != nil {
		return err
	}

	err := s.tr.Connect(ctx)
	if err == nil {
		return nil
	}
	logger.WarnCF("supervisor", "initial connect failed, clearing stale locks", map[string]interface{}{
		"error": err.Error(),
	})

	if lerr := transport.ClearLocks(s.cfg.AuthStorePath); lerr != nil {
		logger.WarnCF("supervisor", "lock cleanup failed", map[string]interface{}{
			"error": lerr.Error(),
		})
	}
	if err := s.tr.Connect(ctx); err != nil {
		return fmt.Errorf("transport initialization failed after retry: %w", err)
	}
	return nil
}

// dispatch is the single consumer of the transport event stream. All
// session state transitions happen here, serialized; forwards fan out as
// independent goroutines.
func (s *Supervisor) dispatch(ctx context.Context) {
	events := s.tr.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, ev bus.Event) {
	switch ev.Kind {
	case bus.EventPairingCode:
		s.sess.OnPairingCode(ev.Code)
		logger.InfoCF("supervisor", "pairing code issued, scan it via /qr", map[string]interface{}{
			"code": ev.Code,
		})

	case bus.EventAuthenticated:
		s.sess.OnAuthenticated()
		logger.InfoC("supervisor", "authenticated")

	case bus.EventAuthFailure:
		logger.ErrorCF("supervisor", "authentication failed", map[string]interface{}{
			"reason": ev.Reason,
		})

	case bus.EventReady:
		s.sess.OnReady()
		logger.InfoC("supervisor", "session ready")

	case bus.EventDisconnected:
		s.sess.OnDisconnected()
		logger.WarnCF("supervisor", "disconnected", map[string]interface{}{
			"reason": ev.Reason,
		})
		s.reconnect(ctx, ev.Reason)

	case bus.EventMessage:
		if !s.sess.IsReady() {
			logger.DebugC("supervisor", "ignoring message, session not ready")
			return
		}
		s.inflight.Add(1)
		go func(msg *bus.MessageEvent) {
			defer s.inflight.Done()
			s.fwd.Forward(s.workCtx, msg)
		}(ev.Message)
	}
}

// reconnect re-establishes the transport after a disconnect, backing off
// between attempts. A logout wipes the stored session first so the next
// connect starts a fresh pairing round.
func (s *Supervisor) reconnect(ctx context.Context, reason string) {
	if reason == reasonLoggedOut {
		if err := transport.ClearSession(s.cfg.AuthStorePath, s.cfg.ClientID); err != nil {
			logger.WarnCF("supervisor", "session cleanup failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	delay := reconnectBaseDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		err := s.tr.Connect(ctx)
		if err == nil {
			logger.InfoCF("supervisor", "reconnected", map[string]interface{}{
				"attempts": attempt,
			})
			return
		}
		logger.WarnCF("supervisor", "reconnect failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// Shutdown waits for in-flight forwards to finish within the grace period,
// then abandons the stragglers and closes the transport. The transport
// handle is released on every path.
func (s *Supervisor) Shutdown(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.WarnC("supervisor", "grace period expired, abandoning in-flight forwards")
	}

	s.workCancel()
	if err := s.tr.Close(); err != nil {
		logger.WarnCF("supervisor", "transport close failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
