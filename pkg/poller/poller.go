// Package poller dispatches periodic tick actions between a start action and a cancel or
// remove action.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/listenkit/listenkit/pkg/action"
	"github.com/listenkit/listenkit/pkg/listener"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// Actions handled and produced by the poller.
var (
	Start   = action.NewCreator("poller/start")   // Optional payload: interval, e.g. "250ms".
	Cancel  = action.NewCreator("poller/cancel")  // Stops ticking until the next start.
	Remove  = action.NewCreator("poller/remove")  // Stops ticking and ignores later starts.
	Tick    = action.NewCreator("poller/tick")    // Payload: tick number, counting from 1.
	Stopped = action.NewCreator("poller/stopped") // Payload: Cancel, Remove or "timeout".
)

// Poller is a listener that ticks while a session is active.  Overlapping start actions run
// independent sessions.
type Poller struct {
	mw       *listener.Middleware
	interval time.Duration
	timeout  time.Duration
	effect   listener.Effect
	logger   zerolog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the default tick interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

// WithTimeout bounds each session.  Zero, the default, ticks until canceled.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) { p.timeout = d }
}

// New creates a poller; call Register to start listening for Start.
func New(mw *listener.Middleware, opts ...Option) *Poller {
	p := &Poller{
		mw:       mw,
		interval: time.Second,
		logger:   log.With().Str("module", "poller").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	// The effect is kept in a field so that it has a stable identity for removal.
	p.effect = p.run
	return p
}

// Register adds the poller's listener to the middleware.
func (p *Poller) Register() error {
	_, err := p.mw.AddListener(listener.Registration{
		Trigger: listener.OnAction(Start),
		Effect:  p.effect,
	})
	return err
}

// Unregister removes the poller's listener.  Running sessions continue until canceled.
func (p *Poller) Unregister() bool {
	return p.mw.RemoveListener(listener.OnAction(Start), p.effect)
}

func (p *Poller) run(ctx context.Context, a action.Action, api *listener.API) error {
	interval := p.interval
	if a.Payload != nil {
		d, err := cast.ToDurationE(a.Payload)
		if err != nil {
			return err
		}
		if d > 0 {
			interval = d
		}
	}
	logger := p.logger.With().Str("listener", api.ListenerID()).Logger()
	logger.Debug().Dur("interval", interval).Msg("Polling started")

	// halted is set while the cancel or remove dispatch is still being swept, so no tick
	// follows it into the reducer.
	var halted atomic.Bool
	stopping := listener.Matches(action.IsAnyOf(Cancel, Remove))
	done := func(a action.Action, current, previous any) bool {
		if !stopping(a, current, previous) {
			return false
		}
		halted.Store(true)
		return true
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for n := 1; ; n++ {
			select {
			case <-ticker.C:
				if halted.Load() {
					return
				}
				api.Dispatch(Tick.New(n))
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	taken, ok := api.Take(ctx, done, p.timeout)
	close(stop)
	wg.Wait()

	reason := "timeout"
	if ok {
		reason = taken.Action.Type
		if Remove.Match(taken.Action) {
			api.Unsubscribe()
		}
	}
	if ctx.Err() != nil {
		logger.Debug().Msg("Polling abandoned on shutdown")
		return nil
	}
	logger.Debug().Str("reason", reason).Msg("Polling stopped")
	api.Dispatch(Stopped.New(reason))

	return nil
}
