package emv

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// LoopConfig controls target polling.
type LoopConfig struct {
	PollInterval time.Duration
	Backoff      BackoffConfig
	// Once stops the loop after the first cycle.
	Once bool
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		PollInterval: 200 * time.Millisecond,
		Backoff:      DefaultBackoffConfig(),
	}
}

// Loop waits for targets and runs one cycle per tap. A target must leave
// the field before the next cycle starts.
type Loop struct {
	reader    *Reader
	cfg       LoopConfig
	log       zerolog.Logger
	rng       *rand.Rand
	onOutcome func(Outcome)
}

func NewLoop(reader *Reader, cfg LoopConfig, logger zerolog.Logger) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultLoopConfig().PollInterval
	}
	return &Loop{
		reader: reader,
		cfg:    cfg,
		log:    logger.With().Str("component", "emv.loop").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OnOutcome registers fn to receive every cycle outcome. It runs on the
// loop goroutine.
func (l *Loop) OnOutcome(fn func(Outcome)) {
	l.onOutcome = fn
}

// Run polls until ctx is done or the transport is closed. It returns nil on
// cancellation. With Once set it returns after the first cycle, reporting the
// cycle error if any.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().Dur("poll_interval", l.cfg.PollInterval).Bool("once", l.cfg.Once).Msg("waiting for target")
	for {
		present, err := l.detect(ctx)
		if err != nil {
			return stopErr(ctx, err)
		}
		if !present {
			if !sleep(ctx, l.cfg.PollInterval) {
				return nil
			}
			continue
		}

		out := l.reader.RunCycle(ctx)
		if l.onOutcome != nil {
			l.onOutcome(out)
		}
		if l.cfg.Once {
			if out.Err != nil {
				return out.Err
			}
			return nil
		}
		if err := l.waitRemoval(ctx); err != nil {
			return stopErr(ctx, err)
		}
		l.log.Debug().Msg("target removed")
	}
}

func stopErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// detect polls once, retrying with backoff until the transport answers. It
// returns an error only when ctx ends or the transport is closed.
func (l *Loop) detect(ctx context.Context) (bool, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		present, err := l.reader.transport.DetectTarget(ctx)
		if err == nil {
			return present, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, ErrTransportClosed) {
			l.log.Warn().Err(err).Msg("transport closed, stopping")
			return false, err
		}
		delay := NextBackoffDelay(l.cfg.Backoff, attempt, l.rng)
		l.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("target detection failed")
		if !sleep(ctx, delay) {
			return false, ctx.Err()
		}
	}
}

func (l *Loop) waitRemoval(ctx context.Context) error {
	for {
		present, err := l.detect(ctx)
		if err != nil {
			return err
		}
		if !present {
			return nil
		}
		if !sleep(ctx, l.cfg.PollInterval) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
