package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ebfe/scard"
	"github.com/rs/zerolog"
)

var (
	ErrNoReader = errors.New("transport: no PC/SC reader")
	ErrBusy     = errors.New("transport: previous transmit still pending")
)

// card is the part of *scard.Card the driver uses.
type card interface {
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

// PCSC talks to a contactless reader through the platform PC/SC service.
// At most one transmit is outstanding per card; a card dropped while its
// transmit is pending is disconnected once that transmit returns.
type PCSC struct {
	mu       sync.Mutex
	ctx      *scard.Context
	reader   string
	card     card
	inflight bool
	orphan   card
	timeout  time.Duration
	log      zerolog.Logger
}

// OpenPCSC establishes a PC/SC context and selects the first reader whose
// name contains name, ignoring case. An empty name selects the first reader.
func OpenPCSC(name string, timeout time.Duration, logger zerolog.Logger) (*PCSC, error) {
	sc, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc establish context: %w", err)
	}
	readers, err := sc.ListReaders()
	if err != nil {
		_ = sc.Release()
		return nil, fmt.Errorf("pcsc list readers: %w", err)
	}
	reader, err := pickReader(readers, name)
	if err != nil {
		_ = sc.Release()
		return nil, err
	}
	p := &PCSC{
		ctx:     sc,
		reader:  reader,
		timeout: timeout,
		log:     logger.With().Str("component", "transport.pcsc").Str("reader", reader).Logger(),
	}
	p.log.Info().Strs("available", readers).Msg("reader opened")
	return p, nil
}

func pickReader(readers []string, name string) (string, error) {
	if len(readers) == 0 {
		return "", ErrNoReader
	}
	if name == "" {
		return readers[0], nil
	}
	want := strings.ToLower(name)
	for _, r := range readers {
		if strings.Contains(strings.ToLower(r), want) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w matching %q (have %s)", ErrNoReader, name, strings.Join(readers, ", "))
}

func (p *PCSC) Reader() string {
	return p.reader
}

// DetectTarget reads the reader state without blocking and connects to a
// newly presented card.
func (p *PCSC) DetectTarget(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return false, ErrClosed
	}

	states := []scard.ReaderState{{Reader: p.reader, CurrentState: scard.StateUnaware}}
	if err := p.ctx.GetStatusChange(states, 0); err != nil && !errors.Is(err, scard.ErrTimeout) {
		return false, fmt.Errorf("pcsc status: %w", err)
	}
	present := states[0].EventState&scard.StatePresent != 0

	switch {
	case present && p.card == nil:
		conn, err := p.ctx.Connect(p.reader, scard.ShareShared, scard.ProtocolAny)
		if err != nil {
			return false, fmt.Errorf("pcsc connect: %w", err)
		}
		p.card = conn
		p.log.Debug().Hex("atr", states[0].Atr).Msg("card connected")
	case !present && p.card != nil:
		p.disconnect()
	}
	return present, nil
}

// Exchange transmits cmd and waits for the response, at most the configured
// timeout. A transmit abandoned on timeout finishes in the background and
// blocks further exchanges until it does.
func (p *PCSC) Exchange(ctx context.Context, cmd []byte) ([]byte, error) {
	p.mu.Lock()
	c := p.card
	if c == nil {
		p.mu.Unlock()
		return nil, ErrNoCard
	}
	if p.inflight {
		p.mu.Unlock()
		return nil, ErrBusy
	}
	p.inflight = true
	p.mu.Unlock()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type result struct {
		resp []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.Transmit(cmd)
		p.transmitDone()
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		p.log.Warn().Err(ctx.Err()).Msg("transmit abandoned")
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, scard.ErrRemovedCard) || errors.Is(r.err, scard.ErrResetCard) {
				p.mu.Lock()
				if p.card == c {
					p.disconnect()
				}
				p.mu.Unlock()
			}
			return nil, fmt.Errorf("pcsc transmit: %w", r.err)
		}
		return r.resp, nil
	}
}

func (p *PCSC) transmitDone() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight = false
	if p.orphan != nil {
		p.release(p.orphan)
		p.orphan = nil
	}
}

// disconnect drops the current card. Callers hold p.mu.
func (p *PCSC) disconnect() {
	if p.card == nil {
		return
	}
	if p.inflight {
		p.orphan = p.card
		p.log.Debug().Msg("card dropped, disconnect deferred to pending transmit")
	} else {
		p.release(p.card)
	}
	p.card = nil
}

func (p *PCSC) release(c card) {
	if err := c.Disconnect(scard.LeaveCard); err != nil {
		p.log.Debug().Err(err).Msg("disconnect")
	}
	p.log.Debug().Msg("card disconnected")
}

func (p *PCSC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil
	}
	p.disconnect()
	err := p.ctx.Release()
	p.ctx = nil
	if err != nil {
		return fmt.Errorf("pcsc release: %w", err)
	}
	return nil
}
