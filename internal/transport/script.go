package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/emvtap/internal/config"
	"github.com/danmuck/emvtap/internal/emv"
	"github.com/rs/zerolog"
)

var (
	ErrClosed      = fmt.Errorf("transport: %w", emv.ErrTransportClosed)
	ErrNoCard      = errors.New("transport: no card in field")
	ErrEmptyScript = errors.New("transport: script has no exchanges")
)

// statusInsNotSupported answers commands the script does not know.
var statusInsNotSupported = []byte{0x6D, 0x00}

type scriptFile struct {
	Present  *bool `toml:"present"`
	Taps     *int  `toml:"taps"`
	Exchange []struct {
		Command  string `toml:"command"`
		Response string `toml:"response"`
	} `toml:"exchange"`
}

// ScriptExchange is one scripted command/response pair. A command ending
// in a wildcard matches by prefix.
type ScriptExchange struct {
	Command  []byte
	Prefix   bool
	Response []byte
}

func (e ScriptExchange) matches(cmd []byte) bool {
	if e.Prefix {
		return bytes.HasPrefix(cmd, e.Command)
	}
	return bytes.Equal(cmd, e.Command)
}

// Script is a card emulator that answers from a fixed table. The card
// enters the field once per tap and leaves it at the first poll after it
// has been spoken to.
type Script struct {
	mu        sync.Mutex
	exchanges []ScriptExchange
	present   bool
	taps      int
	served    int
	inField   bool
	spoken    bool
	cursor    int
	closed    bool
	log       zerolog.Logger
}

// LoadScript reads a scripted card from a TOML file.
func LoadScript(path string, logger zerolog.Logger) (*Script, error) {
	var raw scriptFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("script load failed (%s): %w", path, err)
	}
	return newScript(raw, logger)
}

// ParseScript is LoadScript for in-memory TOML.
func ParseScript(data string, logger zerolog.Logger) (*Script, error) {
	var raw scriptFile
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("script parse failed: %w", err)
	}
	return newScript(raw, logger)
}

func newScript(raw scriptFile, logger zerolog.Logger) (*Script, error) {
	s := &Script{
		present: true,
		taps:    1,
		log:     logger.With().Str("component", "transport.script").Logger(),
	}
	if raw.Present != nil {
		s.present = *raw.Present
	}
	if raw.Taps != nil {
		s.taps = *raw.Taps
	}
	for i, ex := range raw.Exchange {
		cmdHex := strings.TrimSpace(ex.Command)
		prefix := strings.HasSuffix(cmdHex, "*")
		cmd, err := config.DecodeHex(strings.TrimSuffix(cmdHex, "*"))
		if err != nil {
			return nil, fmt.Errorf("exchange %d command: %w", i, err)
		}
		resp, err := config.DecodeHex(ex.Response)
		if err != nil {
			return nil, fmt.Errorf("exchange %d response: %w", i, err)
		}
		s.exchanges = append(s.exchanges, ScriptExchange{Command: cmd, Prefix: prefix, Response: resp})
	}
	if len(s.exchanges) == 0 {
		return nil, ErrEmptyScript
	}
	return s, nil
}

// Exchanges returns the scripted pairs in file order.
func (s *Script) Exchanges() []ScriptExchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScriptExchange(nil), s.exchanges...)
}

func (s *Script) DetectTarget(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	switch {
	case s.inField && s.spoken:
		s.inField = false
		s.served++
		s.log.Debug().Int("served", s.served).Msg("card left field")
	case !s.inField && s.present && (s.taps <= 0 || s.served < s.taps):
		s.inField = true
		s.spoken = false
		s.cursor = 0
		s.log.Debug().Int("tap", s.served+1).Msg("card entered field")
	}
	return s.inField, nil
}

// Exchange answers cmd with the next scripted response, falling back to
// the first matching pair anywhere in the script.
func (s *Script) Exchange(ctx context.Context, cmd []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if !s.inField {
		return nil, ErrNoCard
	}
	s.spoken = true

	idx := -1
	if s.cursor < len(s.exchanges) && s.exchanges[s.cursor].matches(cmd) {
		idx = s.cursor
	} else {
		for i, ex := range s.exchanges {
			if ex.matches(cmd) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		s.log.Warn().Hex("command", cmd).Msg("unscripted command")
		return append([]byte(nil), statusInsNotSupported...), nil
	}
	s.cursor = idx + 1
	return append([]byte(nil), s.exchanges[idx].Response...), nil
}

func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
