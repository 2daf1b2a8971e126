// Package transport provides emv.Transport drivers: a PC/SC reader and a
// scripted card emulator.
package transport

import (
	"fmt"

	"github.com/danmuck/emvtap/internal/config"
	"github.com/danmuck/emvtap/internal/emv"
	"github.com/rs/zerolog"
)

// Driver is a transport that holds system resources until closed.
type Driver interface {
	emv.Transport
	Close() error
}

var (
	_ Driver = (*PCSC)(nil)
	_ Driver = (*Script)(nil)
)

// Open returns the driver selected by cfg.
func Open(cfg config.ReaderConfig, logger zerolog.Logger) (Driver, error) {
	switch cfg.Driver {
	case config.DriverPCSC:
		p, err := OpenPCSC(cfg.Name, cfg.ExchangeTimeout, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.DriverScript:
		s, err := LoadScript(cfg.Script, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("transport: unknown driver %q", cfg.Driver)
	}
}
