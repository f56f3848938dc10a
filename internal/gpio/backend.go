package gpio

import (
	"fmt"

	"github.com/rs/zerolog"

	"sonar-ranger/internal/config"
	"sonar-ranger/internal/sonar"
)

// Backend is a closable DigitalIO implementation.
type Backend interface {
	sonar.DigitalIO
	Close() error
}

// NewBackend selects the pin access implementation from configuration.
func NewBackend(cfg config.SonarConfig, logger zerolog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "periph":
		return NewPeriphIO(logger)
	case "rpio":
		return NewRPiIO(logger)
	case "sim":
		return NewSimulatedIO(cfg.SimTargetDistance, logger), nil
	default:
		return nil, fmt.Errorf("unknown GPIO backend %q (want periph, rpio or sim)", cfg.Backend)
	}
}
