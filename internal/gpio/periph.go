package gpio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	pgpio "periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"sonar-ranger/internal/sonar"
)

// PeriphIO resolves lines through the periph.io pin registry. Line names are
// whatever gpioreg knows; on a Raspberry Pi that includes "GPIO23" style BCM
// names.
type PeriphIO struct {
	mu     sync.Mutex
	pins   map[string]pgpio.PinIO
	logger zerolog.Logger
}

func NewPeriphIO(logger zerolog.Logger) (*PeriphIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphIO{
		pins:   make(map[string]pgpio.PinIO),
		logger: logger,
	}, nil
}

func (p *PeriphIO) ClaimOutput(line string) error {
	pin := gpioreg.ByName(line)
	if pin == nil {
		return fmt.Errorf("no GPIO pin named %q", line)
	}
	if err := pin.Out(pgpio.Low); err != nil {
		return fmt.Errorf("claim %s as output: %w", line, err)
	}

	p.mu.Lock()
	p.pins[line] = pin
	p.mu.Unlock()

	p.logger.Debug().Str("line", line).Msg("claimed output line")
	return nil
}

func (p *PeriphIO) ClaimInput(line string) error {
	pin := gpioreg.ByName(line)
	if pin == nil {
		return fmt.Errorf("no GPIO pin named %q", line)
	}
	if err := pin.In(pgpio.PullDown, pgpio.NoEdge); err != nil {
		return fmt.Errorf("claim %s as input: %w", line, err)
	}

	p.mu.Lock()
	p.pins[line] = pin
	p.mu.Unlock()

	p.logger.Debug().Str("line", line).Msg("claimed input line")
	return nil
}

func (p *PeriphIO) SetOutput(line string, level sonar.Level) error {
	pin, err := p.pin(line)
	if err != nil {
		return err
	}
	return pin.Out(pgpio.Level(level == sonar.High))
}

func (p *PeriphIO) ReadInput(line string) (sonar.Level, error) {
	pin, err := p.pin(line)
	if err != nil {
		return sonar.Low, err
	}
	if pin.Read() == pgpio.High {
		return sonar.High, nil
	}
	return sonar.Low, nil
}

func (p *PeriphIO) Release(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pin, ok := p.pins[line]
	if !ok {
		return nil
	}
	delete(p.pins, line)
	return pin.Halt()
}

func (p *PeriphIO) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for line, pin := range p.pins {
		if err := pin.Halt(); err != nil {
			p.logger.Warn().Err(err).Str("line", line).Msg("could not halt pin")
		}
		delete(p.pins, line)
	}
	return nil
}

func (p *PeriphIO) pin(line string) (pgpio.PinIO, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pin, ok := p.pins[line]
	if !ok {
		return nil, fmt.Errorf("line %s is not claimed", line)
	}
	return pin, nil
}
