package gpio

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stianeikeland/go-rpio/v4"

	"sonar-ranger/internal/sonar"
)

// RPiIO talks to the Raspberry Pi GPIO block through /dev/gpiomem. Line
// identifiers are BCM numbers, with or without a "GPIO" prefix, so the same
// sensor specs work for both this backend and the periph one.
type RPiIO struct {
	mu     sync.Mutex
	pins   map[string]rpio.Pin
	logger zerolog.Logger
}

func NewRPiIO(logger zerolog.Logger) (*RPiIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory range: %w", err)
	}
	return &RPiIO{
		pins:   make(map[string]rpio.Pin),
		logger: logger,
	}, nil
}

func parseBCM(line string) (rpio.Pin, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(line, "GPIO"))
	if err != nil || n < 0 || n > 53 {
		return 0, fmt.Errorf("line %q is not a BCM pin number", line)
	}
	return rpio.Pin(n), nil
}

func (r *RPiIO) ClaimOutput(line string) error {
	pin, err := parseBCM(line)
	if err != nil {
		return err
	}
	pin.Output()
	pin.Low()

	r.mu.Lock()
	r.pins[line] = pin
	r.mu.Unlock()

	r.logger.Debug().Str("line", line).Msg("claimed output line")
	return nil
}

func (r *RPiIO) ClaimInput(line string) error {
	pin, err := parseBCM(line)
	if err != nil {
		return err
	}
	pin.Input()
	pin.PullDown()

	r.mu.Lock()
	r.pins[line] = pin
	r.mu.Unlock()

	r.logger.Debug().Str("line", line).Msg("claimed input line")
	return nil
}

func (r *RPiIO) SetOutput(line string, level sonar.Level) error {
	pin, err := r.pin(line)
	if err != nil {
		return err
	}
	if level == sonar.High {
		pin.High()
	} else {
		pin.Low()
	}
	return nil
}

func (r *RPiIO) ReadInput(line string) (sonar.Level, error) {
	pin, err := r.pin(line)
	if err != nil {
		return sonar.Low, err
	}
	if pin.Read() == rpio.High {
		return sonar.High, nil
	}
	return sonar.Low, nil
}

func (r *RPiIO) Release(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pin, ok := r.pins[line]
	if !ok {
		return nil
	}
	pin.Input()
	delete(r.pins, line)
	return nil
}

func (r *RPiIO) Close() error {
	r.mu.Lock()
	for line, pin := range r.pins {
		pin.Input()
		delete(r.pins, line)
	}
	r.mu.Unlock()
	return rpio.Close()
}

func (r *RPiIO) pin(line string) (rpio.Pin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pin, ok := r.pins[line]
	if !ok {
		return 0, fmt.Errorf("line %s is not claimed", line)
	}
	return pin, nil
}
