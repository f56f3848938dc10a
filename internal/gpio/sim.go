package gpio

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sonar-ranger/internal/sonar"
)

// blankingDelay approximates the gap between the trigger's falling edge and
// the echo line rising on a real module.
const blankingDelay = 250 * time.Microsecond

type echoPulse struct {
	riseAt time.Time
	fallAt time.Time
}

// SimulatedIO emulates the trigger/echo pair in process, so the whole daemon
// can run on a desk. A claimed input is paired with the most recently claimed
// output; dropping that output schedules a real-time echo pulse whose width
// encodes the round trip to a virtual target.
type SimulatedIO struct {
	mu         sync.Mutex
	target     float64 // meters
	jitter     float64 // meters, +/- uniform per measurement
	outLevels  map[string]sonar.Level
	pairs      map[string]string // echo line -> trigger line
	pulses     map[string]echoPulse
	lastOutput string
	rng        *rand.Rand
	logger     zerolog.Logger
}

func NewSimulatedIO(target float64, logger zerolog.Logger) *SimulatedIO {
	if target <= 0 {
		target = 1.0
	}
	return &SimulatedIO{
		target:    target,
		jitter:    target * 0.01,
		outLevels: make(map[string]sonar.Level),
		pairs:     make(map[string]string),
		pulses:    make(map[string]echoPulse),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger,
	}
}

// SetTarget moves the virtual target.
func (s *SimulatedIO) SetTarget(meters float64) {
	s.mu.Lock()
	s.target = meters
	s.jitter = meters * 0.01
	s.mu.Unlock()
}

func (s *SimulatedIO) ClaimOutput(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outLevels[line] = sonar.Low
	s.lastOutput = line
	s.logger.Debug().Str("line", line).Msg("claimed simulated output line")
	return nil
}

func (s *SimulatedIO) ClaimInput(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastOutput == "" {
		return fmt.Errorf("no trigger line claimed to pair echo line %s with", line)
	}
	s.pairs[line] = s.lastOutput
	s.logger.Debug().Str("line", line).Str("paired_with", s.lastOutput).
		Msg("claimed simulated input line")
	return nil
}

func (s *SimulatedIO) SetOutput(line string, level sonar.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.outLevels[line]
	if !ok {
		return fmt.Errorf("line %s is not claimed", line)
	}
	s.outLevels[line] = level

	// The falling edge of the trigger fires the virtual burst.
	if prev == sonar.High && level == sonar.Low {
		d := s.target + (s.rng.Float64()*2-1)*s.jitter
		roundTrip := time.Duration(2 * d / sonar.SonicSpeed * float64(time.Second))
		now := time.Now()
		s.pulses[line] = echoPulse{
			riseAt: now.Add(blankingDelay),
			fallAt: now.Add(blankingDelay + roundTrip),
		}
	}
	return nil
}

func (s *SimulatedIO) ReadInput(line string) (sonar.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trigger, ok := s.pairs[line]
	if !ok {
		return sonar.Low, fmt.Errorf("line %s is not claimed", line)
	}
	pulse, ok := s.pulses[trigger]
	if !ok {
		return sonar.Low, nil
	}

	now := time.Now()
	if now.After(pulse.riseAt) && now.Before(pulse.fallAt) {
		return sonar.High, nil
	}
	return sonar.Low, nil
}

func (s *SimulatedIO) Release(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.outLevels, line)
	delete(s.pairs, line)
	delete(s.pulses, line)
	return nil
}

func (s *SimulatedIO) Close() error { return nil }
