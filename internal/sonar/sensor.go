package sonar

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// SonicSpeed is the speed of sound in air at roughly 20°C, in meters
	// per second. The HC-SR04 datasheet assumes the same value.
	SonicSpeed = 343.0

	// triggerPulseWidth is how long the trigger line is held high to make
	// the module emit its ultrasonic burst.
	triggerPulseWidth = 10 * time.Microsecond
)

var (
	ErrInvalidConfiguration = errors.New("invalid sensor configuration")
	ErrHardwareUnavailable  = errors.New("hardware unavailable")
)

// Outcome tags a reading with how the measurement ended.
type Outcome string

const (
	// OutcomeMeasured means an echo pulse was captured and converted.
	OutcomeMeasured Outcome = "MEASURED"

	// OutcomeNoEcho means the echo line never rose within the wait budget:
	// nothing reflected, or the module is disconnected.
	OutcomeNoEcho Outcome = "NO_ECHO"

	// OutcomeMaxRange means the echo outlasted the wait budget: there is a
	// target, at or beyond the configured maximum range.
	OutcomeMaxRange Outcome = "MAX_RANGE"
)

// Reading is the result of a single measurement cycle. Timeout outcomes are
// ordinary readings, not errors; NO_ECHO and MAX_RANGE stay distinct because
// "nothing out there" and "something very far" mean different things to a
// caller steering around obstacles.
type Reading struct {
	Outcome  Outcome
	Distance float64       // meters; meaningless when Outcome is NO_ECHO
	Elapsed  time.Duration // echo pulse width; zero when Outcome is NO_ECHO
}

// Detected reports whether the reading carries a usable distance.
func (r Reading) Detected() bool { return r.Outcome != OutcomeNoEcho }

// Config describes one physical sensor.
type Config struct {
	Name        string
	TriggerLine string
	EchoLine    string
	MinRange    float64  // meters
	MaxRange    float64  // meters
	FieldOfView *float64 // degrees, optional
}

// RangeSensor drives one HC-SR04-class module over two exclusively owned
// digital lines. Configuration is immutable after construction. Measure
// must not be called concurrently on the same instance; callers serialize,
// typically with one sampling loop per sensor.
type RangeSensor struct {
	name        string
	triggerLine string
	echoLine    string
	minRange    float64
	maxRange    float64
	fov         float64
	hasFOV      bool
	maxWait     time.Duration

	io          DigitalIO
	clock       Clock
	initialized bool
}

// NewRangeSensor validates the configuration and derives the wait budget.
// Pure value construction, no pin access.
func NewRangeSensor(cfg Config, io DigitalIO, clock Clock) (*RangeSensor, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidConfiguration)
	}
	if cfg.TriggerLine == "" || cfg.EchoLine == "" {
		return nil, fmt.Errorf("%w: trigger and echo lines must be set", ErrInvalidConfiguration)
	}
	if cfg.TriggerLine == cfg.EchoLine {
		return nil, fmt.Errorf("%w: trigger and echo must be distinct lines (got %q twice)",
			ErrInvalidConfiguration, cfg.TriggerLine)
	}
	if math.IsNaN(cfg.MinRange) || math.IsInf(cfg.MinRange, 0) ||
		math.IsNaN(cfg.MaxRange) || math.IsInf(cfg.MaxRange, 0) {
		return nil, fmt.Errorf("%w: range bounds must be finite", ErrInvalidConfiguration)
	}
	if cfg.MinRange < 0 || cfg.MinRange >= cfg.MaxRange {
		return nil, fmt.Errorf("%w: need 0 <= min < max, got min=%g max=%g",
			ErrInvalidConfiguration, cfg.MinRange, cfg.MaxRange)
	}

	s := &RangeSensor{
		name:        cfg.Name,
		triggerLine: cfg.TriggerLine,
		echoLine:    cfg.EchoLine,
		minRange:    cfg.MinRange,
		maxRange:    cfg.MaxRange,
		io:          io,
		clock:       clock,
	}

	if cfg.FieldOfView != nil {
		fovDeg := *cfg.FieldOfView
		if math.IsNaN(fovDeg) || math.IsInf(fovDeg, 0) {
			return nil, fmt.Errorf("%w: field of view must be finite", ErrInvalidConfiguration)
		}
		s.fov = fovDeg * math.Pi / 180
		s.hasFOV = true
	}

	// Round-trip budget for the farthest valid target, ceiled to the next
	// millisecond. Bounds both wait phases independently.
	s.maxWait = time.Duration(math.Ceil(cfg.MaxRange/SonicSpeed*1000)) * time.Millisecond

	return s, nil
}

// InitHardware claims both lines and parks the trigger low. Must be called
// exactly once before the first Measure.
func (s *RangeSensor) InitHardware() error {
	if s.initialized {
		return fmt.Errorf("%w: sensor %q is already initialized", ErrHardwareUnavailable, s.name)
	}
	if err := s.io.ClaimOutput(s.triggerLine); err != nil {
		return fmt.Errorf("%w: claim trigger line %s: %v", ErrHardwareUnavailable, s.triggerLine, err)
	}
	if err := s.io.SetOutput(s.triggerLine, Low); err != nil {
		return fmt.Errorf("%w: idle trigger line %s: %v", ErrHardwareUnavailable, s.triggerLine, err)
	}
	if err := s.io.ClaimInput(s.echoLine); err != nil {
		return fmt.Errorf("%w: claim echo line %s: %v", ErrHardwareUnavailable, s.echoLine, err)
	}
	s.initialized = true
	return nil
}

// Measure runs one full trigger/wait/echo/compute cycle. It blocks the
// calling goroutine, worst case for about twice the wait budget. Line
// errors are fatal to the call and not retried.
func (s *RangeSensor) Measure() (Reading, error) {
	if !s.initialized {
		return Reading{}, fmt.Errorf("%w: sensor %q is not initialized", ErrHardwareUnavailable, s.name)
	}

	// The pulse width below is load-bearing: the module keys off the
	// falling edge, so the delay has to actually elapse.
	if err := s.io.SetOutput(s.triggerLine, High); err != nil {
		return Reading{}, fmt.Errorf("%w: raise trigger: %v", ErrHardwareUnavailable, err)
	}
	s.clock.Sleep(triggerPulseWidth)
	if err := s.io.SetOutput(s.triggerLine, Low); err != nil {
		return Reading{}, fmt.Errorf("%w: drop trigger: %v", ErrHardwareUnavailable, err)
	}

	t0 := s.clock.Now()

	// Wait for the rising edge, pinning start to the last low sample.
	start := t0
	for {
		level, err := s.io.ReadInput(s.echoLine)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: read echo line: %v", ErrHardwareUnavailable, err)
		}
		if level == High {
			break
		}
		start = s.clock.Now()
		if start.Sub(t0) > s.maxWait {
			return Reading{Outcome: OutcomeNoEcho}, nil
		}
	}

	// Wait for the falling edge, pinning stop to the last high sample.
	stop := s.clock.Now()
	for {
		level, err := s.io.ReadInput(s.echoLine)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: read echo line: %v", ErrHardwareUnavailable, err)
		}
		if level == Low {
			break
		}
		stop = s.clock.Now()
		if stop.Sub(t0) > s.maxWait {
			return Reading{
				Outcome:  OutcomeMaxRange,
				Distance: s.maxRange,
				Elapsed:  stop.Sub(start),
			}, nil
		}
	}

	elapsed := stop.Sub(start)

	// The pulse travels out and back, so only half the speed of sound
	// applies to the width.
	distance := elapsed.Seconds() * SonicSpeed / 2
	if distance < s.minRange {
		distance = s.minRange
	}
	if distance > s.maxRange {
		distance = s.maxRange
	}

	return Reading{Outcome: OutcomeMeasured, Distance: distance, Elapsed: elapsed}, nil
}

// Close releases both lines. The sensor cannot measure afterwards.
func (s *RangeSensor) Close() error {
	if !s.initialized {
		return nil
	}
	s.initialized = false
	if err := s.io.Release(s.triggerLine); err != nil {
		return fmt.Errorf("release trigger line %s: %w", s.triggerLine, err)
	}
	if err := s.io.Release(s.echoLine); err != nil {
		return fmt.Errorf("release echo line %s: %w", s.echoLine, err)
	}
	return nil
}

func (s *RangeSensor) Name() string        { return s.name }
func (s *RangeSensor) TriggerLine() string { return s.triggerLine }
func (s *RangeSensor) EchoLine() string    { return s.echoLine }
func (s *RangeSensor) MinRange() float64   { return s.minRange }
func (s *RangeSensor) MaxRange() float64   { return s.maxRange }

// MaxWait is the derived per-phase wait budget.
func (s *RangeSensor) MaxWait() time.Duration { return s.maxWait }

// FieldOfView returns the aperture in radians, if one was configured.
func (s *RangeSensor) FieldOfView() (float64, bool) { return s.fov, s.hasFOV }
