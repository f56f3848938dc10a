package sonar

import "time"

// Level is the logical state of a digital line.
type Level int

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// DigitalIO is the pin access capability the measurement core is written
// against. Real backends live in internal/gpio; tests inject fakes.
//
// A line claimed by one sensor must not be claimed by anything else until
// it is released.
type DigitalIO interface {
	ClaimOutput(line string) error
	ClaimInput(line string) error
	SetOutput(line string, level Level) error
	ReadInput(line string) (Level, error)
	Release(line string) error
}

// Clock provides timestamps and delays. Timestamps must come from a
// monotonic source; the echo width computation breaks under wall-clock
// adjustments.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the process clock. time.Time carries a monotonic reading
// on this platform, which is what the subtractions in Measure rely on.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
