package sonar

import (
	"errors"
	"math"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// testClock advances by a fixed step on every Now call, so the busy-poll
// loops in Measure see time pass without any real waiting.
type testClock struct {
	now  time.Time
	step time.Duration
}

func newTestClock(step time.Duration) *testClock {
	return &testClock{now: time.Unix(0, 0), step: step}
}

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *testClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

// fakeIO simulates the two sensor lines against the shared testClock. After
// the trigger line falls, the echo line rises riseAfter later and stays high
// for pulse.
type fakeIO struct {
	clock *testClock

	riseAfter time.Duration
	pulse     time.Duration
	neverRise bool
	neverFall bool

	trigLevel     Level
	triggered     bool
	triggeredAt   time.Time
	triggerHighAt time.Time
	triggerWidth  time.Duration

	claimedOutputs []string
	claimedInputs  []string
	released       []string

	claimErr error
	readErr  error
}

func (f *fakeIO) ClaimOutput(line string) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claimedOutputs = append(f.claimedOutputs, line)
	return nil
}

func (f *fakeIO) ClaimInput(line string) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claimedInputs = append(f.claimedInputs, line)
	return nil
}

func (f *fakeIO) SetOutput(line string, level Level) error {
	if level == High && f.trigLevel == Low {
		f.triggerHighAt = f.clock.now
	}
	if level == Low && f.trigLevel == High {
		f.triggered = true
		f.triggeredAt = f.clock.now
		f.triggerWidth = f.clock.now.Sub(f.triggerHighAt)
	}
	f.trigLevel = level
	return nil
}

func (f *fakeIO) ReadInput(line string) (Level, error) {
	if f.readErr != nil {
		return Low, f.readErr
	}
	if !f.triggered || f.neverRise {
		return Low, nil
	}
	dt := f.clock.now.Sub(f.triggeredAt)
	if dt < f.riseAfter {
		return Low, nil
	}
	if f.neverFall || dt < f.riseAfter+f.pulse {
		return High, nil
	}
	return Low, nil
}

func (f *fakeIO) Release(line string) error {
	f.released = append(f.released, line)
	return nil
}

func newHarness(pulse time.Duration) (*fakeIO, *testClock) {
	clock := newTestClock(time.Microsecond)
	return &fakeIO{clock: clock, riseAfter: 200 * time.Microsecond, pulse: pulse}, clock
}

func TestRangeSensorConstruction(t *testing.T) {
	Convey("Given valid range bounds", t, func() {
		io, clock := newHarness(0)
		s, err := NewRangeSensor(Config{
			Name:        "front",
			TriggerLine: "GPIO23",
			EchoLine:    "GPIO24",
			MinRange:    0.05,
			MaxRange:    4.0,
		}, io, clock)

		So(err, ShouldBeNil)
		So(s.Name(), ShouldEqual, "front")
		So(s.MinRange(), ShouldEqual, 0.05)
		So(s.MaxRange(), ShouldEqual, 4.0)

		Convey("the wait budget is the round trip to max range, ceiled to a millisecond", func() {
			So(s.MaxWait(), ShouldEqual, 12*time.Millisecond)
		})

		Convey("no field of view is reported when none was given", func() {
			_, ok := s.FieldOfView()
			So(ok, ShouldBeFalse)
		})
	})

	Convey("The wait budget follows ceil(max/343*1000)/1000 for any max range", t, func() {
		for _, max := range []float64{0.5, 1.0, 2.0, 4.0, 7.5, 10.0} {
			io, clock := newHarness(0)
			s, err := NewRangeSensor(Config{
				Name:        "probe",
				TriggerLine: "t",
				EchoLine:    "e",
				MaxRange:    max,
			}, io, clock)
			So(err, ShouldBeNil)

			want := time.Duration(math.Ceil(max/343.0*1000)) * time.Millisecond
			So(s.MaxWait(), ShouldEqual, want)
		}
	})

	Convey("A field of view given in degrees is stored in radians", t, func() {
		io, clock := newHarness(0)
		fov := 15.0
		s, err := NewRangeSensor(Config{
			Name:        "front",
			TriggerLine: "GPIO23",
			EchoLine:    "GPIO24",
			MaxRange:    4.0,
			FieldOfView: &fov,
		}, io, clock)

		So(err, ShouldBeNil)
		rad, ok := s.FieldOfView()
		So(ok, ShouldBeTrue)
		So(rad, ShouldAlmostEqual, 15*math.Pi/180, 1e-12)
	})

	Convey("Malformed configurations are rejected", t, func() {
		io, clock := newHarness(0)
		cases := []Config{
			{Name: "", TriggerLine: "t", EchoLine: "e", MaxRange: 4},
			{Name: "x", TriggerLine: "", EchoLine: "e", MaxRange: 4},
			{Name: "x", TriggerLine: "t", EchoLine: "t", MaxRange: 4},
			{Name: "x", TriggerLine: "t", EchoLine: "e", MinRange: 4, MaxRange: 4},
			{Name: "x", TriggerLine: "t", EchoLine: "e", MinRange: 5, MaxRange: 4},
			{Name: "x", TriggerLine: "t", EchoLine: "e", MinRange: -0.1, MaxRange: 4},
			{Name: "x", TriggerLine: "t", EchoLine: "e", MinRange: math.NaN(), MaxRange: 4},
			{Name: "x", TriggerLine: "t", EchoLine: "e", MaxRange: math.Inf(1)},
		}
		for _, cfg := range cases {
			_, err := NewRangeSensor(cfg, io, clock)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrInvalidConfiguration), ShouldBeTrue)
		}

		Convey("a non-finite field of view is rejected too", func() {
			fov := math.Inf(1)
			_, err := NewRangeSensor(Config{
				Name: "x", TriggerLine: "t", EchoLine: "e", MaxRange: 4, FieldOfView: &fov,
			}, io, clock)
			So(errors.Is(err, ErrInvalidConfiguration), ShouldBeTrue)
		})
	})
}

func TestInitHardware(t *testing.T) {
	Convey("Given a constructed sensor", t, func() {
		io, clock := newHarness(0)
		s, err := NewRangeSensor(Config{
			Name: "front", TriggerLine: "GPIO23", EchoLine: "GPIO24", MinRange: 0.05, MaxRange: 4.0,
		}, io, clock)
		So(err, ShouldBeNil)

		Convey("InitHardware claims trigger as idle-low output and echo as input", func() {
			So(s.InitHardware(), ShouldBeNil)
			So(io.claimedOutputs, ShouldResemble, []string{"GPIO23"})
			So(io.claimedInputs, ShouldResemble, []string{"GPIO24"})
			So(io.trigLevel, ShouldEqual, Low)
		})

		Convey("a second InitHardware is refused", func() {
			So(s.InitHardware(), ShouldBeNil)
			So(errors.Is(s.InitHardware(), ErrHardwareUnavailable), ShouldBeTrue)
		})

		Convey("an unclaimable line surfaces as hardware unavailable", func() {
			io.claimErr = errors.New("line busy")
			So(errors.Is(s.InitHardware(), ErrHardwareUnavailable), ShouldBeTrue)
		})

		Convey("measuring before InitHardware is refused", func() {
			_, err := s.Measure()
			So(errors.Is(err, ErrHardwareUnavailable), ShouldBeTrue)
		})

		Convey("Close releases both lines", func() {
			So(s.InitHardware(), ShouldBeNil)
			So(s.Close(), ShouldBeNil)
			So(io.released, ShouldResemble, []string{"GPIO23", "GPIO24"})
		})
	})
}

func TestMeasure(t *testing.T) {
	newSensor := func(io *fakeIO, clock *testClock, min, max float64) *RangeSensor {
		s, err := NewRangeSensor(Config{
			Name: "front", TriggerLine: "GPIO23", EchoLine: "GPIO24", MinRange: min, MaxRange: max,
		}, io, clock)
		So(err, ShouldBeNil)
		So(s.InitHardware(), ShouldBeNil)
		return s
	}

	Convey("Given a simulated echo pulse within range", t, func() {
		io, clock := newHarness(3330 * time.Microsecond)
		s := newSensor(io, clock, 0.05, 4.0)

		reading, err := s.Measure()
		So(err, ShouldBeNil)

		Convey("the pulse width converts with half the speed of sound", func() {
			So(reading.Outcome, ShouldEqual, OutcomeMeasured)
			So(reading.Detected(), ShouldBeTrue)
			So(reading.Distance, ShouldAlmostEqual, 0.00333*SonicSpeed/2, 0.002)
		})

		Convey("the trigger was held high for the full pulse width", func() {
			So(io.triggerWidth, ShouldEqual, 10*time.Microsecond)
		})

		Convey("a repeated measurement on the same target agrees", func() {
			again, err := s.Measure()
			So(err, ShouldBeNil)
			So(again.Outcome, ShouldEqual, OutcomeMeasured)
			So(again.Distance, ShouldAlmostEqual, reading.Distance, 0.001)
		})
	})

	Convey("Given an echo line that never rises", t, func() {
		io, clock := newHarness(0)
		io.neverRise = true
		s := newSensor(io, clock, 0.05, 4.0)

		reading, err := s.Measure()
		So(err, ShouldBeNil)

		Convey("the sensor reports no echo", func() {
			So(reading.Outcome, ShouldEqual, OutcomeNoEcho)
			So(reading.Detected(), ShouldBeFalse)
		})
	})

	Convey("Given an echo line that rises and never falls", t, func() {
		io, clock := newHarness(0)
		io.neverFall = true
		s := newSensor(io, clock, 0.05, 4.0)

		reading, err := s.Measure()
		So(err, ShouldBeNil)

		Convey("the sensor reports exactly the maximum range", func() {
			So(reading.Outcome, ShouldEqual, OutcomeMaxRange)
			So(reading.Distance, ShouldEqual, 4.0)
		})
	})

	Convey("Given a pulse shorter than the minimum range allows", t, func() {
		io, clock := newHarness(100 * time.Microsecond)
		s := newSensor(io, clock, 0.05, 4.0)

		reading, err := s.Measure()
		So(err, ShouldBeNil)

		Convey("the distance clamps up to exactly the minimum", func() {
			So(reading.Outcome, ShouldEqual, OutcomeMeasured)
			So(reading.Distance, ShouldEqual, 0.05)
		})
	})

	Convey("Scenario: (min=0.05, max=4.0) with a 3.33ms pulse", t, func() {
		io, clock := newHarness(3330 * time.Microsecond)
		s := newSensor(io, clock, 0.05, 4.0)

		reading, err := s.Measure()
		So(err, ShouldBeNil)

		// Matches the recorded "range=0.57" from real hardware.
		So(reading.Distance, ShouldAlmostEqual, 0.571, 0.002)
	})

	Convey("Given a line that fails to read", t, func() {
		io, clock := newHarness(0)
		s := newSensor(io, clock, 0.05, 4.0)
		io.readErr = errors.New("gpio read fault")

		_, err := s.Measure()

		Convey("the call fails with hardware unavailable", func() {
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrHardwareUnavailable), ShouldBeTrue)
		})
	})
}
