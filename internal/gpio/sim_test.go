package gpio

import (
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"sonar-ranger/internal/sonar"
)

func TestSimulatedBackend(t *testing.T) {
	Convey("Given a sensor wired to the simulated backend", t, func() {
		sim := NewSimulatedIO(0.5, zerolog.Nop())
		s, err := sonar.NewRangeSensor(sonar.Config{
			Name:        "front",
			TriggerLine: "GPIO23",
			EchoLine:    "GPIO24",
			MinRange:    0.02,
			MaxRange:    4.0,
		}, sim, sonar.SystemClock{})
		So(err, ShouldBeNil)
		So(s.InitHardware(), ShouldBeNil)

		Convey("a measurement lands near the virtual target", func() {
			reading, err := s.Measure()
			So(err, ShouldBeNil)
			So(reading.Outcome, ShouldEqual, sonar.OutcomeMeasured)
			So(reading.Distance, ShouldAlmostEqual, 0.5, 0.05)
		})

		Convey("a target beyond max range reads as the max-range sentinel", func() {
			sim.SetTarget(10)
			reading, err := s.Measure()
			So(err, ShouldBeNil)
			So(reading.Outcome, ShouldEqual, sonar.OutcomeMaxRange)
			So(reading.Distance, ShouldEqual, 4.0)
		})
	})

	Convey("An echo line cannot be claimed before any trigger line", t, func() {
		sim := NewSimulatedIO(1.0, zerolog.Nop())
		So(sim.ClaimInput("GPIO24"), ShouldNotBeNil)
	})

	Convey("Unclaimed lines are refused", t, func() {
		sim := NewSimulatedIO(1.0, zerolog.Nop())
		So(sim.SetOutput("GPIO23", sonar.High), ShouldNotBeNil)
		_, err := sim.ReadInput("GPIO24")
		So(err, ShouldNotBeNil)
	})
}
