package sampler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"

	"sonar-ranger/internal/gpio"
	"sonar-ranger/internal/metrics"
	"sonar-ranger/internal/models"
	"sonar-ranger/internal/sonar"
)

// stubSink captures everything a sampling cycle fans out.
type stubSink struct {
	mu        sync.Mutex
	published []*models.RangeReading
	recorded  int
	touched   int
	ch        chan *models.RangeReading
}

func newStubSink() *stubSink {
	return &stubSink{ch: make(chan *models.RangeReading, 16)}
}

func (s *stubSink) PublishReading(reading *models.RangeReading) error {
	s.mu.Lock()
	s.published = append(s.published, reading)
	s.mu.Unlock()
	select {
	case s.ch <- reading:
	default:
	}
	return nil
}

func (s *stubSink) WriteReading(ctx context.Context, reading *models.RangeReading) error {
	s.mu.Lock()
	s.recorded++
	s.mu.Unlock()
	return nil
}

func (s *stubSink) UpdateLastReading(ctx context.Context, name string, at time.Time) error {
	s.mu.Lock()
	s.touched++
	s.mu.Unlock()
	return nil
}

func (s *stubSink) publishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

// failIO claims lines happily and then refuses every read.
type failIO struct{}

func (failIO) ClaimOutput(line string) error                  { return nil }
func (failIO) ClaimInput(line string) error                   { return nil }
func (failIO) SetOutput(line string, level sonar.Level) error { return nil }
func (failIO) ReadInput(line string) (sonar.Level, error) {
	return sonar.Low, errors.New("gpio read fault")
}
func (failIO) Release(line string) error { return nil }

func newSimSensor() *sonar.RangeSensor {
	sim := gpio.NewSimulatedIO(0.5, zerolog.Nop())
	s, err := sonar.NewRangeSensor(sonar.Config{
		Name:        "front",
		TriggerLine: "GPIO23",
		EchoLine:    "GPIO24",
		MinRange:    0.02,
		MaxRange:    4.0,
	}, sim, sonar.SystemClock{})
	So(err, ShouldBeNil)
	So(s.InitHardware(), ShouldBeNil)
	return s
}

func awaitReading(ch <-chan *models.RangeReading) *models.RangeReading {
	select {
	case reading := <-ch:
		return reading
	case <-time.After(2 * time.Second):
		return nil
	}
}

func TestSamplerOnDemand(t *testing.T) {
	Convey("Given a sampler with a long cadence", t, func() {
		sink := newStubSink()
		m := metrics.New()
		s := New(newSimSensor(), time.Hour, sink, sink, sink, m, zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go s.Run(ctx)

		Convey("an on-demand request produces one fanned-out reading", func() {
			s.RequestSample()

			reading := awaitReading(sink.ch)
			So(reading, ShouldNotBeNil)
			So(reading.Sensor, ShouldEqual, "front")
			So(reading.Outcome, ShouldEqual, sonar.OutcomeMeasured)
			So(reading.DistanceM, ShouldNotBeNil)
			So(*reading.DistanceM, ShouldAlmostEqual, 0.5, 0.05)

			value := testutil.ToFloat64(m.Measurements.WithLabelValues("front", "MEASURED"))
			So(value, ShouldEqual, 1)
		})
	})
}

func TestSamplerTicks(t *testing.T) {
	Convey("Given a sampler with a short cadence", t, func() {
		sink := newStubSink()
		s := New(newSimSensor(), 20*time.Millisecond, sink, sink, sink, metrics.New(), zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go s.Run(ctx)

		Convey("readings keep arriving on their own", func() {
			So(awaitReading(sink.ch), ShouldNotBeNil)
			So(awaitReading(sink.ch), ShouldNotBeNil)
		})
	})
}

func TestSamplerSkipsOnHardwareError(t *testing.T) {
	Convey("Given a sensor whose echo line cannot be read", t, func() {
		broken, err := sonar.NewRangeSensor(sonar.Config{
			Name:        "bad",
			TriggerLine: "t",
			EchoLine:    "e",
			MaxRange:    4.0,
		}, failIO{}, sonar.SystemClock{})
		So(err, ShouldBeNil)
		So(broken.InitHardware(), ShouldBeNil)

		sink := newStubSink()
		m := metrics.New()
		s := New(broken, time.Hour, sink, sink, sink, m, zerolog.Nop())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go s.Run(ctx)

		Convey("the cycle is skipped, counted, and publishes nothing", func() {
			s.RequestSample()

			So(func() bool {
				deadline := time.Now().Add(2 * time.Second)
				for time.Now().Before(deadline) {
					if testutil.ToFloat64(m.HardwareErrors.WithLabelValues("bad")) >= 1 {
						return true
					}
					time.Sleep(5 * time.Millisecond)
				}
				return false
			}(), ShouldBeTrue)

			So(sink.publishedCount(), ShouldEqual, 0)
		})
	})
}
