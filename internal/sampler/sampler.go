package sampler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sonar-ranger/internal/metrics"
	"sonar-ranger/internal/models"
	"sonar-ranger/internal/sonar"
)

type ReadingPublisher interface {
	PublishReading(reading *models.RangeReading) error
}

type ReadingRecorder interface {
	WriteReading(ctx context.Context, reading *models.RangeReading) error
}

type SensorRegistry interface {
	UpdateLastReading(ctx context.Context, name string, at time.Time) error
}

// Sampler owns one sensor's measurement loop. All access to the sensor goes
// through this single goroutine, which is what makes the per-instance
// serialization contract of the core hold.
type Sampler struct {
	sensor    *sonar.RangeSensor
	interval  time.Duration
	publisher ReadingPublisher
	recorder  ReadingRecorder
	registry  SensorRegistry
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	sampleReq  chan struct{}
	intervalCh chan time.Duration
}

func New(
	sensor *sonar.RangeSensor,
	interval time.Duration,
	publisher ReadingPublisher,
	recorder ReadingRecorder,
	registry SensorRegistry,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Sampler {
	return &Sampler{
		sensor:     sensor,
		interval:   interval,
		publisher:  publisher,
		recorder:   recorder,
		registry:   registry,
		metrics:    m,
		logger:     logger,
		sampleReq:  make(chan struct{}, 1),
		intervalCh: make(chan time.Duration, 1),
	}
}

// RequestSample asks the loop for an immediate measurement. Requests
// coalesce while one is pending.
func (s *Sampler) RequestSample() {
	select {
	case s.sampleReq <- struct{}{}:
	default:
	}
}

// SetInterval changes the sampling cadence from the next cycle on.
func (s *Sampler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-s.intervalCh:
	default:
	}
	s.intervalCh <- d
}

func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Str("sensor", s.sensor.Name()).
		Dur("interval", s.interval).
		Msg("sampler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("sensor", s.sensor.Name()).Msg("sampler stopped")
			return
		case d := <-s.intervalCh:
			s.interval = d
			ticker.Reset(d)
			s.logger.Info().
				Str("sensor", s.sensor.Name()).
				Dur("interval", d).
				Msg("sampling interval changed")
		case <-s.sampleReq:
			s.sample(ctx)
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *Sampler) sample(ctx context.Context) {
	name := s.sensor.Name()

	started := time.Now()
	result, err := s.sensor.Measure()
	if err != nil {
		// This sensor skips its cycle; nothing here may take the whole
		// sampling loop down with it.
		s.metrics.HardwareErrors.WithLabelValues(name).Inc()
		s.logger.Error().Err(err).Str("sensor", name).Msg("measurement failed, skipping cycle")
		return
	}

	s.metrics.Measurements.WithLabelValues(name, string(result.Outcome)).Inc()
	s.metrics.MeasureDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())

	reading := models.NewRangeReading(name, result, time.Now())

	event := s.logger.Debug().Str("sensor", name).Str("outcome", string(result.Outcome))
	if reading.DistanceM != nil {
		event = event.Float64("distance_m", *reading.DistanceM)
	}
	event.Msg("reading sampled")

	if err := s.publisher.PublishReading(reading); err != nil {
		s.logger.Error().Err(err).Str("sensor", name).Msg("failed to publish reading")
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.recorder.WriteReading(writeCtx, reading); err != nil {
		s.logger.Warn().Err(err).Str("sensor", name).Msg("failed to record reading")
	}

	if err := s.registry.UpdateLastReading(writeCtx, name, reading.Timestamp); err != nil {
		s.logger.Debug().Err(err).Str("sensor", name).Msg("could not update sensor registry")
	}
}
