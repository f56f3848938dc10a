package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"sonar-ranger/internal/models"
)

// ReadingWriter persists readings as time-series points. Writes go through a
// circuit breaker so a dead InfluxDB degrades to logged drops instead of
// stalling every sampling cycle on a full connect timeout.
type ReadingWriter struct {
	writeAPI api.WriteAPIBlocking
	breaker  *gobreaker.CircuitBreaker
	logger   zerolog.Logger
}

func NewReadingWriter(writeAPI api.WriteAPIBlocking, logger zerolog.Logger) *ReadingWriter {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "influx-write",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &ReadingWriter{
		writeAPI: writeAPI,
		breaker:  breaker,
		logger:   logger,
	}
}

func (w *ReadingWriter) WriteReading(ctx context.Context, reading *models.RangeReading) error {
	tags := map[string]string{
		"sensor":  reading.Sensor,
		"outcome": string(reading.Outcome),
	}

	fields := map[string]interface{}{
		"elapsed_us": reading.ElapsedUS,
	}
	if reading.DistanceM != nil {
		fields["distance_m"] = *reading.DistanceM
	}

	point := influxdb2.NewPoint("sonar_reading", tags, fields, reading.Timestamp)

	_, err := w.breaker.Execute(func() (interface{}, error) {
		return nil, w.writeAPI.WritePoint(ctx, point)
	})
	if err != nil {
		return fmt.Errorf("write reading for sensor %s: %w", reading.Sensor, err)
	}

	w.logger.Debug().
		Str("sensor", reading.Sensor).
		Str("outcome", string(reading.Outcome)).
		Msg("Added reading to influxDB")

	return nil
}
