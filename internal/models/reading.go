package models

import (
	"time"

	"sonar-ranger/internal/sonar"
)

// RangeReading is one sampled measurement as it travels to MQTT and storage.
// NO_ECHO readings carry no distance; the two timeout outcomes stay distinct
// all the way through the transport payloads.
type RangeReading struct {
	Sensor    string        `json:"sensor"`
	Outcome   sonar.Outcome `json:"outcome"`
	DistanceM *float64      `json:"distance_m,omitempty"`
	ElapsedUS int64         `json:"elapsed_us,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewRangeReading(sensor string, r sonar.Reading, at time.Time) *RangeReading {
	reading := &RangeReading{
		Sensor:    sensor,
		Outcome:   r.Outcome,
		ElapsedUS: r.Elapsed.Microseconds(),
		Timestamp: at,
	}
	if r.Detected() {
		d := r.Distance
		reading.DistanceM = &d
	}
	return reading
}
