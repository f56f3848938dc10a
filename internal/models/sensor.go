package models

import "time"

// SonarSensor is the registry row for one configured sensor. The registry is
// bookkeeping around the hardware: which lines a sensor owns, its range
// window, and when it last produced a reading.
type SonarSensor struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
	Name           string     `gorm:"uniqueIndex;not null" json:"name"`
	TriggerLine    string     `gorm:"not null" json:"trigger_line"`
	EchoLine       string     `gorm:"not null" json:"echo_line"`
	MinRangeM      float64    `json:"min_range_m"`
	MaxRangeM      float64    `json:"max_range_m"`
	FieldOfViewRad *float64   `json:"field_of_view_rad,omitempty"`
	IsActive       bool       `gorm:"default:true" json:"is_active"`
	LastReadingAt  *time.Time `json:"last_reading_at,omitempty"`
}

func (SonarSensor) TableName() string { return "sonar_sensors" }

type SonarSensorDto struct {
	Name           string     `json:"name"`
	TriggerLine    string     `json:"trigger_line"`
	EchoLine       string     `json:"echo_line"`
	MinRangeM      float64    `json:"min_range_m"`
	MaxRangeM      float64    `json:"max_range_m"`
	FieldOfViewRad *float64   `json:"field_of_view_rad,omitempty"`
	IsActive       bool       `json:"is_active"`
	LastReadingAt  *time.Time `json:"last_reading_at,omitempty"`
}

func (s *SonarSensor) ToDto() SonarSensorDto {
	return SonarSensorDto{
		Name:           s.Name,
		TriggerLine:    s.TriggerLine,
		EchoLine:       s.EchoLine,
		MinRangeM:      s.MinRangeM,
		MaxRangeM:      s.MaxRangeM,
		FieldOfViewRad: s.FieldOfViewRad,
		IsActive:       s.IsActive,
		LastReadingAt:  s.LastReadingAt,
	}
}
