package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"sonar-ranger/internal/models"
)

type SensorRepository struct {
	db *gorm.DB
}

func NewSensorRepository(db *gorm.DB) *SensorRepository {
	return &SensorRepository{db: db}
}

// CreateOrUpdate registers a sensor by name, refreshing its line and range
// configuration when it already exists.
func (r *SensorRepository) CreateOrUpdate(ctx context.Context, sensor *models.SonarSensor) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SonarSensor
		result := tx.Where("name = ?", sensor.Name).First(&existing)

		if result.Error == nil {
			return tx.Model(&existing).Updates(map[string]interface{}{
				"trigger_line":      sensor.TriggerLine,
				"echo_line":         sensor.EchoLine,
				"min_range_m":       sensor.MinRangeM,
				"max_range_m":       sensor.MaxRangeM,
				"field_of_view_rad": sensor.FieldOfViewRad,
				"is_active":         true,
			}).Error

		} else if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			sensor.IsActive = true
			return tx.Create(sensor).Error

		} else {
			return result.Error
		}
	})
}

func (r *SensorRepository) FindByName(ctx context.Context, name string) (*models.SonarSensor, error) {
	var sensor models.SonarSensor
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&sensor).Error
	if err != nil {
		return nil, err
	}
	return &sensor, nil
}

// UpdateLastReading marks a sensor alive after a successful sampling cycle.
func (r *SensorRepository) UpdateLastReading(ctx context.Context, name string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.SonarSensor{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"last_reading_at": at,
			"is_active":       true,
		}).Error
}

// MarkInactiveSensors deactivates sensors that have not produced a reading
// within the timeout.
func (r *SensorRepository) MarkInactiveSensors(ctx context.Context, timeout time.Duration) error {
	cutoff := time.Now().Add(-timeout)
	return r.db.WithContext(ctx).Model(&models.SonarSensor{}).
		Where("last_reading_at < ? AND is_active = ?", cutoff, true).
		Update("is_active", false).Error
}

func (r *SensorRepository) GetAllSensors(ctx context.Context) ([]*models.SonarSensor, error) {
	var sensors []*models.SonarSensor
	err := r.db.WithContext(ctx).Find(&sensors).Error
	return sensors, err
}
