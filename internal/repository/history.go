package repository

import (
	"errors"
	"time"

	"reposync/internal/db"
	"reposync/internal/model"

	"gorm.io/gorm"
)

type HistoryRepository struct{}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{}
}

func (r *HistoryRepository) Save(history *model.History) error {
	return db.DB.Create(history).Error
}

type Stats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Recovered int64 `json:"recovered"`
}

func (r *HistoryRepository) GetStats() (Stats, error) {
	var stats Stats
	if err := db.DB.Model(&model.History{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("status = ?", model.StatusSynced).
		Count(&stats.Succeeded).Error; err != nil {
		return stats, err
	}

	if err := db.DB.Model(&model.History{}).
		Where("recovered = ?", true).
		Count(&stats.Recovered).Error; err != nil {
		return stats, err
	}

	stats.Failed = stats.Total - stats.Succeeded
	return stats, nil
}

func (r *HistoryRepository) GetRecent(limit int) ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Order("started_at desc").
		Limit(limit).
		Find(&histories)

	return histories, result.Error
}

func (r *HistoryRepository) GetFailed() ([]model.History, error) {
	var histories []model.History
	result := db.DB.
		Where("status = ?", model.StatusError).
		Order("started_at desc").
		Find(&histories)

	return histories, result.Error
}

// LastSuccess returns when the latest successful operation finished, or nil
// when none has.
func (r *HistoryRepository) LastSuccess() (*time.Time, error) {
	var history model.History
	err := db.DB.
		Where("status = ?", model.StatusSynced).
		Order("finished_at desc").
		First(&history).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &history.FinishedAt, nil
}
