package model

import (
	"time"

	"gorm.io/gorm"
)

type History struct {
	gorm.Model
	OperationID string        `gorm:"not null;index"`
	Operation   OperationKind `gorm:"not null"`
	Status      SyncStatus    `gorm:"not null"`
	Message     string
	Commit      string
	Recovered   bool
	StartedAt   time.Time `gorm:"not null"`
	FinishedAt  time.Time `gorm:"not null"`
}
