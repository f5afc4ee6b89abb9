package entities

import "time"

// Rating is a single numeric score attached to a sample. Ratings are append
// only: created and aggregated, never updated.
type Rating struct {
	ID        uint    `gorm:"primaryKey"`
	SampleID  uint    `gorm:"not null;index"`
	Score     float64 `gorm:"not null"`
	CreatedAt time.Time

	// Relationship
	Sample *Sample `gorm:"foreignKey:SampleID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (Rating) TableName() string {
	return "ratings"
}
