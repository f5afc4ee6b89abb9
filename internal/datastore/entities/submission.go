package entities

import "time"

// Submission groups every result created in one ingestion call under one
// opaque token. A submission belongs to exactly one experiment; its results
// may span multiple tests of that experiment but never cross experiments.
type Submission struct {
	ID           uint   `gorm:"primaryKey"`
	Token        string `gorm:"uniqueIndex;not null;size:36"`
	ExperimentID uint   `gorm:"not null;index"`
	CreatedAt    time.Time

	// Relationships
	Experiment *Experiment            `gorm:"foreignKey:ExperimentID;constraint:OnDelete:CASCADE"`
	Results    []ExperimentTestResult `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (Submission) TableName() string {
	return "submissions"
}
