package entities

import "time"

// ExperimentTestResult is one participant's validated answer to one test.
// Payload is the raw validated result JSON; its shape depends on the test's
// type.
type ExperimentTestResult struct {
	ID           uint   `gorm:"primaryKey"`
	TestID       uint   `gorm:"not null;index"`
	SubmissionID uint   `gorm:"not null;index"`
	Payload      string `gorm:"type:text;not null"`
	CreatedAt    time.Time

	// Relationships
	Test       *Test       `gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE"`
	Submission *Submission `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (ExperimentTestResult) TableName() string {
	return "experiment_test_results"
}
