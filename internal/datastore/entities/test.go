package entities

// Test is one typed trial within an experiment. Number is caller-assigned
// and unique within the experiment, not necessarily contiguous. Setup holds
// the type-specific payload as JSON, stored verbatim.
type Test struct {
	ID           uint   `gorm:"primaryKey"`
	ExperimentID uint   `gorm:"not null;index;uniqueIndex:idx_tests_experiment_number"`
	Number       int    `gorm:"not null;uniqueIndex:idx_tests_experiment_number"`
	Type         string `gorm:"not null;size:16"`
	Setup        string `gorm:"type:text"`

	// Relationships
	Experiment *Experiment            `gorm:"foreignKey:ExperimentID;constraint:OnDelete:CASCADE"`
	Results    []ExperimentTestResult `gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (Test) TableName() string {
	return "tests"
}
