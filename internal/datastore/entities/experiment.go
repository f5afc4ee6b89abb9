package entities

// Experiment is a named, ordered collection of perceptual tests.
// An unconfigured experiment exists by name only and owns no tests.
type Experiment struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null;size:255"`
	FullName    string
	Description string `gorm:"type:text"`
	EndText     string `gorm:"type:text"`
	Configured  bool   `gorm:"not null;default:false"`

	// Relationships
	Tests []Test `gorm:"foreignKey:ExperimentID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (Experiment) TableName() string {
	return "experiments"
}
