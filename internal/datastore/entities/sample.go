package entities

// Sample is a stored audio asset. Path is relative to the asset store root;
// the store owns the bytes, this record only points at them.
type Sample struct {
	ID    uint   `gorm:"primaryKey"`
	Title string `gorm:"not null;size:255"`
	Path  string `gorm:"not null;size:512"`

	// Relationships
	Ratings []Rating `gorm:"foreignKey:SampleID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM.
func (Sample) TableName() string {
	return "samples"
}
