package models

import "time"

// AnnualPlan is a submission target for one department and year. Quarter is
// nil for the annual figure and 1..4 for quarterly breakdowns.
type AnnualPlan struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Year         int    `gorm:"not null;index:idx_plan,unique"`
	Quarter      *int   `gorm:"index:idx_plan,unique"`
	DepartmentID uint64 `gorm:"not null;index:idx_plan,unique"`
	Department   *Department
	Target       int `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides the table name for AnnualPlan
func (AnnualPlan) TableName() string {
	return "annual_plans"
}

// Window returns the inclusive start and exclusive end of the plan period.
func (p *AnnualPlan) Window() (time.Time, time.Time) {
	if p.Quarter == nil {
		start := time.Date(p.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0)
	}
	start := time.Date(p.Year, time.Month(3*(*p.Quarter-1)+1), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 3, 0)
}
