package models

import "time"

// Pipeline is a named gas main; its pipes and nodes are the ledger subjects.
type Pipeline struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"size:100;not null"`
	Description string `gorm:"size:2000"`
	Pipes       []Pipe
	Nodes       []Node
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName overrides the table name for Pipeline
func (Pipeline) TableName() string {
	return "pipelines"
}

// Pipe is one segment of a pipeline, bounded by kilometer marks and owned by
// a department for visibility scoping.
type Pipe struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	PipelineID   uint64 `gorm:"not null;index"`
	Pipeline     *Pipeline
	DepartmentID uint64 `gorm:"not null;index"`
	Department   *Department
	Diameter     *uint   // mm
	StartPoint   float64 `gorm:"not null"` // km
	EndPoint     float64 `gorm:"not null"` // km
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides the table name for Pipe
func (Pipe) TableName() string {
	return "pipes"
}

// Node kinds on a pipeline.
const (
	NodeValve      = "valve"
	NodeConnection = "connection"
	NodeBridge     = "bridge"
)

// Node is a shutoff-valve, connection or bridge point on a pipeline.
type Node struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	PipelineID    uint64 `gorm:"not null;index"`
	Pipeline      *Pipeline
	DepartmentID  uint64 `gorm:"not null;index"`
	Department    *Department
	NodeType      string  `gorm:"size:20;not null;default:valve"`
	LocationPoint float64 `gorm:"not null"` // km
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName overrides the table name for Node
func (Node) TableName() string {
	return "nodes"
}
