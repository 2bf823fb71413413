package models

import "time"

// SubjectType identifies which asset table an interval record belongs to.
type SubjectType string

const (
	SubjectPipe SubjectType = "pipe"
	SubjectNode SubjectType = "node"
)

// Stream identifies which independent interval stream of a subject a record
// belongs to. Streams never interfere with each other: a pipe has one open
// operating-state record and, independently, one open pressure-limit record.
type Stream string

const (
	StreamState    Stream = "state"    // pipe operating state
	StreamLimit    Stream = "limit"    // pipe pressure limit
	StreamPosition Stream = "position" // node open/closed
)

// Pipe operating states.
const (
	StateOperation   = "operation"
	StateRepair      = "repair"
	StateDisabled    = "disabled"
	StateLimited     = "limited"
	StateDepletion   = "depletion"
	StateDiagnostics = "diagnostics"
)

// Node positions.
const (
	PositionOpen   = "open"
	PositionClosed = "closed"
)

// PipeStates lists the labels a pipe "state" stream record may carry.
var PipeStates = map[string]bool{
	StateOperation:   true,
	StateRepair:      true,
	StateDisabled:    true,
	StateLimited:     true,
	StateDepletion:   true,
	StateDiagnostics: true,
}

// NodePositions lists the labels a node "position" stream record may carry.
var NodePositions = map[string]bool{
	PositionOpen:   true,
	PositionClosed: true,
}

// IntervalRecord is one row of the append-only temporal ledger. For a given
// (subject type, subject id, stream) at most one record has EndDate NULL;
// that record is the state currently in effect. Records are never deleted
// and after creation only EndDate is ever set.
type IntervalRecord struct {
	ID          uint64      `gorm:"primaryKey;autoIncrement"`
	SubjectType SubjectType `gorm:"size:10;not null;index:idx_interval_subject"`
	SubjectID   uint64      `gorm:"not null;index:idx_interval_subject"`
	Stream      Stream      `gorm:"size:10;not null;index:idx_interval_subject"`
	State       string      `gorm:"size:20"`
	Pressure    *float64    // kgf/cm2, limit stream only
	Description string      `gorm:"size:500"`
	StartDate   time.Time   `gorm:"not null"`
	EndDate     *time.Time  `gorm:"index:idx_interval_subject"`
	CreatedByID *string     `gorm:"type:char(36)"`
	CreatedBy   *User       `gorm:"foreignKey:CreatedByID"`
	CreatedAt   time.Time
}

// TableName overrides the table name for IntervalRecord
func (IntervalRecord) TableName() string {
	return "interval_records"
}

// Open reports whether the record is currently in effect.
func (r *IntervalRecord) Open() bool {
	return r.EndDate == nil
}

// Covers reports whether the record was in effect at the given instant.
func (r *IntervalRecord) Covers(at time.Time) bool {
	if at.Before(r.StartDate) {
		return false
	}
	return r.EndDate == nil || at.Before(*r.EndDate)
}
