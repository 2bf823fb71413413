package models

import "time"

// StatusCode is one state of the proposal workflow.
type StatusCode string

const (
	StatusReg     StatusCode = "reg"     // registered
	StatusRecheck StatusCode = "recheck" // resubmitted after rework
	StatusRework  StatusCode = "rework"  // sent back to the authors
	StatusAccept  StatusCode = "accept"  // accepted
	StatusReject  StatusCode = "reject"  // rejected, terminal
	StatusApply   StatusCode = "apply"   // in use, terminal
)

// StatusLabels maps codes to display labels for event payloads.
var StatusLabels = map[StatusCode]string{
	StatusReg:     "Registered",
	StatusRecheck: "Resubmitted",
	StatusRework:  "Needs rework",
	StatusAccept:  "Accepted",
	StatusReject:  "Rejected",
	StatusApply:   "In use",
}

// Valid reports whether the code is a known workflow state.
func (c StatusCode) Valid() bool {
	_, ok := StatusLabels[c]
	return ok
}

// Proposal is one improvement submission. It is owned by its authors and is
// never deleted once it has a status history.
type Proposal struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	RegNum       string    `gorm:"size:50;uniqueIndex"`
	RegDate      time.Time `gorm:"not null"`
	Authors      []User    `gorm:"many2many:proposal_authors"`
	DepartmentID *uint64   `gorm:"index"`
	Department   *Department
	Category     string `gorm:"size:100;not null"`
	Title        string `gorm:"size:200;not null"`
	Description  string `gorm:"size:2000;not null"`
	IsEconomy    bool   `gorm:"not null;default:false"`
	EconomySize  float64
	Note         string `gorm:"size:500"`
	Statuses     []ProposalStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides the table name for Proposal
func (Proposal) TableName() string {
	return "proposals"
}

// ProposalStatus is one append-only entry of a proposal's status history.
// DateChanged is set at creation and never mutated; the record with the
// latest DateChanged is the proposal's current status.
type ProposalStatus struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement"`
	ProposalID  uint64     `gorm:"not null;index:idx_status_proposal"`
	Status      StatusCode `gorm:"size:20;not null;index:idx_status_proposal"`
	DateChanged time.Time  `gorm:"not null;index"`
	OwnerID     *string    `gorm:"type:char(36)"`
	Owner       *User      `gorm:"foreignKey:OwnerID"`
	Note        string     `gorm:"size:500"`
}

// TableName overrides the table name for ProposalStatus
func (ProposalStatus) TableName() string {
	return "proposal_statuses"
}
