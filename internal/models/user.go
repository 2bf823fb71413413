package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role determines how much of the organizational forest a user can see and
// act on: admin sees everything, manager sees their whole branch, employee
// sees the subtree below their own department.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// User is the actor record the core consumes from its surrounding
// application. Authentication happens elsewhere; the core only needs
// identity, role and owning department.
type User struct {
	ID           string `gorm:"type:char(36);primaryKey"`
	Username     string `gorm:"size:150;not null;uniqueIndex"`
	FirstName    string `gorm:"size:50"`
	LastName     string `gorm:"size:50"`
	Patronymic   string `gorm:"size:50"`
	Email        string `gorm:"size:254"`
	Role         Role   `gorm:"size:30;not null;default:employee"`
	DepartmentID *uint64
	Department   *Department
	IsActive     bool `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName overrides the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a UUID when the caller did not provide one
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// LastnameAndInitials renders "Petrov I.S." style short names for logs and
// event payloads.
func (u *User) LastnameAndInitials() string {
	if u.LastName == "" {
		return u.Username
	}
	out := u.LastName
	initials := ""
	if u.FirstName != "" {
		initials += string([]rune(u.FirstName)[0]) + "."
	}
	if u.Patronymic != "" {
		initials += string([]rune(u.Patronymic)[0]) + "."
	}
	if initials != "" {
		out += " " + initials
	}
	return out
}

// Application areas a responsible party can be assigned over.
const (
	AreaProposals = "proposals"
	AreaPipelines = "pipelines"
)

// AreaRoute designates the responsible party for an application area within
// one branch of the organizational forest. DepartmentID references the
// branch root. Consistency of the mapping (one party per area per branch)
// is maintained by the boundary that edits it, not verified here.
type AreaRoute struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Area         string `gorm:"size:50;not null;index:idx_area_route"`
	DepartmentID uint64 `gorm:"not null;index:idx_area_route"`
	Department   *Department
	UserID       string `gorm:"type:char(36);not null"`
	User         *User
	CreatedAt    time.Time
}

// TableName overrides the table name for AreaRoute
func (AreaRoute) TableName() string {
	return "area_routes"
}
