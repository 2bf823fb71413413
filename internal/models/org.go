package models

import "time"

// Department is one node of the organizational forest. Roots (ParentID nil)
// are the branches of the company; everything below is a unit of that branch.
type Department struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement"`
	Name      string  `gorm:"size:100;not null;index:idx_department_parent_name,unique"`
	ParentID  *uint64 `gorm:"index:idx_department_parent_name,unique"`
	Parent    *Department
	Children  []Department `gorm:"foreignKey:ParentID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name for Department
func (Department) TableName() string {
	return "departments"
}

// TreeID implements hierarchy.TreeRow
func (d Department) TreeID() uint64 {
	return d.ID
}

// TreeParentID implements hierarchy.TreeRow
func (d Department) TreeParentID() *uint64 {
	return d.ParentID
}

// TreeName implements hierarchy.TreeRow
func (d Department) TreeName() string {
	return d.Name
}

// EquipmentType classifies equipment registry entries
type EquipmentType struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"size:100;not null"`
}

// TableName overrides the table name for EquipmentType
func (EquipmentType) TableName() string {
	return "equipment_types"
}

// Equipment is a node of the equipment registry forest, a second tree kept
// separate from departments but resolved with the same machinery.
type Equipment struct {
	ID        uint64  `gorm:"primaryKey;autoIncrement"`
	Name      string  `gorm:"size:50;not null"`
	ParentID  *uint64 `gorm:"index"`
	Parent    *Equipment
	Children  []Equipment `gorm:"foreignKey:ParentID"`
	TypeID    *uint64
	Type      *EquipmentType `gorm:"foreignKey:TypeID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name for Equipment
func (Equipment) TableName() string {
	return "equipments"
}

// TreeID implements hierarchy.TreeRow
func (e Equipment) TreeID() uint64 {
	return e.ID
}

// TreeParentID implements hierarchy.TreeRow
func (e Equipment) TreeParentID() *uint64 {
	return e.ParentID
}

// TreeName implements hierarchy.TreeRow
func (e Equipment) TreeName() string {
	return e.Name
}
