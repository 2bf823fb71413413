package services

import (
	"context"
	"errors"

	"github.com/gastransit/pipeledger/internal/hierarchy"
	"github.com/gastransit/pipeledger/internal/models"
	"github.com/gastransit/pipeledger/internal/types"
	"gorm.io/gorm"
)

// Plans projects submission-plan completion from the proposal history.
type Plans struct {
	db *gorm.DB
}

// NewPlans wires a Plans service.
func NewPlans(db *gorm.DB) *Plans {
	return &Plans{db: db}
}

// Completed counts the proposals that fulfil a plan: owned by the plan
// department's subtree, registered inside the plan window and accepted at
// some point since.
func (p *Plans) Completed(ctx context.Context, planID uint64) (int64, error) {
	db := p.db.WithContext(ctx)

	var plan models.AnnualPlan
	if err := db.First(&plan, planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, types.NotFound("plan %d", planID)
		}
		return 0, err
	}

	tree, err := hierarchy.Load[models.Department](db)
	if err != nil {
		return 0, err
	}
	var depts []uint64
	for id := range tree.Descendants(plan.DepartmentID, true) {
		depts = append(depts, id)
	}
	if depts == nil {
		return 0, types.NotFound("department %d", plan.DepartmentID)
	}

	start, end := plan.Window()
	registered := db.Session(&gorm.Session{NewDB: true}).
		Model(&models.ProposalStatus{}).
		Select("proposal_id").
		Where("status = ? AND date_changed >= ? AND date_changed < ?", models.StatusReg, start, end)
	accepted := db.Session(&gorm.Session{NewDB: true}).
		Model(&models.ProposalStatus{}).
		Select("proposal_id").
		Where("status = ?", models.StatusAccept)

	var n int64
	err = db.Model(&models.Proposal{}).
		Where("department_id IN ?", depts).
		Where("id IN (?)", registered).
		Where("id IN (?)", accepted).
		Count(&n).Error
	return n, err
}
