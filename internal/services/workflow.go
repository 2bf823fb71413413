package services

import (
	"context"
	"errors"
	"time"

	"github.com/gastransit/pipeledger/internal/hierarchy"
	"github.com/gastransit/pipeledger/internal/models"
	"github.com/gastransit/pipeledger/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// transitions is the workflow table: current status -> statuses reachable
// from it. Absent key or empty list means terminal.
var transitions = map[models.StatusCode][]models.StatusCode{
	models.StatusReg:     {models.StatusRework, models.StatusAccept, models.StatusReject},
	models.StatusRecheck: {models.StatusRework, models.StatusAccept, models.StatusReject},
	models.StatusRework:  {models.StatusRecheck},
	models.StatusAccept:  {models.StatusApply},
	models.StatusReject:  {},
	models.StatusApply:   {},
}

// singleInstance statuses may appear at most once in a proposal's history.
var singleInstance = map[models.StatusCode]bool{
	models.StatusReg:    true,
	models.StatusAccept: true,
	models.StatusReject: true,
	models.StatusApply:  true,
}

// decisionStatuses require the branch responsible party.
var decisionStatuses = map[models.StatusCode]bool{
	models.StatusRework: true,
	models.StatusAccept: true,
	models.StatusReject: true,
}

// LegalNext returns the statuses reachable from the given one, as a copy of
// the static table row. Pure; no database access.
func LegalNext(status models.StatusCode) []models.StatusCode {
	row := transitions[status]
	out := make([]models.StatusCode, len(row))
	copy(out, row)
	return out
}

// Workflow is the proposal status state machine.
type Workflow struct {
	db      *gorm.DB
	log     *zap.Logger
	now     func() time.Time
	retries int
}

// NewWorkflow wires a Workflow. clock may be nil for time.Now.
func NewWorkflow(db *gorm.DB, log *zap.Logger, clock func() time.Time, retries int) *Workflow {
	if clock == nil {
		clock = time.Now
	}
	return &Workflow{db: db, log: log, now: clock, retries: retries}
}

// CurrentStatus returns the proposal's latest status record, or (nil, nil)
// for a proposal that has no history yet (no authors assigned).
func (w *Workflow) CurrentStatus(ctx context.Context, proposalID uint64) (*models.ProposalStatus, error) {
	return currentStatus(w.db.WithContext(ctx), proposalID)
}

// LegalNextStatuses returns the statuses an actor could request next for
// the proposal, before any authorization check.
func (w *Workflow) LegalNextStatuses(ctx context.Context, proposalID uint64) ([]models.StatusCode, error) {
	cur, err := w.CurrentStatus(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return []models.StatusCode{}, nil
	}
	return LegalNext(cur.Status), nil
}

// RequestTransition validates and applies one workflow step: table check,
// single-instance check, authorization, then an appended status record and
// a status-changed outbox event, all in one transaction. Nothing else
// mutates as a result of a transition.
func (w *Workflow) RequestTransition(ctx context.Context, proposalID uint64, newStatus models.StatusCode, actorID string, note string) (*models.ProposalStatus, error) {
	if !newStatus.Valid() {
		return nil, types.Validation("unknown status %q", newStatus)
	}
	if newStatus == models.StatusReg {
		// reg is only ever created by proposal intake.
		return nil, types.InvalidTransition("status %s cannot be requested", newStatus)
	}

	var appended *models.ProposalStatus
	err := withRetry(ctx, w.db, w.retries, func(tx *gorm.DB) error {
		appended = nil

		var proposal models.Proposal
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&proposal, proposalID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NotFound("proposal %d", proposalID)
		}
		if err != nil {
			return err
		}

		cur, err := currentStatus(tx, proposal.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return types.InvalidTransition("proposal %d has no status history", proposal.ID)
		}
		if !contains(transitions[cur.Status], newStatus) {
			return types.InvalidTransition("%s is not reachable from %s", newStatus, cur.Status)
		}

		if singleInstance[newStatus] {
			var n int64
			if err := tx.Model(&models.ProposalStatus{}).
				Where("proposal_id = ? AND status = ?", proposal.ID, newStatus).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return types.DuplicateStatus("proposal %d already holds status %s", proposal.ID, newStatus)
			}
		}

		tree, err := hierarchy.Load[models.Department](tx)
		if err != nil {
			return err
		}
		if err := w.authorize(tx, tree, &proposal, newStatus, actorID); err != nil {
			return err
		}

		rec := &models.ProposalStatus{
			ProposalID:  proposal.ID,
			Status:      newStatus,
			DateChanged: w.now(),
			OwnerID:     &actorID,
			Note:        note,
		}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if err := emitStatusEvent(tx, tree, &proposal, rec); err != nil {
			return err
		}
		appended = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.log.Info("proposal status changed",
		zap.Uint64("proposal_id", proposalID),
		zap.String("status", string(newStatus)),
		zap.String("actor_id", actorID),
	)
	return appended, nil
}

// authorize applies the role rules of the workflow:
//   - rework/accept/reject: only the responsible party of the proposal
//     branch for the proposals area;
//   - recheck: only the owner of the original reg record, or a manager
//     rooted in that owner's branch.
func (w *Workflow) authorize(tx *gorm.DB, tree *hierarchy.Tree, proposal *models.Proposal, newStatus models.StatusCode, actorID string) error {
	var actor models.User
	if err := tx.First(&actor, "id = ?", actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NotFound("user %s", actorID)
		}
		return err
	}

	if decisionStatuses[newStatus] {
		if proposal.DepartmentID == nil {
			return types.Validation("proposal %d has no owning department", proposal.ID)
		}
		root, err := tree.Root(*proposal.DepartmentID)
		if err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&models.AreaRoute{}).
			Where("area = ? AND department_id = ? AND user_id = ?", models.AreaProposals, root, actor.ID).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return types.Forbidden("status %s may only be set by the branch responsible party", newStatus)
		}
		return nil
	}

	if newStatus == models.StatusRecheck {
		var reg models.ProposalStatus
		err := tx.Where("proposal_id = ? AND status = ?", proposal.ID, models.StatusReg).
			Order("id").First(&reg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.InvalidTransition("proposal %d was never registered", proposal.ID)
		}
		if err != nil {
			return err
		}
		if reg.OwnerID != nil && *reg.OwnerID == actor.ID {
			return nil
		}
		if actor.Role == models.RoleManager && actor.DepartmentID != nil && reg.OwnerID != nil {
			var regOwner models.User
			err := tx.First(&regOwner, "id = ?", *reg.OwnerID).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				// reg owner since removed; deny below
			case err != nil:
				return err
			case regOwner.DepartmentID != nil:
				same, err := tree.SameBranch(*actor.DepartmentID, *regOwner.DepartmentID)
				if err != nil && !types.IsKind(err, types.KindNotFound) {
					return err
				}
				if err == nil && same {
					return nil
				}
				// a department missing from the tree denies, like any
				// other failed membership check
			}
		}
		return types.Forbidden("status %s may only be set by the registration owner or a manager of their branch", newStatus)
	}

	return nil
}

func currentStatus(db *gorm.DB, proposalID uint64) (*models.ProposalStatus, error) {
	var exists int64
	if err := db.Model(&models.Proposal{}).Where("id = ?", proposalID).Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, types.NotFound("proposal %d", proposalID)
	}

	var rec models.ProposalStatus
	err := db.Where("proposal_id = ?", proposalID).
		Order("date_changed DESC, id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func contains(row []models.StatusCode, code models.StatusCode) bool {
	for _, c := range row {
		if c == code {
			return true
		}
	}
	return false
}
