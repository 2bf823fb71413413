package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gastransit/pipeledger/internal/hierarchy"
	"github.com/gastransit/pipeledger/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// emitStatusEvent resolves recipients for a status change and appends the
// outbox row in the caller's transaction. Recipient rules: reg/recheck go
// to the branch responsible party, everything else to all authors.
func emitStatusEvent(tx *gorm.DB, tree *hierarchy.Tree, proposal *models.Proposal, rec *models.ProposalStatus) error {
	recipients, err := resolveRecipients(tx, tree, proposal, rec.Status)
	if err != nil {
		return err
	}

	recJSON, err := json.Marshal(recipients)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]any{
		"proposal_id":  proposal.ID,
		"reg_num":      proposal.RegNum,
		"status":       rec.Status,
		"status_label": models.StatusLabels[rec.Status],
		"date_changed": rec.DateChanged.Format(time.RFC3339),
		"note":         rec.Note,
	})
	if err != nil {
		return err
	}

	return tx.Create(&models.StatusEvent{
		ID:         uuid.NewString(),
		ProposalID: proposal.ID,
		Status:     rec.Status,
		Recipients: datatypes.JSON(recJSON),
		Payload:    datatypes.JSON(payload),
	}).Error
}

func resolveRecipients(tx *gorm.DB, tree *hierarchy.Tree, proposal *models.Proposal, status models.StatusCode) ([]string, error) {
	switch status {
	case models.StatusReg, models.StatusRecheck:
		if proposal.DepartmentID == nil {
			return []string{}, nil
		}
		root, err := tree.Root(*proposal.DepartmentID)
		if err != nil {
			return nil, err
		}
		var ids []string
		err = tx.Model(&models.AreaRoute{}).
			Where("area = ? AND department_id = ?", models.AreaProposals, root).
			Order("id").
			Pluck("user_id", &ids).Error
		return ids, err
	default:
		var ids []string
		err := tx.Table("proposal_authors").
			Where("proposal_id = ?", proposal.ID).
			Order("user_id").
			Pluck("user_id", &ids).Error
		return ids, err
	}
}

// Outbox gives the external delivery collaborator access to pending
// status-changed events.
type Outbox struct {
	db *gorm.DB
}

// NewOutbox wires an Outbox.
func NewOutbox(db *gorm.DB) *Outbox {
	return &Outbox{db: db}
}

// Pending returns undispatched events, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]models.StatusEvent, error) {
	var events []models.StatusEvent
	q := o.db.WithContext(ctx).
		Where("dispatched_at IS NULL").
		Order("created_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&events).Error
	return events, err
}

// MarkDispatched stamps events after delivery so they are not re-sent.
func (o *Outbox) MarkDispatched(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return o.db.WithContext(ctx).
		Model(&models.StatusEvent{}).
		Where("id IN ? AND dispatched_at IS NULL", ids).
		Update("dispatched_at", at).Error
}
