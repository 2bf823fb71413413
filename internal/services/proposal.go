package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gastransit/pipeledger/internal/hierarchy"
	"github.com/gastransit/pipeledger/internal/models"
	"github.com/gastransit/pipeledger/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProposalInput is what the intake form submits.
type ProposalInput struct {
	AuthorIDs    []string
	DepartmentID *uint64 // defaults to the first author's department
	Category     string
	Title        string
	Description  string
	EconomySize  float64
	Note         string
}

// Proposals handles proposal intake. Status changes after registration go
// through the Workflow.
type Proposals struct {
	db        *gorm.DB
	log       *zap.Logger
	now       func() time.Time
	regPrefix string
	retries   int
}

// NewProposals wires a Proposals service. clock may be nil for time.Now.
func NewProposals(db *gorm.DB, log *zap.Logger, clock func() time.Time, regPrefix string, retries int) *Proposals {
	if clock == nil {
		clock = time.Now
	}
	if regPrefix == "" {
		regPrefix = "2430"
	}
	return &Proposals{db: db, log: log, now: clock, regPrefix: regPrefix, retries: retries}
}

// Create registers a new proposal: assigns the registration number, derives
// the economy flag, defaults the owning department from the first author
// and appends the initial reg status record owned by that author, emitting
// the registration event. One transaction; a proposal is never created
// without its reg record.
func (p *Proposals) Create(ctx context.Context, input ProposalInput) (*models.Proposal, error) {
	if err := validateProposalInput(input); err != nil {
		return nil, err
	}

	var created *models.Proposal
	err := withRetry(ctx, p.db, p.retries, func(tx *gorm.DB) error {
		created = nil

		authors, err := loadAuthors(tx, input.AuthorIDs)
		if err != nil {
			return err
		}

		departmentID := input.DepartmentID
		if departmentID == nil {
			departmentID = authors[0].DepartmentID
		}

		now := p.now()
		proposal := &models.Proposal{
			RegDate:      now,
			DepartmentID: departmentID,
			Category:     strings.TrimSpace(input.Category),
			Title:        strings.TrimSpace(input.Title),
			Description:  strings.TrimSpace(input.Description),
			IsEconomy:    input.EconomySize > 0,
			EconomySize:  input.EconomySize,
			Note:         input.Note,
		}

		seq, err := yearSequence(tx, now.Year())
		if err != nil {
			return err
		}
		proposal.RegNum = p.formatRegNum(seq, now.Year(), proposal.IsEconomy)

		if err := tx.Create(proposal).Error; err != nil {
			return err
		}
		if err := tx.Model(proposal).Association("Authors").Append(&authors); err != nil {
			return err
		}

		// First author acquired: the reg record exists from this moment on.
		reg := &models.ProposalStatus{
			ProposalID:  proposal.ID,
			Status:      models.StatusReg,
			DateChanged: now,
			OwnerID:     &authors[0].ID,
			Note:        input.Note,
		}
		if err := tx.Create(reg).Error; err != nil {
			return err
		}

		tree, err := hierarchy.Load[models.Department](tx)
		if err != nil {
			return err
		}
		if err := emitStatusEvent(tx, tree, proposal, reg); err != nil {
			return err
		}

		proposal.Authors = authors
		proposal.Statuses = []models.ProposalStatus{*reg}
		created = proposal
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("proposal registered",
		zap.Uint64("proposal_id", created.ID),
		zap.String("reg_num", created.RegNum),
		zap.Int("authors", len(created.Authors)),
	)
	return created, nil
}

// Get returns a proposal with its authors and status history.
func (p *Proposals) Get(ctx context.Context, id uint64) (*models.Proposal, error) {
	var proposal models.Proposal
	err := p.db.WithContext(ctx).
		Preload("Authors").
		Preload("Statuses", func(db *gorm.DB) *gorm.DB {
			return db.Order("date_changed, id")
		}).
		First(&proposal, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NotFound("proposal %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

// ListVisible returns the proposals an actor may see, ordered by
// registration date. Admins see everything; managers and employees only
// their branch or subtree.
func (p *Proposals) ListVisible(ctx context.Context, actor *models.User) ([]models.Proposal, error) {
	tree, err := hierarchy.Load[models.Department](p.db.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	q := p.db.WithContext(ctx).Preload("Authors").Order("reg_date, id")
	if visible, filtered := tree.VisibleIDs(actor.Role, actor.DepartmentID); filtered {
		q = q.Where("department_id IN ?", visible)
	}

	var proposals []models.Proposal
	err = q.Find(&proposals).Error
	return proposals, err
}

func (p *Proposals) formatRegNum(seq int, year int, economy bool) string {
	suffix := ""
	if economy {
		suffix = "-E"
	}
	return fmt.Sprintf("%s-%d-%d%s", p.regPrefix, seq, year, suffix)
}

// yearSequence numbers proposals within a registration year. The unique
// index on reg_num turns a lost race into a retryable conflict.
func yearSequence(tx *gorm.DB, year int) (int, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	var n int64
	err := tx.Model(&models.Proposal{}).
		Where("reg_date >= ? AND reg_date < ?", start, start.AddDate(1, 0, 0)).
		Count(&n).Error
	return int(n) + 1, err
}

func validateProposalInput(input ProposalInput) error {
	if len(input.AuthorIDs) == 0 {
		return types.Validation("a proposal requires at least one author")
	}
	if strings.TrimSpace(input.Category) == "" {
		return types.Validation("category is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return types.Validation("title is required")
	}
	if strings.TrimSpace(input.Description) == "" {
		return types.Validation("description is required")
	}
	if input.EconomySize < 0 {
		return types.Validation("economy size cannot be negative")
	}
	return nil
}

func loadAuthors(tx *gorm.DB, ids []string) ([]models.User, error) {
	var authors []models.User
	if err := tx.Where("id IN ?", ids).Find(&authors).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.User, len(authors))
	for _, a := range authors {
		byID[a.ID] = a
	}
	// Preserve submission order; the first author owns the reg record.
	ordered := make([]models.User, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, types.NotFound("user %s", id)
		}
		ordered = append(ordered, a)
	}
	return ordered, nil
}
