package services

import (
	"context"
	"errors"
	"time"

	"github.com/gastransit/pipeledger/internal/models"
	"github.com/gastransit/pipeledger/internal/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/hints"
)

// Subject identifies the asset an interval record belongs to.
type Subject struct {
	Type models.SubjectType
	ID   uint64
}

// IntervalPayload carries the stream-specific data of a new interval.
type IntervalPayload struct {
	State       string   // state/position streams
	Pressure    *float64 // limit stream
	Description string
}

// Ledger is the temporal interval engine. Opening an interval atomically
// closes whatever record was previously open for the same subject and
// stream; at most one open record per (subject, stream) ever exists.
type Ledger struct {
	db      *gorm.DB
	log     *zap.Logger
	now     func() time.Time
	retries int
}

// NewLedger wires a Ledger. clock may be nil for time.Now.
func NewLedger(db *gorm.DB, log *zap.Logger, clock func() time.Time, retries int) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{db: db, log: log, now: clock, retries: retries}
}

// OpenInterval closes the currently open record for (subject, stream), if
// any, and inserts a new open record starting at startDate. Both steps
// commit together or not at all. A startDate before the open record's start
// is rejected: backfilling history is not supported.
func (l *Ledger) OpenInterval(ctx context.Context, subject Subject, stream models.Stream, startDate time.Time, payload IntervalPayload, actorID string) (*models.IntervalRecord, error) {
	if err := validatePayload(subject, stream, payload); err != nil {
		return nil, err
	}
	if startDate.IsZero() {
		// The node open/closed screen submits no date; stamp it server-side.
		if stream != models.StreamPosition {
			return nil, types.Validation("start date is required for the %s stream", stream)
		}
		startDate = l.now()
	}

	rec := &models.IntervalRecord{
		SubjectType: subject.Type,
		SubjectID:   subject.ID,
		Stream:      stream,
		State:       payload.State,
		Pressure:    payload.Pressure,
		Description: payload.Description,
		StartDate:   startDate,
	}
	if actorID != "" {
		rec.CreatedByID = &actorID
	}

	err := withRetry(ctx, l.db, l.retries, func(tx *gorm.DB) error {
		rec.ID = 0
		if err := lockSubject(tx, subject); err != nil {
			return err
		}

		var open models.IntervalRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("subject_type = ? AND subject_id = ? AND stream = ? AND end_date IS NULL",
				subject.Type, subject.ID, stream).
			First(&open).Error
		switch {
		case err == nil:
			if startDate.Before(open.StartDate) {
				return types.Validation(
					"start date %s precedes the open interval started %s",
					startDate.Format(time.DateOnly), open.StartDate.Format(time.DateOnly))
			}
			if err := tx.Model(&open).Update("end_date", startDate).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first record for this stream
		default:
			return err
		}

		return tx.Create(rec).Error
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("interval opened",
		zap.String("subject_type", string(subject.Type)),
		zap.Uint64("subject_id", subject.ID),
		zap.String("stream", string(stream)),
		zap.String("state", payload.State),
	)
	return rec, nil
}

// CloseInterval sets EndDate on the open record of (subject, stream) without
// opening a replacement. Used when a pressure limit is lifted. Records that
// already carry an end date are history and never re-mutated.
func (l *Ledger) CloseInterval(ctx context.Context, subject Subject, stream models.Stream, endDate time.Time) (*models.IntervalRecord, error) {
	if endDate.IsZero() {
		endDate = l.now()
	}

	var closed models.IntervalRecord
	err := withRetry(ctx, l.db, l.retries, func(tx *gorm.DB) error {
		if err := lockSubject(tx, subject); err != nil {
			return err
		}

		var last models.IntervalRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("subject_type = ? AND subject_id = ? AND stream = ? AND end_date IS NULL",
				subject.Type, subject.ID, stream).
			Order("id DESC").
			First(&last).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.NotFound("no open %s interval for %s %d", stream, subject.Type, subject.ID)
		}
		if err != nil {
			return err
		}
		if endDate.Before(last.StartDate) {
			return types.Validation(
				"end date %s precedes the interval start %s",
				endDate.Format(time.DateOnly), last.StartDate.Format(time.DateOnly))
		}
		if err := tx.Model(&last).Update("end_date", endDate).Error; err != nil {
			return err
		}
		last.EndDate = &endDate
		closed = last
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("interval closed",
		zap.String("subject_type", string(subject.Type)),
		zap.Uint64("subject_id", subject.ID),
		zap.String("stream", string(stream)),
	)
	return &closed, nil
}

// CurrentInterval returns the record in effect for (subject, stream): the
// open record when asOf is the zero time, otherwise the record covering
// asOf. A subject that never had an interval opened yields (nil, nil).
func (l *Ledger) CurrentInterval(ctx context.Context, subject Subject, stream models.Stream, asOf time.Time) (*models.IntervalRecord, error) {
	if err := subjectExists(l.db.WithContext(ctx), subject); err != nil {
		return nil, err
	}

	q := l.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ? AND stream = ?", subject.Type, subject.ID, stream)
	if asOf.IsZero() {
		q = q.Where("end_date IS NULL")
	} else {
		q = q.Where("start_date <= ? AND (end_date IS NULL OR end_date > ?)", asOf, asOf).
			Order("start_date DESC")
	}

	var rec models.IntervalRecord
	if err := q.First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// History returns the full interval history of (subject, stream), newest
// first.
func (l *Ledger) History(ctx context.Context, subject Subject, stream models.Stream) ([]models.IntervalRecord, error) {
	if err := subjectExists(l.db.WithContext(ctx), subject); err != nil {
		return nil, err
	}
	var recs []models.IntervalRecord
	err := l.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ? AND stream = ?", subject.Type, subject.ID, stream).
		Order("start_date DESC, id DESC").
		Find(&recs).Error
	return recs, err
}

// SubjectsInState lists the ids of subjects whose open record on the given
// stream carries the given state, optionally restricted to the visible
// department ids computed by the hierarchy resolver (nil means unrestricted,
// the admin case).
func (l *Ledger) SubjectsInState(ctx context.Context, subjectType models.SubjectType, stream models.Stream, state string, visibleDepts []uint64) ([]uint64, error) {
	table := "pipes"
	if subjectType == models.SubjectNode {
		table = "nodes"
	}

	q := l.db.WithContext(ctx).
		Clauses(hints.Comment("select", "ledger:subjects-in-state")).
		Model(&models.IntervalRecord{}).
		Joins("JOIN "+table+" s ON s.id = interval_records.subject_id").
		Where("interval_records.subject_type = ? AND interval_records.stream = ?", subjectType, stream).
		Where("interval_records.end_date IS NULL AND interval_records.state = ?", state)
	if visibleDepts != nil {
		q = q.Where("s.department_id IN ?", visibleDepts)
	}

	var ids []uint64
	err := q.Order("interval_records.subject_id").
		Pluck("interval_records.subject_id", &ids).Error
	return ids, err
}

func validatePayload(subject Subject, stream models.Stream, payload IntervalPayload) error {
	switch {
	case subject.Type == models.SubjectPipe && stream == models.StreamState:
		if !models.PipeStates[payload.State] {
			return types.Validation("unknown pipe state %q", payload.State)
		}
	case subject.Type == models.SubjectNode && stream == models.StreamPosition:
		if !models.NodePositions[payload.State] {
			return types.Validation("unknown node position %q", payload.State)
		}
	case subject.Type == models.SubjectPipe && stream == models.StreamLimit:
		if payload.Pressure == nil || *payload.Pressure <= 0 {
			return types.Validation("pressure limit requires a positive pressure value")
		}
	default:
		return types.Validation("stream %s is not tracked for subject type %s", stream, subject.Type)
	}
	return nil
}

// lockSubject takes a row lock on the asset so that concurrent writers for
// the same subject serialize; different subjects proceed in parallel.
func lockSubject(tx *gorm.DB, subject Subject) error {
	var err error
	switch subject.Type {
	case models.SubjectPipe:
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").First(&models.Pipe{}, subject.ID).Error
	case models.SubjectNode:
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").First(&models.Node{}, subject.ID).Error
	default:
		return types.Validation("unknown subject type %q", subject.Type)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NotFound("%s %d", subject.Type, subject.ID)
	}
	return err
}

func subjectExists(db *gorm.DB, subject Subject) error {
	var err error
	switch subject.Type {
	case models.SubjectPipe:
		err = db.Select("id").First(&models.Pipe{}, subject.ID).Error
	case models.SubjectNode:
		err = db.Select("id").First(&models.Node{}, subject.ID).Error
	default:
		return types.Validation("unknown subject type %q", subject.Type)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NotFound("%s %d", subject.Type, subject.ID)
	}
	return err
}
