package services

import (
	"context"
	"testing"
	"time"

	"github.com/gastransit/pipeledger/internal/models"
	"github.com/gastransit/pipeledger/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenIntervalClosesPredecessor(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(nil)
	ctx := context.Background()
	subject := Subject{Type: models.SubjectPipe, ID: f.pipeB.ID}

	first, err := l.OpenInterval(ctx, subject, models.StreamState, date(2024, 1, 1),
		IntervalPayload{State: models.StateOperation}, f.author.ID)
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	cur, err := l.CurrentInterval(ctx, subject, models.StreamState, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, models.StateOperation, cur.State)

	second, err := l.OpenInterval(ctx, subject, models.StreamState, date(2024, 6, 1),
		IntervalPayload{State: models.StateRepair, Description: "valve replacement"}, f.manager.ID)
	require.NoError(t, err)

	var reloaded models.IntervalRecord
	require.NoError(t, f.db.First(&reloaded, first.ID).Error)
	require.NotNil(t, reloaded.EndDate)
	assert.True(t, reloaded.EndDate.Equal(date(2024, 6, 1)))

	cur, err = l.CurrentInterval(ctx, subject, models.StreamState, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, second.ID, cur.ID)
	assert.Equal(t, models.StateRepair, cur.State)

	assert.EqualValues(t, 1, f.openIntervals(t, subject, models.StreamState))
}

func TestOpenIntervalStreamsAreIndependent(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(nil)
	ctx := context.Background()
	subject := Subject{Type: models.SubjectPipe, ID: f.pipeB.ID}

	_, err := l.OpenInterval(ctx, subject, models.StreamState, date(2024, 1, 1),
		IntervalPayload{State: models.StateOperation}, "")
	require.NoError(t, err)

	pressure := 5.4
	_, err = l.OpenInterval(ctx, subject, models.StreamLimit, date(2024, 3, 1),
		IntervalPayload{Pressure: &pressure, Description: "corrosion finding"}, "")
	require.NoError(t, err)

	// The limit record must not have touched the state stream.
	cur, err := l.CurrentInterval(ctx, subject, models.StreamState, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, models.StateOperation, cur.State)
	assert.Nil(t, cur.EndDate)

	assert.EqualValues(t, 1, f.openIntervals(t, subject, models.StreamState))
	assert.EqualValues(t, 1, f.openIntervals(t, subject, models.StreamLimit))
}

func TestOpenIntervalRejectsBackdate(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(nil)
	ctx := context.Background()
	subject := Subject{Type: models.SubjectPipe, ID: f.pipeB.ID}

	_, err := l.OpenInterval(ctx, subject, models.StreamState, date(2024, 6, 1),
		IntervalPayload{State: models.StateOperation}, "")
	require.NoError(t, err)

	_, err = l.OpenInterval(ctx, subject, models.StreamState, date(2024, 1, 1),
		IntervalPayload{State: models.StateRepair}, "")
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	// Equal dates produce a zero-length predecessor, which is allowed.
	_, err = l.OpenInterval(ctx, subject, models.StreamState, date(2024, 6, 1),
		IntervalPayload{State: models.StateRepair}, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.openIntervals(t, subject, models.StreamState))
}

func TestOpenIntervalValidation(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(nil)
	ctx := context.Background()
	pipe := Subject{Type: models.SubjectPipe, ID: f.pipeB.ID}
	node := Subject{Type: models.SubjectNode, ID: f.valve.ID}

	cases := []struct {
		name    string
		subject Subject
		stream  models.Stream
		payload IntervalPayload
	}{
		{"unknown pipe state", pipe, models.StreamState, IntervalPayload{State: "melted"}},
		{"position is not a pipe stream", pipe, models.StreamPosition, IntervalPayload{State: models.PositionOpen}},
		{"state is not a node stream", node, models.StreamState, IntervalPayload{State: models.StateOperation}},
		{"limit without pressure", pipe, models.StreamLimit, IntervalPayload{}},
		{"non-positive pressure", pipe, models.StreamLimit, IntervalPayload{Pressure: new(float64)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.OpenInterval(ctx, tc.subject, tc.stream, date(2024, 1, 1), tc.payload, "")
			require.Error(t, err)
			assert.Equal(t, types.KindValidation, types.KindOf(err))
		})
	}
}

func TestOpenIntervalUnknownSubject(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(nil)

	_, err := l.OpenInterval(context.Background(), Subject{Type: models.SubjectPipe, ID: 9999},
		models.StreamState, date(2024, 1, 1), IntervalPayload{State: models.StateOperation}, "")
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestOpenIntervalPositionDefaultsToClock(t *testing.T) {
	f := newFixture(t)
	stamped := date(2025, 2, 14)
	l := f.ledger(func() time.Time { return stamped })
	subject := Subject{Type: models.SubjectNode, ID: f.valve.ID}

	rec, err := l.OpenInterval(context.Background(), subject, models.StreamPosition, time.Time{},
		IntervalPayload{State: models.PositionClosed}, f.author.ID)
	require.NoError(t, err)
	assert.True(t, rec.StartDate.Equal(stamped))

	// Other streams still require an explicit date.
	_, err = l.OpenInterval(context.Background(), Subject{Type: models.SubjectPipe, ID: f.pipeB.ID},
		models.StreamState, time.Time{}, IntervalPayload{State: models.StateOperation}, "")
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestCloseInterval(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(nil)
	ctx := context.Background()
	subject := Subject{Type: models.SubjectPipe, ID: f.pipeB.ID}
	pressure := 3.2

	_, err := l.CloseInterval(ctx, subject, models.StreamLimit, date(2024, 9, 1))
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	_, err = l.OpenInterval(ctx, subject, models.StreamLimit, date(2024, 3, 1),
		IntervalPayload{Pressure: &pressure}, "")
	require.NoError(t, err)

	_, err = l.CloseInterval(ctx, subject, models.StreamLimit, date(2024, 1, 1))
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	closed, err := l.CloseInterval(ctx, subject, models.StreamLimit, date(2024, 9, 1))
	require.NoError(t, err)
	require.NotNil(t, closed.EndDate)
	assert.True(t, closed.EndDate.Equal(date(2024, 9, 1)))

	cur, err := l.CurrentInterval(ctx, subject, models.StreamLimit, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, cur)

	// A second close finds no open record and must not rewrite the closed
	// one's end date.
	_, err = l.CloseInterval(ctx, subject, models.StreamLimit, date(2024, 12, 1))
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))

	var reloaded models.IntervalRecord
	require.NoError(t, f.db.First(&reloaded, closed.ID).Error)
	require.NotNil(t, reloaded.EndDate)
	assert.True(t, reloaded.EndDate.Equal(date(2024, 9, 1)))
}

func TestCurrentIntervalAsOf(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(nil)
	ctx := context.Background()
	subject := Subject{Type: models.SubjectPipe, ID: f.pipeB.ID}

	_, err := l.OpenInterval(ctx, subject, models.StreamState, date(2024, 1, 1),
		IntervalPayload{State: models.StateOperation}, "")
	require.NoError(t, err)
	_, err = l.OpenInterval(ctx, subject, models.StreamState, date(2024, 6, 1),
		IntervalPayload{State: models.StateRepair}, "")
	require.NoError(t, err)

	cur, err := l.CurrentInterval(ctx, subject, models.StreamState, date(2024, 3, 15))
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, models.StateOperation, cur.State)

	// The boundary day belongs to the successor: end is exclusive.
	cur, err = l.CurrentInterval(ctx, subject, models.StreamState, date(2024, 6, 1))
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, models.StateRepair, cur.State)

	cur, err = l.CurrentInterval(ctx, subject, models.StreamState, date(2023, 12, 1))
	require.NoError(t, err)
	assert.Nil(t, cur)

	_, err = l.CurrentInterval(ctx, Subject{Type: models.SubjectPipe, ID: 9999}, models.StreamState, time.Time{})
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestCurrentIntervalNoHistory(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(nil)

	cur, err := l.CurrentInterval(context.Background(),
		Subject{Type: models.SubjectPipe, ID: f.pipeB.ID}, models.StreamState, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestHistoryOrder(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(nil)
	ctx := context.Background()
	subject := Subject{Type: models.SubjectPipe, ID: f.pipeB.ID}

	for i, state := range []string{models.StateOperation, models.StateRepair, models.StateOperation} {
		_, err := l.OpenInterval(ctx, subject, models.StreamState, date(2024, time.Month(1+i*3), 1),
			IntervalPayload{State: state}, "")
		require.NoError(t, err)
	}

	recs, err := l.History(ctx, subject, models.StreamState)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.True(t, recs[0].StartDate.After(recs[1].StartDate))
	assert.True(t, recs[1].StartDate.After(recs[2].StartDate))
	assert.Nil(t, recs[0].EndDate)
	assert.NotNil(t, recs[1].EndDate)
}

func TestSubjectsInState(t *testing.T) {
	f := newFixture(t)
	l := f.ledger(nil)
	ctx := context.Background()

	for _, pipe := range []models.Pipe{f.pipeB, f.pipeY} {
		_, err := l.OpenInterval(ctx, Subject{Type: models.SubjectPipe, ID: pipe.ID},
			models.StreamState, date(2024, 1, 1), IntervalPayload{State: models.StateRepair}, "")
		require.NoError(t, err)
	}

	// Unrestricted: both pipes.
	ids, err := l.SubjectsInState(ctx, models.SubjectPipe, models.StreamState, models.StateRepair, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{f.pipeB.ID, f.pipeY.ID}, ids)

	// Scoped to branch A departments.
	ids, err = l.SubjectsInState(ctx, models.SubjectPipe, models.StreamState, models.StateRepair,
		[]uint64{f.branchA.ID, f.serviceB.ID})
	require.NoError(t, err)
	assert.Equal(t, []uint64{f.pipeB.ID}, ids)

	// Empty visibility set matches nothing.
	ids, err = l.SubjectsInState(ctx, models.SubjectPipe, models.StreamState, models.StateRepair, []uint64{})
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Closed records drop out.
	_, err = l.OpenInterval(ctx, Subject{Type: models.SubjectPipe, ID: f.pipeB.ID},
		models.StreamState, date(2024, 6, 1), IntervalPayload{State: models.StateOperation}, "")
	require.NoError(t, err)
	ids, err = l.SubjectsInState(ctx, models.SubjectPipe, models.StreamState, models.StateRepair, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{f.pipeY.ID}, ids)
}
