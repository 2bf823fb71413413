package services

import (
	"testing"
	"time"

	"github.com/gastransit/pipeledger/internal/models"
	"github.com/gastransit/pipeledger/internal/testdb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// tickingClock returns a clock that advances one second per call, so
// appended status records always have distinct DateChanged values.
func tickingClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

// fixture is the shared test world: two branches, users in every role, one
// pipeline with pipes and a valve node, and a responsible party for the
// proposals area of branch A.
type fixture struct {
	db *gorm.DB

	branchA   models.Department // root
	serviceB  models.Department // under branchA
	branchZ   models.Department // second root
	serviceY  models.Department // under branchZ
	pipeline  models.Pipeline
	pipeB     models.Pipe // owned by serviceB
	pipeY     models.Pipe // owned by serviceY
	valve     models.Node
	author    models.User // employee in serviceB
	coauthor  models.User // employee in serviceB
	manager   models.User // manager in branchA
	outsider  models.User // employee in serviceY
	farchief  models.User // manager in branchZ
	respParty models.User // responsible for proposals in branchA
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: testdb.Open(t)}

	f.branchA = models.Department{Name: "Branch A"}
	require.NoError(t, f.db.Create(&f.branchA).Error)
	f.serviceB = models.Department{Name: "Service B", ParentID: &f.branchA.ID}
	require.NoError(t, f.db.Create(&f.serviceB).Error)
	f.branchZ = models.Department{Name: "Branch Z"}
	require.NoError(t, f.db.Create(&f.branchZ).Error)
	f.serviceY = models.Department{Name: "Service Y", ParentID: &f.branchZ.ID}
	require.NoError(t, f.db.Create(&f.serviceY).Error)

	f.author = models.User{Username: "author", LastName: "Ivanov", Role: models.RoleEmployee, DepartmentID: &f.serviceB.ID}
	f.coauthor = models.User{Username: "coauthor", LastName: "Petrov", Role: models.RoleEmployee, DepartmentID: &f.serviceB.ID}
	f.manager = models.User{Username: "manager", LastName: "Sidorova", Role: models.RoleManager, DepartmentID: &f.branchA.ID}
	f.outsider = models.User{Username: "outsider", LastName: "Kozlov", Role: models.RoleEmployee, DepartmentID: &f.serviceY.ID}
	f.farchief = models.User{Username: "farchief", LastName: "Fomin", Role: models.RoleManager, DepartmentID: &f.branchZ.ID}
	f.respParty = models.User{Username: "resp", LastName: "Orlova", Role: models.RoleManager, DepartmentID: &f.branchA.ID}
	for _, u := range []*models.User{&f.author, &f.coauthor, &f.manager, &f.outsider, &f.farchief, &f.respParty} {
		require.NoError(t, f.db.Create(u).Error)
	}

	require.NoError(t, f.db.Create(&models.AreaRoute{
		Area:         models.AreaProposals,
		DepartmentID: f.branchA.ID,
		UserID:       f.respParty.ID,
	}).Error)

	f.pipeline = models.Pipeline{Name: "Main line"}
	require.NoError(t, f.db.Create(&f.pipeline).Error)
	f.pipeB = models.Pipe{PipelineID: f.pipeline.ID, DepartmentID: f.serviceB.ID, StartPoint: 0, EndPoint: 10}
	require.NoError(t, f.db.Create(&f.pipeB).Error)
	f.pipeY = models.Pipe{PipelineID: f.pipeline.ID, DepartmentID: f.serviceY.ID, StartPoint: 10, EndPoint: 20}
	require.NoError(t, f.db.Create(&f.pipeY).Error)
	f.valve = models.Node{PipelineID: f.pipeline.ID, DepartmentID: f.serviceB.ID, NodeType: models.NodeValve, LocationPoint: 10}
	require.NoError(t, f.db.Create(&f.valve).Error)

	return f
}

func (f *fixture) ledger(clock func() time.Time) *Ledger {
	return NewLedger(f.db, zap.NewNop(), clock, 3)
}

func (f *fixture) workflow(clock func() time.Time) *Workflow {
	return NewWorkflow(f.db, zap.NewNop(), clock, 3)
}

func (f *fixture) proposals(clock func() time.Time) *Proposals {
	return NewProposals(f.db, zap.NewNop(), clock, "2430", 3)
}

// openIntervals counts records still in effect for one subject stream.
func (f *fixture) openIntervals(t *testing.T, subject Subject, stream models.Stream) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.IntervalRecord{}).
		Where("subject_type = ? AND subject_id = ? AND stream = ? AND end_date IS NULL",
			subject.Type, subject.ID, stream).
		Count(&n).Error)
	return n
}
