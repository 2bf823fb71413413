package database_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gastransit/pipeledger/internal/config"
	"github.com/gastransit/pipeledger/internal/database"
	"github.com/gastransit/pipeledger/internal/models"
	"github.com/gastransit/pipeledger/internal/services"
	"github.com/gastransit/pipeledger/internal/testdb"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestWithMySQL runs the connect/migrate/ledger path against a real MySQL
// container. Skipped in short mode and when no docker daemon is reachable.
func TestWithMySQL(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	if !testdb.DockerAvailable(ctx) {
		t.Skip("Skipping integration test: docker daemon not reachable")
	}

	mc, err := testdb.StartMySQL(ctx, os.Getenv("DB_IMAGE"))
	require.NoError(t, err)
	defer func() {
		if err := mc.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate MySQL container: %v", err)
		}
	}()

	cfg := &config.Config{
		DBType:            "mysql",
		DBHost:            mc.Host,
		DBPort:            mc.Port,
		DBDatabase:        mc.Database,
		DBUser:            mc.User,
		DBPassword:        mc.Password,
		DBConnectionLimit: 5,
		LogLevel:          "info",
		TxRetries:         3,
	}

	db, err := database.Connect(cfg, zap.NewNop())
	require.NoError(t, err)
	defer database.Close(db)

	require.NoError(t, database.AutoMigrate(db))

	dept := models.Department{Name: "Integration branch"}
	require.NoError(t, db.Create(&dept).Error)
	pipeline := models.Pipeline{Name: "Integration line"}
	require.NoError(t, db.Create(&pipeline).Error)
	pipe := models.Pipe{PipelineID: pipeline.ID, DepartmentID: dept.ID, StartPoint: 0, EndPoint: 5}
	require.NoError(t, db.Create(&pipe).Error)

	ledger := services.NewLedger(db, zap.NewNop(), nil, cfg.TxRetries)
	subject := services.Subject{Type: models.SubjectPipe, ID: pipe.ID}

	_, err = ledger.OpenInterval(ctx, subject, models.StreamState,
		time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		services.IntervalPayload{State: models.StateOperation}, "")
	require.NoError(t, err)
	_, err = ledger.OpenInterval(ctx, subject, models.StreamState,
		time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		services.IntervalPayload{State: models.StateRepair}, "")
	require.NoError(t, err)

	cur, err := ledger.CurrentInterval(ctx, subject, models.StreamState, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, cur)
	require.Equal(t, models.StateRepair, cur.State)

	var open int64
	require.NoError(t, db.Model(&models.IntervalRecord{}).
		Where("subject_type = ? AND subject_id = ? AND stream = ? AND end_date IS NULL",
			models.SubjectPipe, pipe.ID, models.StreamState).
		Count(&open).Error)
	require.EqualValues(t, 1, open)
}
