// Command migrate creates or updates the database schema and optionally
// seeds a small demo dataset for local development.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gastransit/pipeledger/internal/config"
	"github.com/gastransit/pipeledger/internal/database"
	"github.com/gastransit/pipeledger/internal/logging"
	"github.com/gastransit/pipeledger/internal/models"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	var showHelp bool
	flag.BoolVar(&showHelp, "h", false, "show help")
	var envFilename string
	flag.StringVar(&envFilename, "env", "", "env file to load before reading configuration")
	var seed bool
	flag.BoolVar(&seed, "seed", false, "seed a demo organization after migrating")
	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if envFilename != "" {
		if err := godotenv.Load(envFilename); err != nil {
			log.Fatalf("Failed to load env file %s: %v", envFilename, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "pipeledger-migrate")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("schema migrated")

	if seed {
		if err := seedDemo(db); err != nil {
			logger.Fatal("failed to seed demo data", zap.Error(err))
		}
		logger.Info("demo data seeded")
	}
}

// seedDemo creates one branch with a responsible party and a short pipeline
// so every screen has something to show. Idempotent: skipped when any
// department already exists.
func seedDemo(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Department{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		branch := models.Department{Name: "Central LPU"}
		if err := tx.Create(&branch).Error; err != nil {
			return err
		}
		workshop := models.Department{Name: "Compressor workshop", ParentID: &branch.ID}
		if err := tx.Create(&workshop).Error; err != nil {
			return err
		}

		responsible := models.User{
			Username:     "responsible",
			LastName:     "Orlova",
			FirstName:    "Anna",
			Role:         models.RoleManager,
			DepartmentID: &branch.ID,
		}
		operator := models.User{
			Username:     "operator",
			LastName:     "Smirnov",
			FirstName:    "Pavel",
			Role:         models.RoleEmployee,
			DepartmentID: &workshop.ID,
		}
		if err := tx.Create(&responsible).Error; err != nil {
			return err
		}
		if err := tx.Create(&operator).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.AreaRoute{
			Area:         models.AreaProposals,
			DepartmentID: branch.ID,
			UserID:       responsible.ID,
		}).Error; err != nil {
			return err
		}

		pipeline := models.Pipeline{Name: "Main line", Description: "demo pipeline"}
		if err := tx.Create(&pipeline).Error; err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			pipe := models.Pipe{
				PipelineID:   pipeline.ID,
				DepartmentID: workshop.ID,
				StartPoint:   float64(i * 10),
				EndPoint:     float64((i + 1) * 10),
			}
			if err := tx.Create(&pipe).Error; err != nil {
				return err
			}
		}
		node := models.Node{
			PipelineID:    pipeline.ID,
			DepartmentID:  workshop.ID,
			NodeType:      models.NodeValve,
			LocationPoint: 10,
		}
		if err := tx.Create(&node).Error; err != nil {
			return err
		}

		fmt.Println("seeded demo organization: 2 departments, 2 users, 1 pipeline")
		return nil
	})
}
