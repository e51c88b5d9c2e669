package run

import (
	"testing"

	"github.com/hairizuanbinnoorazman/rateloop/logger"
	"github.com/hairizuanbinnoorazman/rateloop/testutil"
	"gorm.io/gorm"
)

// setupTestStore creates a test database and run store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &Run{}, &SessionRecord{})

	log := logger.NewTestLogger()
	store := NewMySQLStore(db, log)

	return db, store
}

func newRun() *Run {
	return &Run{
		TargetURL:    "https://www.eggg.co.uk",
		SessionCount: 3,
	}
}
