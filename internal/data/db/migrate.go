package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/storybook-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.Models()...)
}

// EnsureIndexes adds the partial indexes AutoMigrate cannot express.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{
			name: "idx_job_run_runnable",
			sql: `CREATE INDEX IF NOT EXISTS idx_job_run_runnable
				ON job_run (status, created_at)
				WHERE deleted_at IS NULL AND status IN ('queued', 'failed', 'running');`,
		},
		{
			name: "idx_story_user_created",
			sql: `CREATE INDEX IF NOT EXISTS idx_story_user_created
				ON story (user_id, created_at DESC)
				WHERE deleted_at IS NULL;`,
		},
		{
			name: "idx_story_order_story_paid",
			sql: `CREATE INDEX IF NOT EXISTS idx_story_order_story_paid
				ON story_order (story_id, format)
				WHERE status = 'paid' AND deleted_at IS NULL;`,
		},
	}
	for _, st := range stmts {
		if err := db.Exec(st.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", st.name, err)
		}
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureIndexes(s.db); err != nil {
		s.log.Error("Index migration failed", "error", err)
		return err
	}
	return nil
}
