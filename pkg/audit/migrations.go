package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// RunMigrations creates the audit log table
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT,
			action VARCHAR(50) NOT NULL,
			resource_type VARCHAR(50) NOT NULL,
			resource_id VARCHAR(255),
			status VARCHAR(20) NOT NULL,
			detail TEXT,
			request_id VARCHAR(100),
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_user_id ON audit_log(user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_log_resource_type ON audit_log(resource_type);
		CREATE INDEX IF NOT EXISTS idx_audit_log_status ON audit_log(status);
	`)
	if err != nil {
		return fmt.Errorf("failed to create audit_log table: %w", err)
	}
	return nil
}
