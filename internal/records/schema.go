package records

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS upload_records (
    asset_id         INTEGER PRIMARY KEY,
    token_id         TEXT NOT NULL,
    contract_address TEXT NOT NULL,
    contract_chain   TEXT NOT NULL,
    contract_type    TEXT NOT NULL,
    asset_type       TEXT NOT NULL,
    created_at       TEXT NOT NULL
);
`

func (s *Store) applyMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
