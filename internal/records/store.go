package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shuttle/internal/config"
)

// ErrDuplicate is returned when a record already exists for an asset id.
// Records are append-only; an asset is uploaded at most once.
var ErrDuplicate = errors.New("upload record already exists")

// Record is the durable proof that an asset was uploaded.
type Record struct {
	AssetID         int
	TokenID         string
	ContractAddress string
	ContractChain   string
	ContractType    string
	AssetType       string
	CreatedAt       time.Time
}

// Store manages upload-record persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the record database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.RecordDBPath())
}

// OpenPath opens the record database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Append stores the record for a freshly uploaded asset. The write is
// synchronous; when Append returns, the record is durable.
func (s *Store) Append(ctx context.Context, rec Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO upload_records (
            asset_id, token_id, contract_address, contract_chain,
            contract_type, asset_type, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.AssetID,
		rec.TokenID,
		rec.ContractAddress,
		rec.ContractChain,
		rec.ContractType,
		rec.AssetType,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: asset %d", ErrDuplicate, rec.AssetID)
		}
		return fmt.Errorf("insert upload record: %w", err)
	}
	return nil
}

// Get returns the record for an asset id, or nil when absent. Absence of a
// record means the asset has not been uploaded.
func (s *Store) Get(ctx context.Context, assetID int) (*Record, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT asset_id, token_id, contract_address, contract_chain,
                contract_type, asset_type, created_at
         FROM upload_records WHERE asset_id = ?`,
		assetID,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query upload record: %w", err)
	}
	return rec, nil
}

// UploadedIDs returns the set of asset ids with a durable record.
func (s *Store) UploadedIDs(ctx context.Context) (map[int]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT asset_id FROM upload_records`)
	if err != nil {
		return nil, fmt.Errorf("query uploaded ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan uploaded id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploaded ids: %w", err)
	}
	return ids, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count upload records: %w", err)
	}
	return count, nil
}

// CheckHealth verifies the database answers a trivial query.
func (s *Store) CheckHealth(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("record store health: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var createdAt string
	if err := row.Scan(
		&rec.AssetID,
		&rec.TokenID,
		&rec.ContractAddress,
		&rec.ContractChain,
		&rec.ContractType,
		&rec.AssetType,
		&createdAt,
	); err != nil {
		return nil, err
	}
	if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = parsed
	}
	return &rec, nil
}
