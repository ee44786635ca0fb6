package records

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrLegacyCorrupted indicates the legacy YAML record file cannot be parsed.
var ErrLegacyCorrupted = errors.New("legacy record file corrupted")

type legacyRecord struct {
	AssetID         int    `yaml:"asset_id"`
	TokenID         string `yaml:"token_id"`
	ContractAddress string `yaml:"contract_address"`
	ContractChain   string `yaml:"contract_chain"`
	ContractType    string `yaml:"contract_type"`
	AssetType       string `yaml:"asset_type"`
}

// ImportLegacy folds records from a pre-SQLite YAML keeper file into the
// store. Records already present are skipped. A missing file is not an
// error; returns the number of records imported.
func (s *Store) ImportLegacy(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read legacy records: %w", err)
	}

	entries := map[int]legacyRecord{}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLegacyCorrupted, err)
	}

	existing, err := s.UploadedIDs(ctx)
	if err != nil {
		return 0, err
	}

	imported := 0
	for id, entry := range entries {
		if _, ok := existing[id]; ok {
			continue
		}
		if entry.AssetID == 0 {
			entry.AssetID = id
		}
		rec := Record{
			AssetID:         entry.AssetID,
			TokenID:         entry.TokenID,
			ContractAddress: entry.ContractAddress,
			ContractChain:   entry.ContractChain,
			ContractType:    entry.ContractType,
			AssetType:       entry.AssetType,
		}
		if err := s.Append(ctx, rec); err != nil && !errors.Is(err, ErrDuplicate) {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
