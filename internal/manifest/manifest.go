package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	// ErrCollectionDirMissing indicates the configured collection directory
	// does not exist.
	ErrCollectionDirMissing = errors.New("collection directory not found")
	// ErrManifestMissing indicates the manifest file is absent.
	ErrManifestMissing = errors.New("collection manifest not found")
	// ErrManifestCorrupted indicates the manifest exists but cannot be parsed
	// or fails validation.
	ErrManifestCorrupted = errors.New("collection manifest corrupted")
)

// Asset is one manifest entry describing a single uploadable asset.
type Asset struct {
	ID       int      `yaml:"id"`
	Path     string   `yaml:"path"`
	FileName string   `yaml:"file_name"`
	Attrs    []string `yaml:"attrs"`
}

// Manifest is the collection manifest document.
type Manifest struct {
	AssetsData []Asset `yaml:"assets_data"`
}

// Load reads and validates the manifest at path. collectionDir, when
// non-empty, is checked for existence first so a misconfigured directory is
// reported ahead of a missing manifest inside it.
func Load(collectionDir, path string) (*Manifest, error) {
	if collectionDir != "" {
		info, err := os.Stat(collectionDir)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionDirMissing, collectionDir)
		}
		if err != nil {
			return nil, fmt.Errorf("stat collection dir: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrManifestMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupted, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupted, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.AssetsData) == 0 {
		return errors.New("assets_data is empty")
	}
	seen := make(map[int]struct{}, len(m.AssetsData))
	for i, asset := range m.AssetsData {
		if asset.ID < 0 {
			return fmt.Errorf("entry %d: negative id %d", i, asset.ID)
		}
		if _, dup := seen[asset.ID]; dup {
			return fmt.Errorf("duplicate asset id %d", asset.ID)
		}
		seen[asset.ID] = struct{}{}
		if asset.Path == "" && asset.FileName == "" {
			return fmt.Errorf("asset %d: neither path nor file_name set", asset.ID)
		}
	}
	return nil
}
