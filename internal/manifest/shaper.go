package manifest

import (
	"fmt"
	"path/filepath"

	"shuttle/internal/config"
)

// Trait is a string-valued asset property.
type Trait struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Rank is a numeric asset level or stat with an upper bound.
type Rank struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Max   int    `json:"max"`
}

// Payload is the marketplace-facing asset description sent with an upload.
// Nullable fields use pointers so absent values encode as JSON null, matching
// what the create endpoint expects.
type Payload struct {
	Collection        string  `json:"collection"`
	Name              string  `json:"name"`
	Description       *string `json:"description"`
	ExternalLink      *string `json:"externalLink"`
	Properties        []Trait `json:"properties"`
	Levels            []Rank  `json:"levels"`
	Stats             []Rank  `json:"stats"`
	UnlockableContent *string `json:"unlockableContent"`
	IsNsfw            bool    `json:"isNsfw"`
	MaxSupply         string  `json:"maxSupply"`
	Chain             string  `json:"chain"`
}

// Shaped pairs the wire payload with the local file it describes.
type Shaped struct {
	AssetID  int
	FilePath string
	Payload  Payload
}

// PayloadShaper turns a manifest asset into an upload payload. Collections
// with bespoke metadata provide their own implementation.
type PayloadShaper interface {
	Shape(asset Asset) (Shaped, error)
}

// DefaultShaper produces the standard single-edition payload: sequential
// names, shared description, fixed chain, supply of one.
type DefaultShaper struct {
	Collection config.Collection
}

var _ PayloadShaper = DefaultShaper{}

func (s DefaultShaper) Shape(asset Asset) (Shaped, error) {
	path, err := s.resolvePath(asset)
	if err != nil {
		return Shaped{}, err
	}

	var description *string
	if s.Collection.Description != "" {
		d := s.Collection.Description
		description = &d
	}

	return Shaped{
		AssetID:  asset.ID,
		FilePath: path,
		Payload: Payload{
			Collection:  s.Collection.Name,
			Name:        fmt.Sprintf("%s#%d", s.Collection.SingleAssetName, asset.ID),
			Description: description,
			Properties:  []Trait{},
			Levels:      []Rank{},
			Stats:       []Rank{},
			MaxSupply:   "1",
			Chain:       s.Collection.Chain,
		},
	}, nil
}

func (s DefaultShaper) resolvePath(asset Asset) (string, error) {
	if s.Collection.UseAbsolutePath && asset.Path != "" {
		return asset.Path, nil
	}
	if asset.FileName == "" {
		return "", fmt.Errorf("asset %d: no file_name for relative resolution", asset.ID)
	}
	if s.Collection.Dir == "" {
		return "", fmt.Errorf("asset %d: collection dir unset", asset.ID)
	}
	return filepath.Abs(filepath.Join(s.Collection.Dir, asset.FileName))
}
