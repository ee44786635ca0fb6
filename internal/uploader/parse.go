package uploader

import (
	"encoding/json"
	"errors"
	"fmt"

	"shuttle/internal/records"
)

// ErrInvalidResponse reports a reply that is not the create-asset shape.
var ErrInvalidResponse = errors.New("invalid upload response")

// The create endpoint answers either
//
//	{"data":{"assets":{"create":{"tokenId":...,"assetContract":{"address":...,"chain":...,"id":...},"id":...}}},"status":200}
//
// or, on rejection,
//
//	{"errors":[{"message":...}],"status":200}
type uploadResponse struct {
	Status int `json:"status"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Data struct {
		Assets struct {
			Create struct {
				TokenID       string `json:"tokenId"`
				ID            string `json:"id"`
				AssetContract struct {
					Address string `json:"address"`
					Chain   string `json:"chain"`
					ID      string `json:"id"`
				} `json:"assetContract"`
			} `json:"create"`
		} `json:"assets"`
	} `json:"data"`
}

// ParseResponse validates a raw create-asset reply and extracts the upload
// record for assetID.
func ParseResponse(raw []byte, assetID int) (*records.Record, error) {
	var resp uploadResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp.Status != 200 {
		return nil, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.Status)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("create rejected: %s", resp.Errors[0].Message)
	}
	create := resp.Data.Assets.Create
	if create.TokenID == "" {
		return nil, fmt.Errorf("%w: missing tokenId", ErrInvalidResponse)
	}
	return &records.Record{
		AssetID:         assetID,
		TokenID:         create.TokenID,
		ContractAddress: create.AssetContract.Address,
		ContractChain:   create.AssetContract.Chain,
		ContractType:    create.AssetContract.ID,
		AssetType:       create.ID,
	}, nil
}
