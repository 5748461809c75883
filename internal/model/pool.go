package model

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Pool captures the fixed fields of a swap pool and its linked contracts.
type Pool struct {
	Address    common.Address `json:"address"`
	Owner      common.Address `json:"owner"`
	Name       string         `json:"name"`
	Symbol     string         `json:"symbol"`
	FeePpm     *big.Int       `json:"fee_ppm"`
	FeeAddress common.Address `json:"fee_address"`
	Quoter     common.Address `json:"quoter"`
	Limiter    common.Address `json:"limiter"`
	Registry   common.Address `json:"registry"`
}

// PoolMetadata is the off-chain description persisted alongside a pool.
type PoolMetadata struct {
	Address     common.Address `json:"address"`
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Description string         `json:"description"`
	BannerURL   string         `json:"banner_url,omitempty"`
	Owner       common.Address `json:"owner"`
	Tags        []string       `json:"tags,omitempty"`
}

// NormalizeTags trims tags and drops blanks and duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
