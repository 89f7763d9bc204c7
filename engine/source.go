package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/omniarb/arbengine/profit"
	"github.com/omniarb/arbengine/types"
)

// snapshotFile is the on-disk shape of an externally refreshed pool
// snapshot, re-read on every tick.
type snapshotFile struct {
	GasPriceGwei   string     `json:"gas_price_gwei"`
	NativePriceUSD string     `json:"native_price_usd"`
	Pools          []poolJSON `json:"pools"`
}

type poolJSON struct {
	DEX       string `json:"dex"`
	Address   string `json:"address"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Reserve0  string `json:"reserve0"`
	Reserve1  string `json:"reserve1"`
	Fee       string `json:"fee"`
	Type      string `json:"type"`
	AmpFactor string `json:"amp_factor,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// FileSource pulls snapshots from a JSON file maintained by an external
// feed process. It satisfies the synchronous getSnapshot discipline:
// no callbacks, no event loop inside the core.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading path each tick.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// GetSnapshot implements SnapshotSource.
func (s *FileSource) GetSnapshot(ctx context.Context) ([]*types.Pool, profit.Params, error) {
	if err := ctx.Err(); err != nil {
		return nil, profit.Params{}, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, profit.Params{}, fmt.Errorf("engine: read snapshot: %w", err)
	}
	var file snapshotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, profit.Params{}, fmt.Errorf("engine: parse snapshot: %w", err)
	}

	params := profit.Params{}
	if params.GasPriceGwei, err = decimal.NewFromString(file.GasPriceGwei); err != nil {
		return nil, profit.Params{}, fmt.Errorf("engine: gas_price_gwei: %w", err)
	}
	if params.NativePriceUSD, err = decimal.NewFromString(file.NativePriceUSD); err != nil {
		return nil, profit.Params{}, fmt.Errorf("engine: native_price_usd: %w", err)
	}

	pools := make([]*types.Pool, 0, len(file.Pools))
	for i, pj := range file.Pools {
		pool, err := pj.toPool()
		if err != nil {
			return nil, profit.Params{}, fmt.Errorf("engine: pool %d: %w", i, err)
		}
		pools = append(pools, pool)
	}
	return pools, params, nil
}

func (pj poolJSON) toPool() (*types.Pool, error) {
	pool := &types.Pool{
		DEX:     pj.DEX,
		Address: common.HexToAddress(pj.Address),
		Token0:  common.HexToAddress(pj.Token0),
		Token1:  common.HexToAddress(pj.Token1),
	}
	var err error
	if pool.Reserve0, err = decimal.NewFromString(pj.Reserve0); err != nil {
		return nil, fmt.Errorf("reserve0: %w", err)
	}
	if pool.Reserve1, err = decimal.NewFromString(pj.Reserve1); err != nil {
		return nil, fmt.Errorf("reserve1: %w", err)
	}
	if pool.Fee, err = decimal.NewFromString(pj.Fee); err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}
	switch pj.Type {
	case "stable_swap":
		pool.Type = types.StableSwap
		if pj.AmpFactor == "" {
			return nil, fmt.Errorf("stable_swap pool missing amp_factor")
		}
		if pool.AmpFactor, err = decimal.NewFromString(pj.AmpFactor); err != nil {
			return nil, fmt.Errorf("amp_factor: %w", err)
		}
	case "constant_product", "":
		pool.Type = types.ConstantProduct
	default:
		return nil, fmt.Errorf("unknown pool type %q", pj.Type)
	}
	if pool.UpdatedAt, err = time.Parse(time.RFC3339, pj.UpdatedAt); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return pool, nil
}
