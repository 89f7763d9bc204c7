// Package flashloan carries the provider fee table and the allowed-
// provider policy. Rates are configuration, never hardcoded: quoted
// figures for the same provider vary between sources, so the operator
// supplies the table.
package flashloan

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// FeeTable maps a provider name to its flash-loan fee rate as a
// fraction of the loan amount.
type FeeTable map[string]decimal.Decimal

// Registry resolves provider fee rates and the allowed set for the
// feasibility check.
type Registry struct {
	fees    FeeTable
	allowed map[string]bool
}

// NewRegistry builds a registry from a fee table. Every provider in the
// table is allowed unless allowed narrows the set.
func NewRegistry(fees FeeTable, allowed []string) (*Registry, error) {
	if len(fees) == 0 {
		return nil, fmt.Errorf("flashloan: empty fee table")
	}
	for name, rate := range fees {
		if rate.Sign() < 0 || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("flashloan: provider %q fee rate %s outside [0,1)", name, rate)
		}
	}
	r := &Registry{fees: fees, allowed: make(map[string]bool)}
	if len(allowed) == 0 {
		for name := range fees {
			r.allowed[name] = true
		}
	} else {
		for _, name := range allowed {
			if _, ok := fees[name]; !ok {
				return nil, fmt.Errorf("flashloan: allowed provider %q missing from fee table", name)
			}
			r.allowed[name] = true
		}
	}
	return r, nil
}

// feeTableFile is the on-disk shape of the provider fee table.
type feeTableFile struct {
	Providers map[string]string `yaml:"providers"`
	Allowed   []string          `yaml:"allowed"`
}

// LoadRegistry reads a YAML fee table:
//
//	providers:
//	  aave: "0.0009"
//	  balancer: "0"
//	allowed: [aave, balancer]
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flashloan: read fee table: %w", err)
	}
	var file feeTableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("flashloan: parse fee table: %w", err)
	}
	fees := make(FeeTable, len(file.Providers))
	for name, rate := range file.Providers {
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("flashloan: provider %q rate %q: %w", name, rate, err)
		}
		fees[name] = d
	}
	return NewRegistry(fees, file.Allowed)
}

// FeeRate returns the fee rate for provider, or an error for a provider
// absent from the table.
func (r *Registry) FeeRate(provider string) (decimal.Decimal, error) {
	rate, ok := r.fees[provider]
	if !ok {
		return decimal.Zero, fmt.Errorf("flashloan: unknown provider %q", provider)
	}
	return rate, nil
}

// Allowed reports whether provider may fund an execution.
func (r *Registry) Allowed(provider string) bool {
	return r.allowed[provider]
}

// Cheapest returns the allowed provider with the lowest fee rate, name
// tiebreak for determinism.
func (r *Registry) Cheapest() string {
	names := make([]string, 0, len(r.fees))
	for name := range r.fees {
		if r.allowed[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	best := ""
	for _, name := range names {
		if best == "" || r.fees[name].LessThan(r.fees[best]) {
			best = name
		}
	}
	return best
}
