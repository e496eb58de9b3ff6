// Package seed loads carrier accounts and rate tables from a YAML file into
// the configured repositories. It backs development setups and memory mode.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"rateshop-backend/internal/carriers"
	"rateshop-backend/internal/ratetable"
	"rateshop-backend/internal/shared/telemetry"
)

// File is the seed document.
type File struct {
	Accounts   []carriers.Account `yaml:"accounts"`
	RateTables []Table            `yaml:"rateTables"`
}

// Table is the rate card of one service of one account, keyed by zone.
type Table struct {
	Account     string            `yaml:"account"`
	Service     string            `yaml:"service"`
	ServiceName string            `yaml:"serviceName"`
	Currency    string            `yaml:"currency"`
	Zones       map[string][]Tier `yaml:"zones"`
}

// Tier prices shipments up to and including Weight pounds.
type Tier struct {
	Weight float64 `yaml:"weight"`
	Amount float64 `yaml:"amount"`
}

// AccountWriter stores carrier accounts.
type AccountWriter interface {
	Upsert(ctx context.Context, account carriers.Account) error
}

// TableWriter replaces the rate table of an account.
type TableWriter interface {
	ReplaceAccount(ctx context.Context, accountID string, entries []ratetable.Entry) error
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("decode seed: %w", err)
	}
	if err := f.validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// LoadFile parses the seed document at path.
func LoadFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("open seed %s: %w", path, err)
	}
	defer fh.Close()
	return Parse(fh)
}

func (f File) validate() error {
	ids := make(map[string]struct{}, len(f.Accounts))
	for i, a := range f.Accounts {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return fmt.Errorf("seed accounts[%d]: id is required", i)
		}
		if _, dup := ids[id]; dup {
			return fmt.Errorf("seed accounts[%d]: duplicate id %s", i, id)
		}
		ids[id] = struct{}{}
	}
	for i, t := range f.RateTables {
		if _, ok := ids[strings.TrimSpace(t.Account)]; !ok {
			return fmt.Errorf("seed rateTables[%d]: unknown account %q", i, t.Account)
		}
		if strings.TrimSpace(t.Service) == "" {
			return fmt.Errorf("seed rateTables[%d]: service is required", i)
		}
	}
	return nil
}

// Entries flattens the rate tables into rows grouped by account id.
func (f File) Entries() map[string][]ratetable.Entry {
	out := make(map[string][]ratetable.Entry)
	for _, t := range f.RateTables {
		account := strings.TrimSpace(t.Account)
		zones := make([]string, 0, len(t.Zones))
		for z := range t.Zones {
			zones = append(zones, z)
		}
		sort.Strings(zones)
		for _, z := range zones {
			for _, tier := range t.Zones[z] {
				out[account] = append(out[account], ratetable.Entry{
					CarrierAccountID: account,
					ServiceCode:      ratetable.NormalizeService(t.Service),
					ServiceName:      t.ServiceName,
					Zone:             z,
					WeightBreak:      tier.Weight,
					Amount:           tier.Amount,
					Currency:         t.Currency,
				})
			}
		}
	}
	return out
}

// Apply writes accounts first, then replaces each account's rate table.
// Accounts listed without tables get an empty table.
func Apply(ctx context.Context, f File, accounts AccountWriter, tables TableWriter) error {
	entries := f.Entries()
	for _, a := range f.Accounts {
		a = a.Normalize()
		a.ID = strings.TrimSpace(a.ID)
		if err := accounts.Upsert(ctx, a); err != nil {
			return fmt.Errorf("seed account %s: %w", a.ID, err)
		}
		if !a.UsesRateCard() {
			continue
		}
		if err := tables.ReplaceAccount(ctx, a.ID, entries[a.ID]); err != nil {
			return fmt.Errorf("seed rate table %s: %w", a.ID, err)
		}
	}
	telemetry.Info("seed.applied", map[string]any{
		"accounts":    len(f.Accounts),
		"rate_tables": len(f.RateTables),
	})
	return nil
}
