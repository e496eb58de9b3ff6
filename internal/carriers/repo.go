package carriers

import "context"

// Repo defines read and seed operations for carrier accounts.
type Repo interface {
	Get(ctx context.Context, id string) (Account, error)
	// GetMany returns the accounts that exist, in the order of ids.
	GetMany(ctx context.Context, ids []string) ([]Account, error)
	Upsert(ctx context.Context, account Account) error
}
