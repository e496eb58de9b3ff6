package carriers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `id, owner_id, carrier, name, rate_source, fallback_to_api, sandbox,
       credentials_ref, account_number, service_codes, dim_divisor, endpoint, token_url,
       requests_per_second, burst`

type scanner interface {
	Scan(dest ...any) error
}

// Get returns an account by id.
func (r *PGRepo) Get(ctx context.Context, id string) (Account, error) {
	query := `SELECT ` + selectColumns + ` FROM carrier_accounts WHERE id = $1 LIMIT 1`
	a, err := scanAccount(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// GetMany returns the accounts that exist, in the order of ids.
func (r *PGRepo) GetMany(ctx context.Context, ids []string) ([]Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT ` + selectColumns + ` FROM carrier_accounts WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		found[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(found))
	for _, id := range ids {
		if a, ok := found[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// Upsert stores or replaces an account.
func (r *PGRepo) Upsert(ctx context.Context, account Account) error {
	const query = `
INSERT INTO carrier_accounts (
	id, owner_id, carrier, name, rate_source, fallback_to_api, sandbox, credentials_ref,
	account_number, service_codes, dim_divisor, endpoint, token_url, requests_per_second, burst
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO UPDATE SET
	owner_id = EXCLUDED.owner_id,
	carrier = EXCLUDED.carrier,
	name = EXCLUDED.name,
	rate_source = EXCLUDED.rate_source,
	fallback_to_api = EXCLUDED.fallback_to_api,
	sandbox = EXCLUDED.sandbox,
	credentials_ref = EXCLUDED.credentials_ref,
	account_number = EXCLUDED.account_number,
	service_codes = EXCLUDED.service_codes,
	dim_divisor = EXCLUDED.dim_divisor,
	endpoint = EXCLUDED.endpoint,
	token_url = EXCLUDED.token_url,
	requests_per_second = EXCLUDED.requests_per_second,
	burst = EXCLUDED.burst,
	updated_at = NOW()`
	account = account.Normalize()
	codes, err := json.Marshal(account.ServiceCodes)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		account.ID,
		nullString(account.OwnerID),
		account.Carrier,
		account.Name,
		account.RateSource,
		account.FallbackToAPI,
		account.Sandbox,
		nullString(account.CredentialsRef),
		nullString(account.AccountNumber),
		string(codes),
		account.DimDivisor,
		nullString(account.Endpoint),
		nullString(account.TokenURL),
		account.RequestsPerSecond,
		account.Burst,
	)
	return err
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	var ownerID, credRef, accountNumber, endpoint, tokenURL sql.NullString
	var codes []byte
	err := row.Scan(
		&a.ID,
		&ownerID,
		&a.Carrier,
		&a.Name,
		&a.RateSource,
		&a.FallbackToAPI,
		&a.Sandbox,
		&credRef,
		&accountNumber,
		&codes,
		&a.DimDivisor,
		&endpoint,
		&tokenURL,
		&a.RequestsPerSecond,
		&a.Burst,
	)
	if err != nil {
		return Account{}, err
	}
	a.OwnerID = ownerID.String
	a.CredentialsRef = credRef.String
	a.AccountNumber = accountNumber.String
	a.Endpoint = endpoint.String
	a.TokenURL = tokenURL.String
	if len(codes) > 0 {
		if err := json.Unmarshal(codes, &a.ServiceCodes); err != nil {
			return Account{}, fmt.Errorf("decode service codes for %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
