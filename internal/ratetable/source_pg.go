package ratetable

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PGSource reads rate tables from Postgres.
type PGSource struct {
	DB *sql.DB
}

// ListEntries returns the rows for the given accounts.
func (s *PGSource) ListEntries(ctx context.Context, accountIDs []string) ([]Entry, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(accountIDs))
	args := make([]any, len(accountIDs))
	for i, id := range accountIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `
SELECT carrier_account_id, service_code, service_name, zone, weight_break, amount, currency
FROM rate_table_entries
WHERE carrier_account_id IN (` + strings.Join(placeholders, ", ") + `)`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var name sql.NullString
		if err := rows.Scan(&e.CarrierAccountID, &e.ServiceCode, &name, &e.Zone, &e.WeightBreak, &e.Amount, &e.Currency); err != nil {
			return nil, err
		}
		e.ServiceName = name.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReplaceAccount swaps the table of one account in a single transaction.
func (s *PGSource) ReplaceAccount(ctx context.Context, accountID string, entries []Entry) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_table_entries WHERE carrier_account_id = $1`, accountID); err != nil {
		return err
	}
	const insert = `
INSERT INTO rate_table_entries (carrier_account_id, service_code, service_name, zone, weight_break, amount, currency)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, e := range entries {
		currency := e.Currency
		if currency == "" {
			currency = "USD"
		}
		if _, err := tx.ExecContext(ctx, insert,
			accountID,
			NormalizeService(e.ServiceCode),
			e.ServiceName,
			NormalizeZone(e.Zone),
			e.WeightBreak,
			e.Amount,
			currency,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
