package ratetable

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGSourceListEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	rows := sqlmock.NewRows([]string{"carrier_account_id", "service_code", "service_name", "zone", "weight_break", "amount", "currency"}).
		AddRow("acct", "GND", "Ground", "2", 5.0, 8.0, "USD").
		AddRow("acct", "GND", nil, "3", 5.0, 9.0, "USD")
	mock.ExpectQuery("FROM rate_table_entries").
		WithArgs("acct", "other").
		WillReturnRows(rows)

	src := &PGSource{DB: db}
	store, err := Load(context.Background(), src, []string{"acct", "other"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", store.Len())
	}
	e, ok := store.Lookup("acct", "GND", "2", 3)
	if !ok || e.Amount != 8 || e.ServiceName != "Ground" {
		t.Fatalf("unexpected lookup: %+v %v", e, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGSourceReplaceAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM rate_table_entries").WithArgs("acct").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO rate_table_entries").
		WithArgs("acct", "GND", "", "2", 5.0, 8.0, "USD").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	src := &PGSource{DB: db}
	err = src.ReplaceAccount(context.Background(), "acct", []Entry{{ServiceCode: "gnd", Zone: "02", WeightBreak: 5, Amount: 8}})
	if err != nil {
		t.Fatalf("ReplaceAccount: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
