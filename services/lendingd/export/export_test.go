package export

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"lendledger/core/types"
	"lendledger/crypto"
	"lendledger/native/lending"
	"lendledger/services/lendingd/archive"
)

func sampleLoans() []*lending.Loan {
	return []*lending.Loan{
		{
			ID:               1,
			Borrower:         crypto.DeriveAddress("alice"),
			Lender:           crypto.DeriveAddress("bob"),
			Amount:           types.NewMoney(1000),
			Collateral:       types.NewMoney(1500),
			InterestRate:     500,
			BaseInterestRate: 500,
			RiskMultiplier:   1000,
			Status:           lending.StatusActive,
			RemainingBalance: types.NewMoney(1050),
		},
		nil,
		{
			ID:       2,
			Borrower: crypto.DeriveAddress("carol"),
			Amount:   types.NewMoney(10),
			Status:   lending.StatusPending,
		},
	}
}

func TestWriteLoansCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLoansCSV(&buf, sampleLoans()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, loanHeader, records[0])
	require.Equal(t, "1", records[1][0])
	require.Equal(t, "active", records[1][3])
	require.Equal(t, "1050", records[1][18])
	require.Equal(t, "", records[2][2])
	require.Equal(t, "pending", records[2][3])
}

func TestWriteLoansParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loans.parquet")
	require.NoError(t, WriteLoansParquet(path, sampleLoans()))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(LoanRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.Equal(t, int64(2), pr.GetNumRows())
	rows := make([]LoanRow, 2)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, int64(1), rows[0].LoanID)
	require.Equal(t, "1000", rows[0].Amount)
	require.Equal(t, crypto.DeriveAddress("carol").String(), rows[1].Borrower)
}

func TestWriteEventsCSV(t *testing.T) {
	var buf bytes.Buffer
	records := []archive.EventRecord{{
		Seq:        4,
		Type:       "lending.loan.funded",
		LoanID:     9,
		Block:      120,
		Attributes: `{"amount":"10"}`,
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	require.NoError(t, WriteEventsCSV(&buf, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"4", "lending.loan.funded", "9", "120", "", `{"amount":"10"}`, "2024-01-02T03:04:05Z"}, rows[1])
}
