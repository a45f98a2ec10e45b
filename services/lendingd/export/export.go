package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"lendledger/native/lending"
	"lendledger/services/lendingd/archive"
)

var loanHeader = []string{
	"loan_id", "borrower", "lender", "status", "amount", "collateral", "interest_rate_bps", "base_rate_bps",
	"risk_multiplier", "rate_type", "interest_type", "payment_structure", "created_at", "funded_at", "due_date",
	"principal_outstanding", "interest_outstanding", "fees_outstanding", "remaining_balance", "total_paid",
	"total_interest_accrued", "total_late_fees", "total_refinance_fees", "total_extension_fees", "total_discounts",
	"extension_count", "refinance_count",
}

// LoanRow is the flat parquet representation of a loan. Amounts are decimal
// strings because they can exceed 64 bits.
type LoanRow struct {
	LoanID               int64  `parquet:"name=loan_id, type=INT64"`
	Borrower             string `parquet:"name=borrower, type=BYTE_ARRAY, convertedtype=UTF8"`
	Lender               string `parquet:"name=lender, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status               string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount               string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Collateral           string `parquet:"name=collateral, type=BYTE_ARRAY, convertedtype=UTF8"`
	InterestRateBps      int64  `parquet:"name=interest_rate_bps, type=INT64"`
	BaseRateBps          int64  `parquet:"name=base_rate_bps, type=INT64"`
	RiskMultiplier       int64  `parquet:"name=risk_multiplier, type=INT64"`
	RateType             string `parquet:"name=rate_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	InterestType         string `parquet:"name=interest_type, type=BYTE_ARRAY, convertedtype=UTF8"`
	PaymentStructure     string `parquet:"name=payment_structure, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt            int64  `parquet:"name=created_at, type=INT64"`
	FundedAt             int64  `parquet:"name=funded_at, type=INT64"`
	DueDate              int64  `parquet:"name=due_date, type=INT64"`
	PrincipalOutstanding string `parquet:"name=principal_outstanding, type=BYTE_ARRAY, convertedtype=UTF8"`
	InterestOutstanding  string `parquet:"name=interest_outstanding, type=BYTE_ARRAY, convertedtype=UTF8"`
	FeesOutstanding      string `parquet:"name=fees_outstanding, type=BYTE_ARRAY, convertedtype=UTF8"`
	RemainingBalance     string `parquet:"name=remaining_balance, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalPaid            string `parquet:"name=total_paid, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalInterestAccrued string `parquet:"name=total_interest_accrued, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalLateFees        string `parquet:"name=total_late_fees, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalRefinanceFees   string `parquet:"name=total_refinance_fees, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalExtensionFees   string `parquet:"name=total_extension_fees, type=BYTE_ARRAY, convertedtype=UTF8"`
	TotalDiscounts       string `parquet:"name=total_discounts, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExtensionCount       int64  `parquet:"name=extension_count, type=INT64"`
	RefinanceCount       int64  `parquet:"name=refinance_count, type=INT64"`
}

func toRow(loan *lending.Loan) LoanRow {
	lender := ""
	if loan.HasLender() {
		lender = loan.Lender.String()
	}
	return LoanRow{
		LoanID:               int64(loan.ID),
		Borrower:             loan.Borrower.String(),
		Lender:               lender,
		Status:               loan.Status.String(),
		Amount:               loan.Amount.String(),
		Collateral:           loan.Collateral.String(),
		InterestRateBps:      int64(loan.InterestRate),
		BaseRateBps:          int64(loan.BaseInterestRate),
		RiskMultiplier:       int64(loan.RiskMultiplier),
		RateType:             loan.RateType.String(),
		InterestType:         loan.InterestType.String(),
		PaymentStructure:     loan.PaymentStructure.String(),
		CreatedAt:            int64(loan.CreatedAt),
		FundedAt:             int64(loan.FundedAt),
		DueDate:              int64(loan.DueDate),
		PrincipalOutstanding: loan.PrincipalOutstanding.String(),
		InterestOutstanding:  loan.InterestOutstanding.String(),
		FeesOutstanding:      loan.FeesOutstanding.String(),
		RemainingBalance:     loan.RemainingBalance.String(),
		TotalPaid:            loan.TotalPaid.String(),
		TotalInterestAccrued: loan.TotalInterestAccrued.String(),
		TotalLateFees:        loan.TotalLateFees.String(),
		TotalRefinanceFees:   loan.TotalRefinanceFees.String(),
		TotalExtensionFees:   loan.TotalExtensionFees.String(),
		TotalDiscounts:       loan.TotalDiscounts.String(),
		ExtensionCount:       int64(loan.ExtensionCount),
		RefinanceCount:       int64(loan.RefinanceCount),
	}
}

func (r LoanRow) record() []string {
	i := func(v int64) string { return strconv.FormatInt(v, 10) }
	return []string{
		i(r.LoanID), r.Borrower, r.Lender, r.Status, r.Amount, r.Collateral, i(r.InterestRateBps), i(r.BaseRateBps),
		i(r.RiskMultiplier), r.RateType, r.InterestType, r.PaymentStructure, i(r.CreatedAt), i(r.FundedAt), i(r.DueDate),
		r.PrincipalOutstanding, r.InterestOutstanding, r.FeesOutstanding, r.RemainingBalance, r.TotalPaid,
		r.TotalInterestAccrued, r.TotalLateFees, r.TotalRefinanceFees, r.TotalExtensionFees, r.TotalDiscounts,
		i(r.ExtensionCount), i(r.RefinanceCount),
	}
}

// WriteLoansCSV writes one row per loan.
func WriteLoansCSV(w io.Writer, loans []*lending.Loan) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(loanHeader); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, loan := range loans {
		if loan == nil {
			continue
		}
		if err := cw.Write(toRow(loan).record()); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

// WriteLoansParquet writes the loans to a snappy compressed parquet file.
func WriteLoansParquet(path string, loans []*lending.Loan) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(LoanRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, loan := range loans {
		if loan == nil {
			continue
		}
		row := toRow(loan)
		if err := pw.Write(&row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("export: close parquet file: %w", err)
	}
	return nil
}

// WriteEventsCSV writes archived events with their attributes as JSON.
func WriteEventsCSV(w io.Writer, records []archive.EventRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"seq", "type", "loan_id", "block", "actor", "attributes", "recorded_at"}); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatUint(rec.Seq, 10),
			rec.Type,
			strconv.FormatUint(rec.LoanID, 10),
			strconv.FormatUint(rec.Block, 10),
			rec.Actor,
			rec.Attributes,
			rec.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}
