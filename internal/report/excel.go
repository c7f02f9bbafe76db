package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"ispledger/internal/core"
	"ispledger/internal/store"
)

// BillingSheetName is the worksheet written by WriteBillingSheet.
const BillingSheetName = "Clients"

var billingColumns = []string{"Client ID", "Name", "Username", "Area", "Type", "Contact", "Payable", "Paid", "Status"}

// Header aliases accepted by ParseClientSheet, first match wins.
var (
	colName     = []string{"Name", "Client Name", "name"}
	colUsername = []string{"Username", "User ID", "username"}
	colFee      = []string{"Fee", "Monthly Fee", "Bill"}
	colContact  = []string{"Contact", "Phone", "Mobile"}
	colAddress  = []string{"Address", "Full Address"}
	colArea     = []string{"Area", "Zone"}
	colLineType = []string{"Line Type"}
	colPackage  = []string{"Package"}
	colType     = []string{"Type"}
)

// ParseClientSheet reads client rows from the first worksheet of an xlsx
// file. The first row holds the headers. Rows are returned as-is; the
// store decides which ones to skip.
func ParseClientSheet(r io.Reader) ([]store.ClientInput, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", core.ErrValidation)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows from sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if _, dup := header[h]; !dup && h != "" {
			header[h] = i
		}
	}
	cell := func(row []string, names []string) string {
		for _, n := range names {
			if i, ok := header[n]; ok && i < len(row) {
				if v := strings.TrimSpace(row[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	out := make([]store.ClientInput, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		fee, err := core.ParseMoney(cell(row, colFee))
		if err != nil {
			fee = core.Zero
		}
		out = append(out, store.ClientInput{
			Name:             cell(row, colName),
			Username:         cell(row, colUsername),
			ContactNumber:    cell(row, colContact),
			FullAddress:      cell(row, colAddress),
			Area:             cell(row, colArea),
			LineType:         cell(row, colLineType),
			BandwidthPackage: cell(row, colPackage),
			ClientType:       cell(row, colType),
			BaseMonthlyFee:   fee,
		})
	}
	return out, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// WriteBillingSheet writes records as an xlsx workbook to w.
func WriteBillingSheet(w io.Writer, records []core.MonthlyRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), BillingSheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	header := make([]any, len(billingColumns))
	for i, c := range billingColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(BillingSheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(billingColumns), 1)
	if err := f.SetCellStyle(BillingSheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, r := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			r.DisplayClientID,
			r.ClientName,
			r.Username,
			r.Area,
			r.ClientType,
			r.Contact,
			r.PayableAmount.Float64(),
			r.PaidAmount.Float64(),
			string(r.Status),
		}
		if err := f.SetSheetRow(BillingSheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(BillingSheetName, "A", "I", 16); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
