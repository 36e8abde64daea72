// Package mpesa reads M-Pesa paybill statement exports into raw payment rows.
package mpesa

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the format of the "Transaction Date" column.
const TimestampLayout = "2006-01-02 15:04:05"

const (
	columnDate    = "transaction date"
	columnAmount  = "amount"
	columnReceipt = "mpesa receipt no"
	columnAccount = "account"
)

var aliases = map[string]string{
	"transaction date": columnDate,
	"completion time":  columnDate,
	"amount":           columnAmount,
	"paid in":          columnAmount,
	"mpesa receipt no": columnReceipt,
	"receipt no":       columnReceipt,
	"receipt no.":      columnReceipt,
	"account":          columnAccount,
	"account no":       columnAccount,
	"bill ref number":  columnAccount,
}

// ErrMissingColumns is returned when the header lacks a required column.
var ErrMissingColumns = errors.New("statement is missing required columns")

// Row is one paybill credit as exported by the statement.
type Row struct {
	Line            int
	TransactionCode string
	AdmissionNumber string
	Amount          decimal.Decimal
	TransactionDate time.Time
}

// RowError describes a line that could not be parsed.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Parse reads the statement. Malformed lines are reported and skipped; a bad
// header or an unreadable stream fails the whole parse.
func Parse(r io.Reader, loc *time.Location) ([]Row, []RowError, error) {
	if loc == nil {
		loc = time.UTC
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrMissingColumns
		}
		return nil, nil, fmt.Errorf("read statement header: %w", err)
	}
	index, err := columnIndex(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		rows    []Row
		invalid []RowError
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				invalid = append(invalid, RowError{Line: parseErr.Line, Reason: parseErr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read statement: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if blank(record) {
			continue
		}
		row, rowErr := parseRecord(record, index, loc)
		if rowErr != "" {
			invalid = append(invalid, RowError{Line: line, Reason: rowErr})
			continue
		}
		row.Line = line
		rows = append(rows, row)
	}
	return rows, invalid, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, 4)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if canonical, ok := aliases[key]; ok {
			if _, seen := index[canonical]; !seen {
				index[canonical] = i
			}
		}
	}
	var missing []string
	for _, col := range []string{columnDate, columnAmount, columnReceipt, columnAccount} {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRecord(record []string, index map[string]int, loc *time.Location) (Row, string) {
	field := func(col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	code := field(columnReceipt)
	if code == "" {
		return Row{}, "receipt number is empty"
	}
	account := strings.ToUpper(field(columnAccount))
	if account == "" {
		return Row{}, "account is empty"
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(field(columnAmount), ",", ""))
	if err != nil {
		return Row{}, fmt.Sprintf("invalid amount %q", field(columnAmount))
	}
	ts, err := time.ParseInLocation(TimestampLayout, field(columnDate), loc)
	if err != nil {
		return Row{}, fmt.Sprintf("invalid transaction date %q", field(columnDate))
	}
	return Row{
		TransactionCode: code,
		AdmissionNumber: account,
		Amount:          amount,
		TransactionDate: ts.UTC(),
	}, ""
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
