package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txn struct {
	Receipt string
	Phone   string
	Amount  decimal.Decimal
	Note    string
	At      time.Time
}

var columns = []Column[txn]{
	{Header: "Receipt", Value: func(t txn) interface{} { return t.Receipt }},
	{Header: "Phone", Value: func(t txn) interface{} { return t.Phone }},
	{Header: "Amount", Value: func(t txn) interface{} { return t.Amount }},
	{Header: "Note", Value: func(t txn) interface{} { return t.Note }},
	{Header: "Date", Value: func(t txn) interface{} { return t.At }},
}

func rows() []txn {
	at := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	return []txn{
		{Receipt: "SBK1ABC2DE", Phone: "254712345678", Amount: decimal.RequireFromString("50.00"), Note: "daily, evening", At: at},
		{Receipt: "SBK9XYZ", Phone: "254798765432", Amount: decimal.NewFromInt(200), Note: `said "thanks"`, At: at},
		{Receipt: "", Phone: "254700000000", Amount: decimal.Zero, Note: " padded", At: time.Time{}},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, FromRows(columns, rows())))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Receipt,Phone,Amount,Note,Date", lines[0])
	assert.Equal(t, `SBK1ABC2DE,254712345678,50,"daily, evening",2026-03-04 10:30:00`, lines[1])
	assert.Equal(t, `SBK9XYZ,254798765432,200,"said ""thanks""",2026-03-04 10:30:00`, lines[2])
	assert.Equal(t, `,254700000000,0, padded,`, lines[3])
}

func TestCSVQuotesLineBreaks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Table{Headers: []string{"subject"}, Rows: [][]interface{}{{"line one\r\nline two"}}}))
	assert.Equal(t, "subject\n\"line one\r\nline two\"\n", buf.String())
}

func TestWriteExcelXML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExcelXML(&buf, "Transactions: March", FromRows(columns, rows()[:2])))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<?mso-application progid="Excel.Sheet"?>`)
	assert.Contains(t, out, `<Style ss:ID="header"><Font ss:Bold="1"/></Style>`)
	assert.Contains(t, out, `<Worksheet ss:Name="Transactions- March">`)
	assert.Contains(t, out, `<Cell ss:StyleID="header"><Data ss:Type="String">Receipt</Data></Cell>`)
	assert.Contains(t, out, `<Data ss:Type="Number">50</Data>`)
	assert.Contains(t, out, `<Data ss:Type="String">254712345678</Data>`)
	assert.Contains(t, out, `<Data ss:Type="String">said &#34;thanks&#34;</Data>`)
	assert.Equal(t, 3, strings.Count(out, "<Row>"))
}

func TestCellText(t *testing.T) {
	var missing *decimal.Decimal
	assert.Equal(t, "", text(missing))
	assert.False(t, numeric(missing))
	assert.Equal(t, "Yes", text(true))
	assert.Equal(t, "1.5", text(1.5))
	assert.True(t, numeric(int64(3)))
	assert.False(t, numeric("3"))
	assert.Equal(t, "Sheet1", sheetName("  "))
	assert.Len(t, []rune(sheetName(strings.Repeat("x", 40))), 31)
}
