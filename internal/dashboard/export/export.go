// Package export writes tabular dashboard data as CSV or as an Excel 2003
// XML workbook.
package export

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout formats time cells in both formats.
const TimeLayout = "2006-01-02 15:04:05"

type Table struct {
	Headers []string
	Rows    [][]interface{}
}

// Column projects one field of T into a table cell.
type Column[T any] struct {
	Header string
	Value  func(T) interface{}
}

func FromRows[T any](cols []Column[T], rows []T) Table {
	t := Table{Headers: make([]string, len(cols)), Rows: make([][]interface{}, 0, len(rows))}
	for i, c := range cols {
		t.Headers[i] = c.Header
	}
	for _, r := range rows {
		cells := make([]interface{}, len(cols))
		for i, c := range cols {
			cells[i] = c.Value(r)
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// WriteCSV writes the header line and one line per row. A value is quoted
// only when it holds a comma, quote, CR or LF; embedded quotes are doubled.
func WriteCSV(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	writeLine := func(cells []string) {
		for i, c := range cells {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(csvField(c))
		}
		bw.WriteByte('\n')
	}

	writeLine(t.Headers)
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = text(v)
		}
		writeLine(cells)
	}
	return bw.Flush()
}

func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

const workbookHeader = `<?xml version="1.0" encoding="UTF-8"?>
<?mso-application progid="Excel.Sheet"?>
<Workbook xmlns="urn:schemas-microsoft-com:office:spreadsheet"
 xmlns:o="urn:schemas-microsoft-com:office:office"
 xmlns:x="urn:schemas-microsoft-com:office:excel"
 xmlns:ss="urn:schemas-microsoft-com:office:spreadsheet"
 xmlns:html="http://www.w3.org/TR/REC-html40">
 <Styles>
  <Style ss:ID="header"><Font ss:Bold="1"/></Style>
 </Styles>
`

// WriteExcelXML writes a SpreadsheetML 2003 workbook with one worksheet.
// The header row is bold; numeric cells are typed Number, the rest String.
func WriteExcelXML(w io.Writer, sheet string, t Table) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(workbookHeader)
	fmt.Fprintf(bw, " <Worksheet ss:Name=\"%s\">\n  <Table>\n", escape(sheetName(sheet)))

	bw.WriteString("   <Row>")
	for _, h := range t.Headers {
		fmt.Fprintf(bw, `<Cell ss:StyleID="header"><Data ss:Type="String">%s</Data></Cell>`, escape(h))
	}
	bw.WriteString("</Row>\n")

	for _, row := range t.Rows {
		bw.WriteString("   <Row>")
		for _, v := range row {
			kind := "String"
			if numeric(v) {
				kind = "Number"
			}
			fmt.Fprintf(bw, `<Cell><Data ss:Type="%s">%s</Data></Cell>`, kind, escape(text(v)))
		}
		bw.WriteString("</Row>\n")
	}

	bw.WriteString("  </Table>\n </Worksheet>\n</Workbook>\n")
	return bw.Flush()
}

func numeric(v interface{}) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, decimal.Decimal:
		return true
	case *decimal.Decimal:
		return n != nil
	}
	return false
}

func text(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *string:
		if x == nil {
			return ""
		}
		return *x
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format(TimeLayout)
	case *time.Time:
		if x == nil || x.IsZero() {
			return ""
		}
		return x.Format(TimeLayout)
	case decimal.Decimal:
		return x.String()
	case *decimal.Decimal:
		if x == nil {
			return ""
		}
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		if x {
			return "Yes"
		}
		return "No"
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// sheetName applies Excel's worksheet name limits.
func sheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return "Sheet1"
	}
	if r := []rune(s); len(r) > 31 {
		s = string(r[:31])
	}
	return s
}
