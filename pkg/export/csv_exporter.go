package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Separator is the field separator of the tabular text export.
const Separator = ','

const quote = '"'

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Records flattens rows into header order.
func (d Dataset) Records() [][]string {
	records := make([][]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		record := make([]string, len(d.Headers))
		for i, header := range d.Headers {
			record[i] = row[header]
		}
		records = append(records, record)
	}
	return records
}

// ErrMalformedField is returned when a quoted field cannot be decoded.
var ErrMalformedField = errors.New("malformed csv field")

// NeedsQuoting reports whether a field contains the separator, a quote or a line break.
func NeedsQuoting(field string) bool {
	return strings.ContainsAny(field, string([]rune{Separator, quote, '\n', '\r'}))
}

// EscapeField wraps the field in quotes and doubles inner quotes when NeedsQuoting is true;
// other fields are returned unchanged.
func EscapeField(field string) string {
	if !NeedsQuoting(field) {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

// UnescapeField is the inverse of EscapeField.
func UnescapeField(field string) (string, error) {
	if len(field) == 0 || field[0] != quote {
		if NeedsQuoting(field) {
			return "", fmt.Errorf("%w: unquoted field contains special characters", ErrMalformedField)
		}
		return field, nil
	}
	if len(field) < 2 || field[len(field)-1] != quote {
		return "", fmt.Errorf("%w: missing closing quote", ErrMalformedField)
	}
	inner := field[1 : len(field)-1]
	var b strings.Builder
	b.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		if inner[i] == quote {
			if i+1 >= len(inner) || inner[i+1] != quote {
				return "", fmt.Errorf("%w: stray quote at offset %d", ErrMalformedField, i+1)
			}
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String(), nil
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV bytes: the header row first, then one line per row in header order.
// Records end with "\n".
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writeRecord(buf, data.Headers)
	for _, record := range data.Records() {
		writeRecord(buf, record)
	}
	return buf.Bytes(), nil
}

func writeRecord(buf *bytes.Buffer, record []string) {
	for i, field := range record {
		if i > 0 {
			buf.WriteByte(Separator)
		}
		buf.WriteString(EscapeField(field))
	}
	buf.WriteByte('\n')
}

// ParseCSV decodes bytes produced by Render back into records, header row included.
// Quoted fields may span lines; a trailing newline does not produce an empty record.
func ParseCSV(data []byte) ([][]string, error) {
	var (
		records  [][]string
		record   []string
		field    strings.Builder
		inQuotes bool
		quoted   bool
		line     = 1
	)
	endField := func() {
		record = append(record, field.String())
		field.Reset()
		quoted = false
	}
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inQuotes {
			if c == quote {
				if i+1 < len(data) && data[i+1] == quote {
					field.WriteByte(quote)
					i++
					continue
				}
				inQuotes = false
				continue
			}
			if c == '\n' {
				line++
			}
			field.WriteByte(c)
			continue
		}
		switch c {
		case quote:
			if field.Len() > 0 || quoted {
				return nil, fmt.Errorf("%w: bare quote on line %d", ErrMalformedField, line)
			}
			inQuotes = true
			quoted = true
		case Separator:
			endField()
		case '\n':
			endField()
			records = append(records, record)
			record = nil
			line++
		default:
			if quoted {
				return nil, fmt.Errorf("%w: text after closing quote on line %d", ErrMalformedField, line)
			}
			field.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("%w: unterminated quoted field on line %d", ErrMalformedField, line)
	}
	if field.Len() > 0 || quoted || len(record) > 0 {
		endField()
		records = append(records, record)
	}
	return records, nil
}
