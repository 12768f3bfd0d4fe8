// Package sqlchunk renders datasets as literal-row SQL split into chunks
// whose size shrinks as the column count grows.
package sqlchunk

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"ocelbridge/pkg/models"
)

const (
	rowSeparator   = "\n\nUNION ALL\n\n"
	timestampFmt   = "2006-01-02 15:04:05"
	rowFooter      = "FROM (SELECT 1) AS dummy\nWHERE 1=1"
	defaultMaxRows = 1000
)

// RowsPerChunk returns the maximum number of rows per chunk for a dataset
// with the given number of columns.
func RowsPerChunk(columns int) int {
	switch {
	case columns <= 2:
		return defaultMaxRows
	case columns == 3:
		return 500
	case columns == 4:
		return 250
	case columns == 5:
		return 125
	case columns == 6:
		return 60
	case columns == 7:
		return 30
	default:
		return 20
	}
}

// Encode splits ds into chunks. An empty dataset yields no chunks. Each chunk
// carries the column list so callers never have to parse the SQL.
func Encode(ds *models.Dataset) []models.SQLChunk {
	if ds == nil || len(ds.Rows) == 0 {
		return nil
	}
	columns := ds.ColumnNames()
	size := RowsPerChunk(len(columns))

	chunks := make([]models.SQLChunk, 0, (len(ds.Rows)+size-1)/size)
	for start := 0; start < len(ds.Rows); start += size {
		end := start + size
		if end > len(ds.Rows) {
			end = len(ds.Rows)
		}
		stmts := make([]string, 0, end-start)
		for _, row := range ds.Rows[start:end] {
			stmts = append(stmts, Row(columns, row))
		}
		chunks = append(chunks, models.SQLChunk{
			Dataset: ds.Name,
			Index:   len(chunks),
			Columns: columns,
			SQL:     strings.Join(stmts, rowSeparator),
			Rows:    end - start,
		})
	}
	return chunks
}

// Row renders one literal-row SELECT.
func Row(columns []string, row []any) string {
	var b strings.Builder
	b.WriteString("SELECT\n")
	for i, col := range columns {
		var v any
		if i < len(row) {
			v = row[i]
		}
		b.WriteString("\t")
		b.WriteString(Literal(v))
		b.WriteString(" AS ")
		b.WriteString(quoteIdent(col))
		if i < len(columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(rowFooter)
	return b.String()
}

// Literal renders a single value as a SQL literal.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		if val.IsZero() {
			return "NULL"
		}
		return "TIMESTAMP '" + val.UTC().Format(timestampFmt) + "'"
	case *time.Time:
		if val == nil {
			return "NULL"
		}
		return Literal(*val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return quoteString(val)
	case fmt.Stringer:
		return quoteString(val.String())
	default:
		return quoteString(fmt.Sprint(val))
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "NULL"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
