package ddl

import (
	"fmt"
	"strings"

	"lake-wap/internal/domain"
)

// ParseColumns parses a schema string such as "a INT, b VARCHAR, c DECIMAL(10,2)"
// into ordered column definitions.
//
// Entries are separated by commas outside parentheses. An entry with fewer than
// two whitespace-separated tokens is dropped. The first token is the column name
// and the remaining tokens form the type. An empty schema returns nil, which
// callers treat as "infer the schema".
func ParseColumns(schema string) ([]domain.ColumnDef, error) {
	if strings.TrimSpace(schema) == "" {
		return nil, nil
	}

	cols := []domain.ColumnDef{}
	seen := make(map[string]bool)
	for _, entry := range splitTopLevel(schema) {
		fields := strings.Fields(entry)
		if len(fields) < 2 {
			continue
		}
		col := domain.ColumnDef{Name: fields[0], Type: strings.Join(fields[1:], " ")}
		if err := ValidateIdentifier(col.Name); err != nil {
			return nil, domain.ErrValidation("invalid column name %q: %v", col.Name, err)
		}
		if err := ValidateColumnType(col.Type); err != nil {
			return nil, domain.ErrValidation("invalid column type for %q: %v", col.Name, err)
		}
		key := strings.ToLower(col.Name)
		if seen[key] {
			return nil, domain.ErrValidation("duplicate column %q", col.Name)
		}
		seen[key] = true
		cols = append(cols, col)
	}

	if len(cols) == 0 {
		return nil, domain.ErrValidation("schema %q has no column with both a name and a type", schema)
	}
	return cols, nil
}

// CastList renders "CAST(a AS INT) as a, CAST(b AS VARCHAR) as b" in column order.
func CastList(columns []domain.ColumnDef) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, fmt.Sprintf("CAST(%s AS %s) as %s", c.Name, c.Type, c.Name))
	}
	return strings.Join(parts, ", ")
}

// FormatColumns renders columns back into schema-string form.
func FormatColumns(columns []domain.ColumnDef) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, c.Name+" "+c.Type)
	}
	return strings.Join(parts, ", ")
}

// splitTopLevel splits s on commas that are not nested inside parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
