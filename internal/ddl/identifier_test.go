package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "catalog", input: "nessie_catalog"},
		{name: "dataset", input: "clima_pluviometria"},
		{name: "underscore_prefix", input: "_staging"},
		{name: "max_length", input: strings.Repeat("d", 128)},

		{name: "empty", input: "", wantErr: "name is required"},
		{name: "too_long", input: strings.Repeat("d", 129), wantErr: "at most 128 characters"},
		{name: "starts_with_digit", input: "1746_reclamacoes", wantErr: "must match"},
		{name: "contains_hyphen", input: "viagens-onibus", wantErr: "must match"},
		{name: "contains_dot", input: "nessie_catalog.clima", wantErr: "must match"},
		{name: "sql_injection", input: "clima; DROP TABLE", wantErr: "must match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReference(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "main", input: "main"},
		{name: "dated", input: "dev_20250101"},
		{name: "hyphen_dot_slash", input: "etl/run-1.2"},
		{name: "empty", input: "", wantErr: true},
		{name: "double_quote", input: `dev"x`, wantErr: true},
		{name: "space", input: "dev x", wantErr: true},
		{name: "semicolon", input: "dev;x", wantErr: true},
		{name: "too_long", input: strings.Repeat("b", 256), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReference(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateBucket(t *testing.T) {
	assert.NoError(t, ValidateBucket("mvp-bronze"))
	assert.NoError(t, ValidateBucket("bucket.with.dots"))
	assert.Error(t, ValidateBucket(""))
	assert.Error(t, ValidateBucket("Upper"))
	assert.Error(t, ValidateBucket("-leading"))
	assert.Error(t, ValidateBucket(`b"q`))
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"dev_20250101"`, QuoteIdentifier("dev_20250101"))
	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
	assert.Equal(t, `""`, QuoteIdentifier(""))
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'gs://bucket/clima'", QuoteLiteral("gs://bucket/clima"))
	assert.Equal(t, "'it''s'", QuoteLiteral("it's"))
	assert.Equal(t, "''", QuoteLiteral(""))
}

func TestValidateColumnType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "int", input: "INT"},
		{name: "varchar", input: "VARCHAR"},
		{name: "lowercase", input: "double"},
		{name: "date", input: "DATE"},
		{name: "varchar_with_length", input: "VARCHAR(255)"},
		{name: "decimal_precision_scale", input: "DECIMAL(10,2)"},
		{name: "decimal_spaced", input: "DECIMAL(10, 2)"},
		{name: "array", input: "INT[]"},
		{name: "timestamp_with_tz", input: "TIMESTAMP WITH TIME ZONE"},

		{name: "empty", input: "", wantErr: "column type is required"},
		{name: "too_long", input: strings.Repeat("A", 65), wantErr: "at most 64 characters"},
		{name: "semicolon_injection", input: "INT); DROP TABLE foo; --", wantErr: "invalid characters"},
		{name: "quote_injection", input: "VARCHAR'; --", wantErr: "invalid characters"},
		{name: "starts_with_digit", input: "123", wantErr: "not a recognized type"},
		{name: "nested_parens", input: "DECIMAL((10))", wantErr: "not a recognized type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateColumnType(tt.input)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
