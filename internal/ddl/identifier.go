package ddl

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRe allows alphanumeric + underscores, starting with a letter or underscore.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// referenceRe matches branch and tag names: alphanumeric, hyphen, underscore, dot
// and forward slash. Double quotes are excluded because references are always
// emitted as quoted identifiers.
var referenceRe = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)

// bucketRe matches object-storage bucket / container names (GCS, S3, Azure).
var bucketRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*[a-z0-9]$`)

// columnTypeRe matches simple SQL type names, optionally with precision/scale parameters.
// Accepted forms:
//
//	WORD                         → INT, VARCHAR, DOUBLE, etc.
//	WORD WORD                    → DOUBLE PRECISION, TIMESTAMP WITH TIME ZONE
//	WORD(digits)                 → VARCHAR(255)
//	WORD(digits, digits)         → DECIMAL(10,2)
//	WORD[]                       → INT[]
//
// Case-insensitive.
var columnTypeRe = regexp.MustCompile(`(?i)^[A-Z][A-Z0-9_ ]*(?:\(\s*\d+\s*(?:,\s*\d+\s*)?\))?(?:\[\])?$`)

const (
	maxIdentifierLen = 128
	maxReferenceLen  = 255
	maxBucketLen     = 222
	maxColumnTypeLen = 64
)

// ValidateIdentifier checks that name is a safe SQL identifier:
//   - Non-empty
//   - At most 128 characters
//   - Matches [a-zA-Z_][a-zA-Z0-9_]*
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	return nil
}

// ValidateReference checks that name is usable as a branch or tag name.
func ValidateReference(name string) error {
	if name == "" {
		return fmt.Errorf("reference name is required")
	}
	if len(name) > maxReferenceLen {
		return fmt.Errorf("reference name must be at most %d characters", maxReferenceLen)
	}
	if !referenceRe.MatchString(name) {
		return fmt.Errorf("reference name %q contains invalid characters", name)
	}
	return nil
}

// ValidateBucket checks that name is a plausible bucket or container name.
func ValidateBucket(name string) error {
	if name == "" {
		return fmt.Errorf("bucket name is required")
	}
	if len(name) > maxBucketLen {
		return fmt.Errorf("bucket name must be at most %d characters", maxBucketLen)
	}
	if !bucketRe.MatchString(name) {
		return fmt.Errorf("bucket name %q contains invalid characters", name)
	}
	return nil
}

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double-quote characters by doubling them (standard SQL).
//
// Always quotes; callers validate first when needed.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral wraps a string value in single quotes, escaping any
// embedded single-quote characters by doubling them (standard SQL).
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// ValidateColumnType checks that typeName is a safe column type:
//   - Non-empty
//   - At most 64 characters
//   - Matches the allowed type pattern
//   - Does not contain semicolons, comments or quotes
func ValidateColumnType(typeName string) error {
	if typeName == "" {
		return fmt.Errorf("column type is required")
	}
	if len(typeName) > maxColumnTypeLen {
		return fmt.Errorf("column type must be at most %d characters", maxColumnTypeLen)
	}
	if strings.ContainsAny(typeName, ";-'\"\\") {
		return fmt.Errorf("column type contains invalid characters")
	}
	if !columnTypeRe.MatchString(typeName) {
		return fmt.Errorf("column type %q is not a recognized type pattern", typeName)
	}
	return nil
}
