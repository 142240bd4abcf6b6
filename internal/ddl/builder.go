// Package ddl builds the catalog statements for branch, table, and merge operations.
package ddl

import (
	"fmt"
	"net/url"
	"strings"

	"lake-wap/internal/domain"
)

// CreateBranch returns: CREATE BRANCH "<branch>" IN <catalog> FROM "<source>".
func CreateBranch(catalog, branch, source string) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateReference(branch); err != nil {
		return "", fmt.Errorf("invalid branch name: %w", err)
	}
	if err := ValidateReference(source); err != nil {
		return "", fmt.Errorf("invalid source reference: %w", err)
	}
	return fmt.Sprintf("CREATE BRANCH %s IN %s FROM %s",
		QuoteIdentifier(branch), catalog, QuoteIdentifier(source)), nil
}

// DropBranch returns: DROP BRANCH "<branch>" IN <catalog>.
func DropBranch(catalog, branch string) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateReference(branch); err != nil {
		return "", fmt.Errorf("invalid branch name: %w", err)
	}
	return fmt.Sprintf("DROP BRANCH %s IN %s", QuoteIdentifier(branch), catalog), nil
}

// UseReference returns: USE REFERENCE "<branch>" IN <catalog>.
// The reference stays selected for the rest of the session it runs on.
func UseReference(catalog, branch string) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateReference(branch); err != nil {
		return "", fmt.Errorf("invalid branch name: %w", err)
	}
	return fmt.Sprintf("USE REFERENCE %s IN %s", QuoteIdentifier(branch), catalog), nil
}

// MergeBranch returns: MERGE BRANCH "<branch>" INTO "<target>" IN <catalog>.
func MergeBranch(catalog, branch, target string) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateReference(branch); err != nil {
		return "", fmt.Errorf("invalid branch name: %w", err)
	}
	if err := ValidateReference(target); err != nil {
		return "", fmt.Errorf("invalid target reference: %w", err)
	}
	if branch == target {
		return "", fmt.Errorf("cannot merge reference %q into itself", branch)
	}
	return fmt.Sprintf("MERGE BRANCH %s INTO %s IN %s",
		QuoteIdentifier(branch), QuoteIdentifier(target), catalog), nil
}

// CreateTableWithLocation returns a typed, location-backed table definition:
//
//	CREATE TABLE IF NOT EXISTS <catalog>.<dataset> (<col> <type>, ...) LOCATION '<uri>'
func CreateTableWithLocation(catalog, dataset string, columns []domain.ColumnDef, location string) (string, error) {
	if err := validateTableName(catalog, dataset); err != nil {
		return "", err
	}
	if err := validateColumns(columns); err != nil {
		return "", err
	}
	if err := validateLocation(location); err != nil {
		return "", err
	}

	colDefs := make([]string, 0, len(columns))
	for _, c := range columns {
		colDefs = append(colDefs, c.Name+" "+c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s) LOCATION %s",
		catalog, dataset, strings.Join(colDefs, ", "), QuoteLiteral(location)), nil
}

// CreateTableAsProjection returns a typed table built from a CAST projection over
// the staged parquet files:
//
//	CREATE TABLE IF NOT EXISTS <catalog>.<dataset> AS SELECT CAST(a AS INT) as a, ...
//	FROM TABLE(<source>."<bucket>"."<folder>"...(type=>'parquet'))
//
// folder is the slash-separated key prefix of the staged files; each segment
// becomes a quoted path element.
func CreateTableAsProjection(catalog, dataset, source, bucket, folder string, columns []domain.ColumnDef) (string, error) {
	if err := validateTableName(catalog, dataset); err != nil {
		return "", err
	}
	if err := validateColumns(columns); err != nil {
		return "", err
	}
	from, err := stagedTable(source, bucket, folder)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s AS SELECT %s FROM %s",
		catalog, dataset, CastList(columns), from), nil
}

// CreateTableInferred returns a table whose schema the engine infers from the
// staged files:
//
//	CREATE TABLE IF NOT EXISTS <catalog>.<dataset> AS SELECT * FROM TABLE(...)
func CreateTableInferred(catalog, dataset, source, bucket, folder string) (string, error) {
	if err := validateTableName(catalog, dataset); err != nil {
		return "", err
	}
	from, err := stagedTable(source, bucket, folder)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s AS SELECT * FROM %s",
		catalog, dataset, from), nil
}

// RefreshMetadata returns: ALTER TABLE <catalog>.<dataset> REFRESH METADATA.
func RefreshMetadata(catalog, dataset string) (string, error) {
	if err := validateTableName(catalog, dataset); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s.%s REFRESH METADATA", catalog, dataset), nil
}

// stagedTable renders the table function reading a staged parquet folder.
func stagedTable(source, bucket, folder string) (string, error) {
	if err := ValidateIdentifier(source); err != nil {
		return "", fmt.Errorf("invalid source name: %w", err)
	}
	if err := ValidateBucket(bucket); err != nil {
		return "", fmt.Errorf("invalid bucket: %w", err)
	}
	segments, err := folderSegments(folder)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(segments)+2)
	parts = append(parts, source, QuoteIdentifier(bucket))
	for _, seg := range segments {
		parts = append(parts, QuoteIdentifier(seg))
	}
	return fmt.Sprintf("TABLE(%s(type=>'parquet'))", strings.Join(parts, ".")), nil
}

// folderSegments splits a key prefix such as lake/clima into its path elements.
func folderSegments(folder string) ([]string, error) {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return nil, fmt.Errorf("invalid staged folder: folder is required")
	}
	segments := strings.Split(folder, "/")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return nil, fmt.Errorf("invalid staged folder %q: bad path element %q", folder, seg)
		}
	}
	return segments, nil
}

func validateTableName(catalog, dataset string) error {
	if err := ValidateIdentifier(catalog); err != nil {
		return fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateIdentifier(dataset); err != nil {
		return fmt.Errorf("invalid dataset name: %w", err)
	}
	return nil
}

func validateColumns(columns []domain.ColumnDef) error {
	if len(columns) == 0 {
		return fmt.Errorf("at least one column is required")
	}
	for _, c := range columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return fmt.Errorf("invalid column name %q: %w", c.Name, err)
		}
		if err := ValidateColumnType(c.Type); err != nil {
			return fmt.Errorf("invalid column type for %q: %w", c.Name, err)
		}
	}
	return nil
}

func validateLocation(location string) error {
	if location == "" {
		return fmt.Errorf("location is required")
	}
	u, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("invalid location %q: %w", location, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("location %q must be a URI like gs://bucket/prefix", location)
	}
	return nil
}
