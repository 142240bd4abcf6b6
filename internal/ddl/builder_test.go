package ddl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lake-wap/internal/domain"
)

func TestCreateBranch(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		branch  string
		source  string
		want    string
		wantErr string
	}{
		{
			name:    "valid",
			catalog: "nessie_catalog",
			branch:  "dev_20250101",
			source:  "main",
			want:    `CREATE BRANCH "dev_20250101" IN nessie_catalog FROM "main"`,
		},
		{
			name:    "slash_branch",
			catalog: "nessie_catalog",
			branch:  "etl/dev_20250101",
			source:  "main",
			want:    `CREATE BRANCH "etl/dev_20250101" IN nessie_catalog FROM "main"`,
		},
		{
			name:    "invalid_catalog",
			catalog: "nessie-catalog",
			branch:  "dev_x",
			source:  "main",
			wantErr: "invalid catalog name",
		},
		{
			name:    "quote_in_branch",
			catalog: "nessie_catalog",
			branch:  `dev"; DROP`,
			source:  "main",
			wantErr: "invalid branch name",
		},
		{
			name:    "empty_source",
			catalog: "nessie_catalog",
			branch:  "dev_x",
			source:  "",
			wantErr: "invalid source reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateBranch(tt.catalog, tt.branch, tt.source)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUseReference(t *testing.T) {
	got, err := UseReference("nessie_catalog", "dev_20250101")
	require.NoError(t, err)
	assert.Equal(t, `USE REFERENCE "dev_20250101" IN nessie_catalog`, got)

	_, err = UseReference("nessie_catalog", "")
	require.Error(t, err)
}

func TestMergeBranch(t *testing.T) {
	got, err := MergeBranch("nessie_catalog", "dev_20250101", "main")
	require.NoError(t, err)
	assert.Equal(t, `MERGE BRANCH "dev_20250101" INTO "main" IN nessie_catalog`, got)

	_, err = MergeBranch("nessie_catalog", "main", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "into itself")
}

func TestDropBranch(t *testing.T) {
	got, err := DropBranch("nessie_catalog", "dev_20250101")
	require.NoError(t, err)
	assert.Equal(t, `DROP BRANCH "dev_20250101" IN nessie_catalog`, got)
}

func TestCreateTableWithLocation(t *testing.T) {
	cols := []domain.ColumnDef{{Name: "a", Type: "INT"}, {Name: "b", Type: "VARCHAR"}}

	tests := []struct {
		name     string
		dataset  string
		columns  []domain.ColumnDef
		location string
		want     string
		wantErr  string
	}{
		{
			name:     "valid",
			dataset:  "clima",
			columns:  cols,
			location: "gs://bucket/clima",
			want:     `CREATE TABLE IF NOT EXISTS nessie_catalog.clima (a INT, b VARCHAR) LOCATION 'gs://bucket/clima'`,
		},
		{
			name:     "no_columns",
			dataset:  "clima",
			location: "gs://bucket/clima",
			wantErr:  "at least one column",
		},
		{
			name:     "relative_location",
			dataset:  "clima",
			columns:  cols,
			location: "clima/",
			wantErr:  "must be a URI",
		},
		{
			name:     "bad_type",
			dataset:  "clima",
			columns:  []domain.ColumnDef{{Name: "a", Type: "INT; DROP TABLE x"}},
			location: "gs://bucket/clima",
			wantErr:  "invalid column type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CreateTableWithLocation("nessie_catalog", tt.dataset, tt.columns, tt.location)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCreateTableAsProjection(t *testing.T) {
	cols := []domain.ColumnDef{{Name: "a", Type: "INT"}, {Name: "b", Type: "VARCHAR"}}

	got, err := CreateTableAsProjection("nessie_catalog", "clima", "bronze", "mvp-bronze", "clima", cols)
	require.NoError(t, err)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS nessie_catalog.clima AS SELECT CAST(a AS INT) as a, CAST(b AS VARCHAR) as b FROM TABLE(bronze."mvp-bronze"."clima"(type=>'parquet'))`,
		got)

	_, err = CreateTableAsProjection("nessie_catalog", "clima", "bronze", "Bad_Bucket", "clima", cols)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid bucket")
}

func TestCreateTableInferred(t *testing.T) {
	got, err := CreateTableInferred("nessie_catalog", "clima", "bronze", "mvp-bronze", "clima")
	require.NoError(t, err)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS nessie_catalog.clima AS SELECT * FROM TABLE(bronze."mvp-bronze"."clima"(type=>'parquet'))`,
		got)
}

func TestStagedTable_Folder(t *testing.T) {
	tests := []struct {
		name    string
		folder  string
		want    string
		wantErr string
	}{
		{name: "dataset", folder: "clima", want: `TABLE(bronze."mvp-bronze"."clima"(type=>'parquet'))`},
		{name: "nested prefix", folder: "lake/clima", want: `TABLE(bronze."mvp-bronze"."lake"."clima"(type=>'parquet'))`},
		{name: "deep prefix", folder: "a/b/clima", want: `TABLE(bronze."mvp-bronze"."a"."b"."clima"(type=>'parquet'))`},
		{name: "surrounding slashes", folder: "/lake/clima/", want: `TABLE(bronze."mvp-bronze"."lake"."clima"(type=>'parquet'))`},
		{name: "quote escaped", folder: `la"ke/clima`, want: `TABLE(bronze."mvp-bronze"."la""ke"."clima"(type=>'parquet'))`},
		{name: "empty", folder: "", wantErr: "folder is required"},
		{name: "empty element", folder: "lake//clima", wantErr: "bad path element"},
		{name: "parent element", folder: "../clima", wantErr: "bad path element"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stagedTable("bronze", "mvp-bronze", tt.folder)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRefreshMetadata(t *testing.T) {
	got, err := RefreshMetadata("nessie_catalog", "clima")
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE nessie_catalog.clima REFRESH METADATA", got)

	_, err = RefreshMetadata("nessie_catalog", "clima.x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dataset name")
}
