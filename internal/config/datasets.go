package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"lake-wap/internal/domain"
)

// DatasetManifest is the on-disk list of datasets the pipeline publishes.
type DatasetManifest struct {
	Datasets []DatasetEntry `yaml:"datasets"`
}

// DatasetEntry is one dataset in the manifest. The source folder is given
// either directly or through the environment variable named by FolderIDEnv.
type DatasetEntry struct {
	Name        string `yaml:"name"`
	FolderID    string `yaml:"folder_id,omitempty"`
	FolderIDEnv string `yaml:"folder_id_env,omitempty"`
	Schema      string `yaml:"schema,omitempty"`
	Format      string `yaml:"format,omitempty"`
}

// LoadDatasets reads the manifest at path and resolves each entry into a
// dataset spec. Entries without a folder id are skipped and reported in the
// returned warnings.
func LoadDatasets(path string) ([]domain.DatasetSpec, []string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, nil, fmt.Errorf("read dataset manifest: %w", err)
	}
	return ParseDatasets(data)
}

// ParseDatasets parses manifest bytes. See LoadDatasets.
func ParseDatasets(data []byte) ([]domain.DatasetSpec, []string, error) {
	var m DatasetManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("parse dataset manifest: %w", err)
	}

	var (
		specs    []domain.DatasetSpec
		warnings []string
	)
	seen := make(map[string]bool, len(m.Datasets))
	for i, e := range m.Datasets {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, nil, fmt.Errorf("dataset %d: name is required", i+1)
		}
		if seen[name] {
			return nil, nil, fmt.Errorf("dataset %q is listed twice", name)
		}
		seen[name] = true

		format, err := domain.ParseTableFormat(strings.ToLower(e.Format))
		if err != nil {
			return nil, nil, fmt.Errorf("dataset %q: %w", name, err)
		}

		folderID := e.FolderID
		if folderID == "" && e.FolderIDEnv != "" {
			folderID = os.Getenv(e.FolderIDEnv)
		}
		if folderID == "" {
			warnings = append(warnings, fmt.Sprintf("dataset %q has no folder id (set %s); skipping", name, orDash(e.FolderIDEnv)))
			continue
		}

		specs = append(specs, domain.DatasetSpec{
			Name:     name,
			FolderID: folderID,
			Schema:   strings.TrimSpace(e.Schema),
			Format:   format,
		})
	}
	return specs, warnings, nil
}

func orDash(s string) string {
	if s == "" {
		return "folder_id"
	}
	return s
}
