package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCatalogEmptyPath(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Empty(t, catalog.Profiles)
	assert.Empty(t, catalog.Workflows)
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog("/nonexistent/profiles.yaml")
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	path := writeCatalog(t, `
profiles:
  - id: backend
    name: Backend engineer
    model: anthropic/claude-3-5-sonnet-20241022
    purpose: Server-side work
    permissions:
      network_access: true
  - id: reviewer
    name: Reviewer
    model: auto:smart
    permissions:
      read_only: true

workflows:
  - id: review
    name: Code review
    steps:
      - id: analyze
        title: Analyze
        worker_id: backend
        prompt: "Analyze: {task}"
        carry: true
      - id: summarize
        title: Summarize
        worker_id: reviewer
        prompt: "Summarize.\n\n{carry}"
`)

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	require.Len(t, catalog.Profiles, 2)
	assert.Equal(t, "backend", catalog.Profiles[0].ID)
	assert.True(t, catalog.Profiles[0].Permissions.NetworkAccess)
	assert.True(t, catalog.Profiles[1].Permissions.ReadOnly)

	require.Len(t, catalog.Workflows, 1)
	require.Len(t, catalog.Workflows[0].Steps, 2)
	assert.Equal(t, "backend", catalog.Workflows[0].Steps[0].WorkerID)
	assert.True(t, catalog.Workflows[0].Steps[0].Carry)
}

func TestLoadCatalogRejectsDuplicateIDs(t *testing.T) {
	path := writeCatalog(t, `
profiles:
  - id: backend
    model: auto:smart
  - id: backend
    model: auto:fast
`)

	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate profile id")
}

func TestLoadCatalogRejectsMissingModel(t *testing.T) {
	path := writeCatalog(t, `
profiles:
  - id: backend
`)

	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model")
}
