package permissions

import (
	"testing"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestBuildToolConfigDeniedWins(t *testing.T) {
	tr := NewTranslator()

	cfg := tr.BuildToolConfig(domain.Permissions{
		AllowedTools:  []string{"bash", "read_file"},
		DeniedTools:   []string{"bash"},
		NetworkAccess: true,
	})

	assert.False(t, cfg["bash"])
	assert.True(t, cfg["read_file"])
}

func TestBuildToolConfigNoNetwork(t *testing.T) {
	tr := NewTranslator()

	cfg := tr.BuildToolConfig(domain.Permissions{NetworkAccess: false})
	assert.False(t, cfg["web_fetch"])
	assert.False(t, cfg["web_search"])
}

func TestBuildToolConfigReadOnly(t *testing.T) {
	tr := NewTranslator()

	cfg := tr.BuildToolConfig(domain.Permissions{
		ReadOnly:      true,
		NetworkAccess: true,
		AllowedTools:  []string{"write_file"},
	})

	// Read-only overrides an explicit allow.
	assert.False(t, cfg["write_file"])
	assert.False(t, cfg["edit_file"])
	assert.False(t, cfg["bash"])
}

func TestSummarize(t *testing.T) {
	tr := NewTranslator()

	s := tr.Summarize(domain.Permissions{
		ReadOnly:     true,
		AllowedTools: []string{"read_file"},
		DeniedTools:  []string{"bash"},
	})

	assert.Contains(t, s, "read-only")
	assert.Contains(t, s, "no network")
	assert.Contains(t, s, "tools: read_file")
	assert.Contains(t, s, "denied: bash")
}
