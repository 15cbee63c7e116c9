package permissions

import (
	"fmt"
	"strings"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/crewd/crewd/pkg/ports"
)

// Translator implements ports.PermissionTranslator. It shapes the tool
// surface handed to worker servers and the one-line permission summary
// used in identity prompts; it does not interpret permission semantics
// beyond that.
type Translator struct{}

// NewTranslator creates a permission translator.
func NewTranslator() *Translator {
	return &Translator{}
}

// BuildToolConfig maps allowed/denied tool lists onto tool flags. Denied
// entries win over allowed ones.
func (t *Translator) BuildToolConfig(p domain.Permissions) ports.ToolConfig {
	cfg := make(ports.ToolConfig)
	for _, tool := range p.AllowedTools {
		cfg[tool] = true
	}
	for _, tool := range p.DeniedTools {
		cfg[tool] = false
	}
	if !p.NetworkAccess {
		cfg["web_fetch"] = false
		cfg["web_search"] = false
	}
	if p.ReadOnly {
		cfg["write_file"] = false
		cfg["edit_file"] = false
		cfg["bash"] = false
	}
	return cfg
}

// Summarize renders a short human-readable permission summary.
func (t *Translator) Summarize(p domain.Permissions) string {
	var parts []string
	if p.ReadOnly {
		parts = append(parts, "read-only")
	} else {
		parts = append(parts, "read-write")
	}
	if p.NetworkAccess {
		parts = append(parts, "network access")
	} else {
		parts = append(parts, "no network")
	}
	if len(p.AllowedTools) > 0 {
		parts = append(parts, fmt.Sprintf("tools: %s", strings.Join(p.AllowedTools, ", ")))
	}
	if len(p.DeniedTools) > 0 {
		parts = append(parts, fmt.Sprintf("denied: %s", strings.Join(p.DeniedTools, ", ")))
	}
	return strings.Join(parts, "; ")
}
