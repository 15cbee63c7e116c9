package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crewd/crewd/pkg/ports"
)

// CatalogEntry maps a symbolic tag to a concrete model.
type CatalogEntry struct {
	Tag          string
	ProviderID   string
	ModelID      string
	Capabilities []string
}

// CatalogResolver implements ports.ModelResolver over a static catalog of
// auto-tags. Explicit provider/model specs never reach the resolver; an
// unknown tag fails with the list of known tags as suggestions.
type CatalogResolver struct {
	entries map[string]CatalogEntry
}

// DefaultCatalog returns the built-in auto-tag catalog.
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{Tag: "auto:fast", ProviderID: "anthropic", ModelID: "claude-3-5-haiku-20241022"},
		{Tag: "auto:smart", ProviderID: "anthropic", ModelID: "claude-3-5-sonnet-20241022"},
		{Tag: "auto:vision", ProviderID: "anthropic", ModelID: "claude-3-5-sonnet-20241022", Capabilities: []string{"vision"}},
	}
}

// NewCatalogResolver creates a resolver from catalog entries.
func NewCatalogResolver(entries []CatalogEntry) *CatalogResolver {
	m := make(map[string]CatalogEntry, len(entries))
	for _, e := range entries {
		m[e.Tag] = e
	}
	return &CatalogResolver{entries: m}
}

// Resolve turns a symbolic tag into a concrete provider/model id.
func (r *CatalogResolver) Resolve(spec string, rc ports.ResolveContext) (*ports.Resolution, error) {
	entry, ok := r.entries[spec]
	if !ok {
		return nil, fmt.Errorf("unknown model tag %q (known tags: %s)", spec, strings.Join(r.tags(), ", "))
	}
	return &ports.Resolution{
		Full:         entry.ProviderID + "/" + entry.ModelID,
		ProviderID:   entry.ProviderID,
		ModelID:      entry.ModelID,
		Capabilities: append([]string(nil), entry.Capabilities...),
	}, nil
}

func (r *CatalogResolver) tags() []string {
	tags := make([]string, 0, len(r.entries))
	for tag := range r.entries {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
