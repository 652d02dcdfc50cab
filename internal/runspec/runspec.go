// internal/runspec/runspec.go
package runspec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solatis/dupmatch/internal/expr"
	"github.com/solatis/dupmatch/internal/match"
	"github.com/solatis/dupmatch/internal/types"
)

/*
 * Run definitions.
 *
 * A run definition is a YAML document naming the groups of a scan and an
 * optional condition:
 *
 *   condition: "G1F1 = G2F1 and G1F2R1 in G2F2"
 *   groups:
 *     - source: {kind: collection, name: French}
 *       fields:
 *         - {category: basic, field: Front}
 *         - {category: basic, field: Back, capture: '^(\w+)'}
 *       action: delete
 *     - source: {kind: tags, tags: [imported]}
 *       fields:
 *         - {category: basic, field: Front}
 *       action: replace:F1
 *       replacement: G1F1
 *
 * Build resolves names against the store: category names become ids, group
 * sources become record id lists. The condition is parsed here, so a run
 * that builds never fails on syntax mid-scan.
 */

// Spec is the YAML form of a run definition.
type Spec struct {
	Condition string      `yaml:"condition"`
	Groups    []GroupSpec `yaml:"groups"`
}

// GroupSpec is the YAML form of one group.
type GroupSpec struct {
	Source      SourceSpec  `yaml:"source"`
	Fields      []FieldSpec `yaml:"fields"`
	Action      string      `yaml:"action,omitempty"`
	Tag         string      `yaml:"tag,omitempty"`
	Replacement string      `yaml:"replacement,omitempty"`
}

// SourceSpec selects a group's records.
type SourceSpec struct {
	Kind    string   `yaml:"kind"`
	Name    string   `yaml:"name,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
	Records []string `yaml:"records,omitempty"`
}

// FieldSpec selects one compared field. Category defaults to the source
// category for category sources.
type FieldSpec struct {
	Category string `yaml:"category,omitempty"`
	Field    string `yaml:"field"`
	Capture  string `yaml:"capture,omitempty"`
}

// Catalog resolves names used by run definitions.
type Catalog interface {
	CategoryByName(ctx context.Context, name string) (types.Category, error)
	CollectionRecordIDs(ctx context.Context, name string) ([]types.RecordID, error)
	CategoryRecordIDs(ctx context.Context, name string) ([]types.RecordID, error)
	TagRecordIDs(ctx context.Context, tags []string) ([]types.RecordID, error)
}

// Run is a resolved run ready for match.Engine.
type Run struct {
	Groups    []match.Group
	Condition expr.Node // nil selects the simple rule
}

// Load reads a run definition from a YAML file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run definition: %w", err)
	}
	return Parse(data)
}

// Parse decodes a run definition. Unknown keys are rejected.
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parse run definition: %w", err)
	}
	return &spec, nil
}

// Build resolves the definition against the catalog.
func (s *Spec) Build(ctx context.Context, catalog Catalog) (*Run, error) {
	run := &Run{}

	if strings.TrimSpace(s.Condition) != "" {
		cond, err := expr.Parse(s.Condition)
		if err != nil {
			return nil, err
		}
		run.Condition = cond
	}

	categories := make(map[string]types.Category)
	lookup := func(name string) (types.Category, error) {
		if c, ok := categories[name]; ok {
			return c, nil
		}
		c, err := catalog.CategoryByName(ctx, name)
		if err != nil {
			return types.Category{}, err
		}
		categories[name] = c
		return c, nil
	}

	for i, g := range s.Groups {
		group, err := buildGroup(ctx, catalog, lookup, g)
		if err != nil {
			return nil, &types.ConfigError{Group: i + 1, Err: err}
		}
		run.Groups = append(run.Groups, group)
	}

	if err := match.Validate(run.Groups); err != nil {
		return nil, err
	}
	return run, nil
}

func buildGroup(ctx context.Context, catalog Catalog, lookup func(string) (types.Category, error), g GroupSpec) (match.Group, error) {
	kind, err := types.ParseSourceKind(g.Source.Kind)
	if err != nil {
		return match.Group{}, err
	}
	action, err := types.ParseAction(g.Action)
	if err != nil {
		return match.Group{}, err
	}

	spec := types.GroupSpec{
		Source: types.GroupSource{
			Kind: kind,
			Name: strings.TrimSpace(g.Source.Name),
			Tags: g.Source.Tags,
		},
		Action:      action,
		Tag:         g.Tag,
		Replacement: strings.TrimSpace(g.Replacement),
	}

	for _, f := range g.Fields {
		categoryName := f.Category
		if categoryName == "" && kind == types.SourceCategory {
			categoryName = spec.Source.Name
		}
		if categoryName == "" {
			return match.Group{}, fmt.Errorf("%w: field %q has no category", types.ErrUnknownField, f.Field)
		}
		category, err := lookup(categoryName)
		if err != nil {
			return match.Group{}, err
		}
		if !category.HasField(f.Field) {
			return match.Group{}, fmt.Errorf("%w: category %q has no field %q", types.ErrUnknownField, category.Name, f.Field)
		}
		spec.Fields = append(spec.Fields, types.FieldSelector{
			Field:    f.Field,
			Category: category.ID,
			Capture:  f.Capture,
		})
	}

	ids, err := resolveSource(ctx, catalog, kind, spec.Source.Name, g.Source)
	if err != nil {
		return match.Group{}, err
	}
	spec.Source.Records = ids

	return match.Group{Spec: spec, RecordIDs: ids}, nil
}

func resolveSource(ctx context.Context, catalog Catalog, kind types.SourceKind, name string, src SourceSpec) ([]types.RecordID, error) {
	switch kind {
	case types.SourceCollection:
		return catalog.CollectionRecordIDs(ctx, name)
	case types.SourceCategory:
		return catalog.CategoryRecordIDs(ctx, name)
	case types.SourceTags:
		return catalog.TagRecordIDs(ctx, src.Tags)
	case types.SourceRecords:
		ids := make([]types.RecordID, 0, len(src.Records))
		for _, raw := range src.Records {
			id, err := types.ParseRecordID(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("%w: record id %q", types.ErrUnknownSource, raw)
			}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("%w: kind %s", types.ErrUnknownSource, kind)
	}
}
