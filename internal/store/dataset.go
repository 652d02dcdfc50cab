// internal/store/dataset.go
package store

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solatis/dupmatch/internal/types"
)

/*
 * Dataset import.
 *
 * A dataset is a YAML document seeding the store:
 *
 *   categories:
 *     - {name: basic, fields: [Front, Back]}
 *   collections:
 *     - {name: Languages}
 *     - {name: French, parent: Languages}
 *   records:
 *     - category: basic
 *       collection: French
 *       fields: {Front: chat, Back: cat}
 *       tags: [animal]
 *
 * Names refer to entries of the same document or to entries already in the
 * store. Collections must be listed after their parent.
 */

// Dataset is the YAML form of an import.
type Dataset struct {
	Categories  []DatasetCategory   `yaml:"categories"`
	Collections []DatasetCollection `yaml:"collections"`
	Records     []DatasetRecord     `yaml:"records"`
}

type DatasetCategory struct {
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields"`
}

type DatasetCollection struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
}

type DatasetRecord struct {
	ID         string            `yaml:"id,omitempty"`
	Category   string            `yaml:"category"`
	Collection string            `yaml:"collection,omitempty"`
	Fields     map[string]string `yaml:"fields"`
	Tags       []string          `yaml:"tags,omitempty"`
	Suspended  bool              `yaml:"suspended,omitempty"`
}

// ImportSummary counts what Import created.
type ImportSummary struct {
	Categories  int
	Collections int
	Records     int
}

// LoadDataset reads a dataset file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	return &ds, nil
}

// Import creates the dataset's categories, collections and records.
// It stops at the first failure; entries created before it remain.
func (s *Store) Import(ctx context.Context, ds *Dataset) (ImportSummary, error) {
	var sum ImportSummary

	categories := make(map[string]types.Category)
	existing, err := s.Categories(ctx)
	if err != nil {
		return sum, err
	}
	for _, c := range existing {
		categories[c.Name] = c
	}

	collections := make(map[string]types.CollectionID)
	known, err := s.Collections(ctx)
	if err != nil {
		return sum, err
	}
	for _, c := range known {
		collections[c.Name] = c.ID
	}

	for _, dc := range ds.Categories {
		if _, ok := categories[dc.Name]; ok {
			return sum, fmt.Errorf("category %q already exists", dc.Name)
		}
		c, err := s.CreateCategory(ctx, dc.Name, dc.Fields)
		if err != nil {
			return sum, err
		}
		categories[c.Name] = c
		sum.Categories++
	}

	for _, dc := range ds.Collections {
		var parent types.CollectionID
		if dc.Parent != "" {
			id, ok := collections[dc.Parent]
			if !ok {
				return sum, fmt.Errorf("%w: parent collection %q of %q", types.ErrUnknownSource, dc.Parent, dc.Name)
			}
			parent = id
		}
		c, err := s.CreateCollection(ctx, dc.Name, parent)
		if err != nil {
			return sum, err
		}
		collections[c.Name] = c.ID
		sum.Collections++
	}

	for i, dr := range ds.Records {
		category, ok := categories[dr.Category]
		if !ok {
			return sum, fmt.Errorf("record %d: %w: category %q", i+1, types.ErrUnknownSource, dr.Category)
		}
		for name := range dr.Fields {
			if !category.HasField(name) {
				return sum, fmt.Errorf("record %d: %w: category %q has no field %q", i+1, types.ErrUnknownField, category.Name, name)
			}
		}

		rec := types.Record{
			Category:  category.ID,
			Fields:    dr.Fields,
			Tags:      dr.Tags,
			Suspended: dr.Suspended,
		}
		if dr.ID != "" {
			id, err := types.ParseRecordID(dr.ID)
			if err != nil {
				return sum, fmt.Errorf("record %d: invalid id %q: %w", i+1, dr.ID, err)
			}
			rec.ID = id
		}
		if dr.Collection != "" {
			id, ok := collections[dr.Collection]
			if !ok {
				return sum, fmt.Errorf("record %d: %w: collection %q", i+1, types.ErrUnknownSource, dr.Collection)
			}
			rec.Collection = id
		}

		if _, err := s.CreateRecord(ctx, rec); err != nil {
			return sum, err
		}
		sum.Records++
	}

	return sum, nil
}
