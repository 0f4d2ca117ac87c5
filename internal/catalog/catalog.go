// Package catalog holds the ordered list of car categories the classifier
// was trained on. Index i of the catalog names output i of the model.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Brownie44l1/carid/internal/model"
)

// Separator joins the tokens of a category identifier.
const Separator = "_"

// Category is one catalog entry.
type Category struct {
	ID    string
	Index int
}

// Tokens splits the identifier into its non-empty tokens.
func (c Category) Tokens() []string {
	return Tokens(c.ID)
}

// Tokens splits an identifier on Separator, dropping empty tokens.
func Tokens(id string) []string {
	parts := strings.Split(id, Separator)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MismatchError reports a catalog whose size does not match the model output.
type MismatchError struct {
	Categories int
	Scores     int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("catalog: %d categories but model produced %d scores", e.Categories, e.Scores)
}

// Catalog is an immutable, ordered set of categories. It is safe for
// concurrent use.
type Catalog struct {
	categories []Category
	byID       map[string]int
}

// New builds a catalog from identifiers in model output order.
func New(ids []string) (*Catalog, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("catalog: no categories")
	}
	c := &Catalog{
		categories: make([]Category, len(ids)),
		byID:       make(map[string]int, len(ids)),
	}
	for i, id := range ids {
		if err := ValidateID(id); err != nil {
			return nil, fmt.Errorf("catalog: entry %d: %w", i, err)
		}
		if prev, ok := c.byID[id]; ok {
			return nil, fmt.Errorf("catalog: entry %d: duplicate id %q (first at %d)", i, id, prev)
		}
		c.byID[id] = i
		c.categories[i] = Category{ID: id, Index: i}
	}
	return c, nil
}

// ValidateID makes sure every token of id can be used as a single directory
// name.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("empty id")
	}
	for _, tok := range strings.Split(id, Separator) {
		switch {
		case tok == "":
			return fmt.Errorf("id %q has an empty token", id)
		case tok == "." || tok == "..":
			return fmt.Errorf("id %q has a relative path token", id)
		case strings.ContainsAny(tok, `/\`):
			return fmt.Errorf("id %q has a path separator", id)
		}
	}
	return nil
}

// Load reads a catalog file. Two layouts are accepted: a plain JSON array of
// identifiers, or a model metadata object with a "classes" array.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	ids, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return New(ids)
}

func parse(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if trimmed[0] == '[' {
		var ids []string
		if err := json.Unmarshal(trimmed, &ids); err != nil {
			return nil, err
		}
		return ids, nil
	}
	var meta model.Metadata
	if err := json.Unmarshal(trimmed, &meta); err != nil {
		return nil, err
	}
	if len(meta.OutputShape) > 0 {
		if n := meta.OutputShape[len(meta.OutputShape)-1]; n > 0 && int(n) != len(meta.Classes) {
			return nil, &MismatchError{Categories: len(meta.Classes), Scores: int(n)}
		}
	}
	return meta.Classes, nil
}

// Validate checks the catalog against the model's output dimension.
func (c *Catalog) Validate(outputDim int) error {
	if outputDim != len(c.categories) {
		return &MismatchError{Categories: len(c.categories), Scores: outputDim}
	}
	return nil
}

// Len returns the number of categories.
func (c *Catalog) Len() int { return len(c.categories) }

// At returns the category at index i.
func (c *Catalog) At(i int) Category { return c.categories[i] }

// Lookup finds a category by identifier.
func (c *Catalog) Lookup(id string) (Category, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Category{}, false
	}
	return c.categories[i], true
}

// All returns a copy of the categories in index order.
func (c *Catalog) All() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}
