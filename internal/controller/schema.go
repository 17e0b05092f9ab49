package controller

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/queryir"
)

// Relation declares that a local column references a row of another table.
type Relation struct {
	// Field is the local column holding the reference.
	Field string
	// Target is the referenced table.
	Target string
	// TargetKey is the referenced column whose value is stored in Field.
	TargetKey string
	// Lookup is the unique column set on Target used to connect or create.
	// Defaults to {TargetKey}.
	Lookup []string
}

func (r Relation) lookup() []string {
	if len(r.Lookup) == 0 {
		return []string{r.TargetKey}
	}
	return r.Lookup
}

// Schema describes a record type's table.
type Schema struct {
	// Name is the record type name used in errors, logs and metrics.
	Name  string
	Table string
	// Key is the primary key. It is the final ORDER BY term of every list.
	Key []string
	// Unique lists additional column sets that identify one record.
	Unique [][]string
	// Columns lists every column, key included.
	Columns []string
	// Generated columns are filled by the store and may be absent on create.
	Generated []string
	// Required columns must be present and non-null on create.
	Required  []string
	Relations []Relation
	// DefaultOrder applies to FindMany when the caller gives no order.
	DefaultOrder []queryir.OrderBy
}

// Validate checks the schema is self-consistent.
func (s *Schema) Validate() error {
	if s.Name == "" || s.Table == "" {
		return fmt.Errorf("schema needs a name and a table")
	}
	if len(s.Key) == 0 {
		return fmt.Errorf("schema %s has no key", s.Name)
	}
	check := func(what string, cols []string) error {
		for _, c := range cols {
			if !s.HasColumn(c) {
				return fmt.Errorf("schema %s: %s column %q is not declared", s.Name, what, c)
			}
		}
		return nil
	}
	if err := check("key", s.Key); err != nil {
		return err
	}
	for _, u := range s.Unique {
		if err := check("unique", u); err != nil {
			return err
		}
	}
	if err := check("generated", s.Generated); err != nil {
		return err
	}
	if err := check("required", s.Required); err != nil {
		return err
	}
	for _, r := range s.Relations {
		if err := check("relation", []string{r.Field}); err != nil {
			return err
		}
		if r.Target == "" || r.TargetKey == "" {
			return fmt.Errorf("schema %s: relation %q needs a target and target key", s.Name, r.Field)
		}
	}
	for _, o := range s.DefaultOrder {
		if err := check("order", []string{o.Field}); err != nil {
			return err
		}
	}
	return nil
}

// HasColumn reports whether col is declared.
func (s *Schema) HasColumn(col string) bool {
	return slices.Contains(s.Columns, col)
}

// Relation returns the relation stored in field.
func (s *Schema) Relation(field string) (Relation, bool) {
	for _, r := range s.Relations {
		if r.Field == field {
			return r, true
		}
	}
	return Relation{}, false
}

// IsUniqueSelector reports whether the keys of sel are exactly the primary
// key or exactly one declared unique set.
func (s *Schema) IsUniqueSelector(sel ir.IRObject) bool {
	keys := sel.SortedKeys()
	if sameSet(keys, s.Key) {
		return true
	}
	for _, u := range s.Unique {
		if sameSet(keys, u) {
			return true
		}
	}
	return false
}

func sameSet(sortedKeys, cols []string) bool {
	if len(sortedKeys) != len(cols) {
		return false
	}
	c := slices.Clone(cols)
	sort.Strings(c)
	return slices.Equal(sortedKeys, c)
}

// columnsFn adapts the schema for queryir.Validate.
func (s *Schema) columnsFn() queryir.Columns {
	return func(table, column string) bool {
		return table == s.Table && s.HasColumn(column)
	}
}

// unknownColumns returns the keys of obj that are not declared, sorted.
func (s *Schema) unknownColumns(obj ir.IRObject) []string {
	var bad []string
	for _, k := range obj.SortedKeys() {
		if !s.HasColumn(k) {
			bad = append(bad, k)
		}
	}
	return bad
}
