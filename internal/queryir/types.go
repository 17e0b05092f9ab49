package queryir

import (
	"github.com/roach88/cogd/internal/ir"
)

// Query is a sealed interface over query node types.
type Query interface {
	queryNode()
}

// Predicate is a sealed interface over filter node types.
type Predicate interface {
	predicateNode()
}

// OrderBy is one sort term.
type OrderBy struct {
	Field string
	Desc  bool
}

// Select reads rows.
type Select struct {
	From    string
	Columns []string  // empty selects every column
	Filter  Predicate // nil matches every row
	Order   []OrderBy
	Key     []string // tie-break, appended after Order unless already present
	Limit   int      // 0 = unlimited
	Offset  int
}

func (Select) queryNode() {}

// Count counts matching rows.
type Count struct {
	From   string
	Filter Predicate
}

func (Count) queryNode() {}

// Insert adds one row.
type Insert struct {
	Into      string
	Values    ir.IRObject
	Returning []string
}

func (Insert) queryNode() {}

// Update modifies every matching row.
type Update struct {
	Table     string
	Set       ir.IRObject
	Filter    Predicate
	Returning []string
}

func (Update) queryNode() {}

// Delete removes every matching row.
type Delete struct {
	From      string
	Filter    Predicate
	Returning []string
}

func (Delete) queryNode() {}

// Upsert inserts Values, or on a conflict over ConflictOn updates the
// existing row with Update. An empty Update rewrites the conflict columns
// with themselves so that Returning still yields the existing row. The
// whole operation is one statement.
type Upsert struct {
	Into       string
	Values     ir.IRObject
	ConflictOn []string
	Update     ir.IRObject
	Returning  []string
}

func (Upsert) queryNode() {}

// Equals matches Field = Value. Use IsNull for null comparisons.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// NotEquals matches Field <> Value.
type NotEquals struct {
	Field string
	Value ir.IRValue
}

func (NotEquals) predicateNode() {}

// CompareOp is a scalar comparison operator.
type CompareOp string

const (
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpGreater      CompareOp = ">"
	OpGreaterEqual CompareOp = ">="
	OpLike         CompareOp = "LIKE"
)

// Compare matches Field <Op> Value.
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// In matches Field IN (Values...). An empty list matches nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// IsNull matches Field IS NULL, or IS NOT NULL when Not is set.
type IsNull struct {
	Field string
	Not   bool
}

func (IsNull) predicateNode() {}

// And matches when every predicate matches. Empty is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or matches when any predicate matches. Empty is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// Eq is shorthand for Equals.
func Eq(field string, v ir.IRValue) Predicate {
	return Equals{Field: field, Value: v}
}

// AllOf flattens nil entries away and returns the conjunction.
// A single remaining predicate is returned as is.
func AllOf(preds ...Predicate) Predicate {
	out := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return And{Predicates: out}
	}
}

// Match converts an equality selector into a predicate, one term per key in
// sorted order. IRNull values become IsNull terms.
func Match(sel ir.IRObject) Predicate {
	keys := sel.SortedKeys()
	preds := make([]Predicate, 0, len(keys))
	for _, k := range keys {
		v := sel[k]
		if ir.IsNull(v) {
			preds = append(preds, IsNull{Field: k})
			continue
		}
		preds = append(preds, Equals{Field: k, Value: v})
	}
	return AllOf(preds...)
}

// Fields returns every field name a predicate references, in visit order,
// duplicates included.
func Fields(p Predicate) []string {
	var out []string
	walkPredicate(p, func(field string) { out = append(out, field) })
	return out
}

func walkPredicate(p Predicate, visit func(string)) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		visit(pred.Field)
	case *Equals:
		visit(pred.Field)
	case NotEquals:
		visit(pred.Field)
	case *NotEquals:
		visit(pred.Field)
	case Compare:
		visit(pred.Field)
	case *Compare:
		visit(pred.Field)
	case In:
		visit(pred.Field)
	case *In:
		visit(pred.Field)
	case IsNull:
		visit(pred.Field)
	case *IsNull:
		visit(pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			walkPredicate(sub, visit)
		}
	case *And:
		for _, sub := range pred.Predicates {
			walkPredicate(sub, visit)
		}
	case Or:
		for _, sub := range pred.Predicates {
			walkPredicate(sub, visit)
		}
	case *Or:
		for _, sub := range pred.Predicates {
			walkPredicate(sub, visit)
		}
	case Not:
		walkPredicate(pred.Predicate, visit)
	case *Not:
		walkPredicate(pred.Predicate, visit)
	}
}
