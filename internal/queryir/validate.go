package queryir

import (
	"fmt"

	"github.com/roach88/cogd/internal/ir"
)

// ValidationResult lists every problem found in a query.
type ValidationResult struct {
	Valid    bool
	Problems []string
}

// Columns answers whether a column exists on a table.
type Columns func(table, column string) bool

// Validate checks a query against a column set. It reports unknown
// columns, null passed to a value comparison, non-scalar comparison
// values, unknown operators, and negative limits. Validate is pure.
func Validate(q Query, cols Columns) ValidationResult {
	v := &validator{cols: cols, problems: []string{}}
	v.validateQuery(q)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

type validator struct {
	cols     Columns
	table    string
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) column(field string) {
	if v.cols != nil && !v.cols(v.table, field) {
		v.addProblem("unknown column %q on %s", field, v.table)
	}
}

func (v *validator) object(obj ir.IRObject) {
	for _, k := range obj.SortedKeys() {
		v.column(k)
	}
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Count:
		v.table = query.From
		v.validatePredicate(query.Filter)
	case *Count:
		v.table = query.From
		v.validatePredicate(query.Filter)
	case Insert:
		v.table = query.Into
		v.object(query.Values)
		v.columns(query.Returning)
	case *Insert:
		v.validateQuery(*query)
	case Update:
		v.table = query.Table
		if len(query.Set) == 0 {
			v.addProblem("update on %s sets no columns", query.Table)
		}
		v.object(query.Set)
		v.validatePredicate(query.Filter)
		v.columns(query.Returning)
	case *Update:
		v.validateQuery(*query)
	case Delete:
		v.table = query.From
		v.validatePredicate(query.Filter)
		v.columns(query.Returning)
	case *Delete:
		v.validateQuery(*query)
	case Upsert:
		v.table = query.Into
		if len(query.ConflictOn) == 0 {
			v.addProblem("upsert on %s has no conflict target", query.Into)
		}
		v.object(query.Values)
		v.object(query.Update)
		v.columns(query.ConflictOn)
		v.columns(query.Returning)
	case *Upsert:
		v.validateQuery(*query)
	default:
		v.addProblem("unknown query type %T", q)
	}
}

func (v *validator) columns(names []string) {
	for _, n := range names {
		v.column(n)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.table = sel.From
	v.columns(sel.Columns)
	v.validatePredicate(sel.Filter)
	for _, o := range sel.Order {
		v.column(o.Field)
	}
	v.columns(sel.Key)
	if sel.Limit < 0 {
		v.addProblem("negative limit %d", sel.Limit)
	}
	if sel.Offset < 0 {
		v.addProblem("negative offset %d", sel.Offset)
	}
}

func (v *validator) scalar(field string, val ir.IRValue) {
	switch val.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
	case nil, ir.IRNull:
		v.addProblem("field %q compared to null; use IsNull", field)
	default:
		v.addProblem("field %q compared to non-scalar %T", field, val)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.column(pred.Field)
		v.scalar(pred.Field, pred.Value)
	case *Equals:
		v.validatePredicate(*pred)
	case NotEquals:
		v.column(pred.Field)
		v.scalar(pred.Field, pred.Value)
	case *NotEquals:
		v.validatePredicate(*pred)
	case Compare:
		v.column(pred.Field)
		v.scalar(pred.Field, pred.Value)
		switch pred.Op {
		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpLike:
		default:
			v.addProblem("unknown operator %q on %q", pred.Op, pred.Field)
		}
	case *Compare:
		v.validatePredicate(*pred)
	case In:
		v.column(pred.Field)
		for _, val := range pred.Values {
			v.scalar(pred.Field, val)
		}
	case *In:
		v.validatePredicate(*pred)
	case IsNull:
		v.column(pred.Field)
	case *IsNull:
		v.column(pred.Field)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		v.validatePredicate(*pred)
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *Or:
		v.validatePredicate(*pred)
	case Not:
		if pred.Predicate == nil {
			v.addProblem("negation of nil predicate")
		}
		v.validatePredicate(pred.Predicate)
	case *Not:
		v.validatePredicate(*pred)
	default:
		v.addProblem("unknown predicate type %T", p)
	}
}
