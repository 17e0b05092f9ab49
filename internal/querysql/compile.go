package querysql

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/queryir"
)

// SQLCompiler compiles queryir nodes to parameterized SQLite SQL.
//
// Every value is bound with a ? placeholder; identifiers are checked against
// a strict pattern and double-quoted. Every Select ends its ORDER BY with
// the key columns so results are deterministic.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Compile converts a query to (sql, params).
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	switch query := q.(type) {
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil query")
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	case queryir.Count:
		return c.compileCount(query)
	case *queryir.Count:
		return c.compileCount(*query)
	case queryir.Insert:
		return c.compileInsert(query)
	case *queryir.Insert:
		return c.compileInsert(*query)
	case queryir.Update:
		return c.compileUpdate(query)
	case *queryir.Update:
		return c.compileUpdate(*query)
	case queryir.Delete:
		return c.compileDelete(query)
	case *queryir.Delete:
		return c.compileDelete(*query)
	case queryir.Upsert:
		return c.compileUpsert(query)
	case *queryir.Upsert:
		return c.compileUpsert(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func quote(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}

func quoteAll(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		q, err := quote(n)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func (c *SQLCompiler) where(p queryir.Predicate) (string, []any, error) {
	if p == nil {
		return "", nil, nil
	}
	sql, params, err := c.compilePredicate(p)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return " WHERE " + sql, params, nil
}

func returning(cols []string) (string, error) {
	if len(cols) == 0 {
		return "", nil
	}
	quoted, err := quoteAll(cols)
	if err != nil {
		return "", err
	}
	return " RETURNING " + strings.Join(quoted, ", "), nil
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	table, err := quote(q.From)
	if err != nil {
		return "", nil, err
	}

	cols := "*"
	if len(q.Columns) > 0 {
		quoted, err := quoteAll(q.Columns)
		if err != nil {
			return "", nil, err
		}
		cols = strings.Join(quoted, ", ")
	}

	whereSQL, params, err := c.where(q.Filter)
	if err != nil {
		return "", nil, err
	}

	orderSQL, err := orderBy(q.Order, q.Key)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s%s", cols, table, whereSQL, orderSQL)

	switch {
	case q.Limit > 0:
		b.WriteString(" LIMIT ?")
		params = append(params, int64(q.Limit))
		if q.Offset > 0 {
			b.WriteString(" OFFSET ?")
			params = append(params, int64(q.Offset))
		}
	case q.Offset > 0:
		b.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, int64(q.Offset))
	}

	return b.String(), params, nil
}

// orderBy renders the caller's terms followed by any key column they did
// not already name. With no terms and no key it falls back to rowid.
func orderBy(order []queryir.OrderBy, key []string) (string, error) {
	terms := make([]string, 0, len(order)+len(key))
	seen := make([]string, 0, len(order))
	for _, o := range order {
		col, err := quote(o.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		terms = append(terms, fmt.Sprintf("%s %s", col, dir))
		seen = append(seen, o.Field)
	}
	for _, k := range key {
		if slices.Contains(seen, k) {
			continue
		}
		col, err := quote(k)
		if err != nil {
			return "", err
		}
		terms = append(terms, col+" ASC")
	}
	if len(terms) == 0 {
		terms = append(terms, "rowid ASC")
	}
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

func (c *SQLCompiler) compileCount(q queryir.Count) (string, []any, error) {
	table, err := quote(q.From)
	if err != nil {
		return "", nil, err
	}
	whereSQL, params, err := c.where(q.Filter)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, whereSQL), params, nil
}

// assignments renders the columns and bind params of obj in sorted key order.
func assignments(obj ir.IRObject) ([]string, []any, error) {
	keys := obj.SortedKeys()
	cols := make([]string, len(keys))
	params := make([]any, len(keys))
	for i, k := range keys {
		col, err := quote(k)
		if err != nil {
			return nil, nil, err
		}
		p, err := irValueToParam(obj[k])
		if err != nil {
			return nil, nil, fmt.Errorf("column %s: %w", k, err)
		}
		cols[i] = col
		params[i] = p
	}
	return cols, params, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (c *SQLCompiler) compileInsert(q queryir.Insert) (string, []any, error) {
	table, err := quote(q.Into)
	if err != nil {
		return "", nil, err
	}
	ret, err := returning(q.Returning)
	if err != nil {
		return "", nil, err
	}
	if len(q.Values) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES%s", table, ret), nil, nil
	}
	cols, params, err := assignments(q.Values)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)%s",
		table, strings.Join(cols, ", "), placeholders(len(cols)), ret)
	return sql, params, nil
}

func (c *SQLCompiler) compileUpdate(q queryir.Update) (string, []any, error) {
	table, err := quote(q.Table)
	if err != nil {
		return "", nil, err
	}
	if len(q.Set) == 0 {
		return "", nil, fmt.Errorf("update on %s sets no columns", q.Table)
	}
	cols, params, err := assignments(q.Set)
	if err != nil {
		return "", nil, err
	}
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	whereSQL, whereParams, err := c.where(q.Filter)
	if err != nil {
		return "", nil, err
	}
	ret, err := returning(q.Returning)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s%s%s", table, strings.Join(sets, ", "), whereSQL, ret)
	return sql, append(params, whereParams...), nil
}

func (c *SQLCompiler) compileDelete(q queryir.Delete) (string, []any, error) {
	table, err := quote(q.From)
	if err != nil {
		return "", nil, err
	}
	whereSQL, params, err := c.where(q.Filter)
	if err != nil {
		return "", nil, err
	}
	ret, err := returning(q.Returning)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("DELETE FROM %s%s%s", table, whereSQL, ret), params, nil
}

func (c *SQLCompiler) compileUpsert(q queryir.Upsert) (string, []any, error) {
	table, err := quote(q.Into)
	if err != nil {
		return "", nil, err
	}
	if len(q.ConflictOn) == 0 {
		return "", nil, fmt.Errorf("upsert on %s has no conflict target", q.Into)
	}
	if len(q.Values) == 0 {
		return "", nil, fmt.Errorf("upsert on %s has no values", q.Into)
	}
	target, err := quoteAll(q.ConflictOn)
	if err != nil {
		return "", nil, err
	}
	cols, params, err := assignments(q.Values)
	if err != nil {
		return "", nil, err
	}

	var sets []string
	if len(q.Update) == 0 {
		for _, col := range target {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
		}
	} else {
		updCols, updParams, err := assignments(q.Update)
		if err != nil {
			return "", nil, err
		}
		for _, col := range updCols {
			sets = append(sets, col+" = ?")
		}
		params = append(params, updParams...)
	}

	ret, err := returning(q.Returning)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s%s",
		table,
		strings.Join(cols, ", "),
		placeholders(len(cols)),
		strings.Join(target, ", "),
		strings.Join(sets, ", "),
		ret)
	return sql, params, nil
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return compileBinary(pred.Field, "=", pred.Value)
	case *queryir.Equals:
		return compileBinary(pred.Field, "=", pred.Value)
	case queryir.NotEquals:
		return compileBinary(pred.Field, "<>", pred.Value)
	case *queryir.NotEquals:
		return compileBinary(pred.Field, "<>", pred.Value)
	case queryir.Compare:
		return compileCompare(pred)
	case *queryir.Compare:
		return compileCompare(*pred)
	case queryir.In:
		return compileIn(pred)
	case *queryir.In:
		return compileIn(*pred)
	case queryir.IsNull:
		return compileIsNull(pred)
	case *queryir.IsNull:
		return compileIsNull(*pred)
	case queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")
	case *queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return c.compileJunction(pred.Predicates, " OR ", "1 = 0")
	case *queryir.Or:
		return c.compileJunction(pred.Predicates, " OR ", "1 = 0")
	case queryir.Not:
		return c.compileNot(pred)
	case *queryir.Not:
		return c.compileNot(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileBinary(field, op string, v ir.IRValue) (string, []any, error) {
	col, err := quote(field)
	if err != nil {
		return "", nil, err
	}
	if ir.IsNull(v) {
		return "", nil, fmt.Errorf("field %s compared to null", field)
	}
	param, err := irValueToParam(v)
	if err != nil {
		return "", nil, fmt.Errorf("convert value: %w", err)
	}
	return fmt.Sprintf("%s %s ?", col, op), []any{param}, nil
}

func compileCompare(cmp queryir.Compare) (string, []any, error) {
	switch cmp.Op {
	case queryir.OpLess, queryir.OpLessEqual, queryir.OpGreater, queryir.OpGreaterEqual, queryir.OpLike:
		return compileBinary(cmp.Field, string(cmp.Op), cmp.Value)
	default:
		return "", nil, fmt.Errorf("unsupported operator %q", cmp.Op)
	}
}

func compileIn(in queryir.In) (string, []any, error) {
	col, err := quote(in.Field)
	if err != nil {
		return "", nil, err
	}
	if len(in.Values) == 0 {
		return "1 = 0", nil, nil
	}
	params := make([]any, len(in.Values))
	for i, v := range in.Values {
		p, err := irValueToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("convert value: %w", err)
		}
		params[i] = p
	}
	return fmt.Sprintf("%s IN (%s)", col, placeholders(len(params))), params, nil
}

func compileIsNull(n queryir.IsNull) (string, []any, error) {
	col, err := quote(n.Field)
	if err != nil {
		return "", nil, err
	}
	if n.Not {
		return col + " IS NOT NULL", nil, nil
	}
	return col + " IS NULL", nil, nil
}

func (c *SQLCompiler) compileJunction(preds []queryir.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(preds))
	var params []any
	for _, p := range preds {
		sql, ps, err := c.compilePredicate(p)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}
	return "(" + strings.Join(parts, sep) + ")", params, nil
}

func (c *SQLCompiler) compileNot(n queryir.Not) (string, []any, error) {
	sql, params, err := c.compilePredicate(n.Predicate)
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", params, nil
}

// irValueToParam converts a scalar IRValue to a bind parameter.
// Arrays and objects are stored as JSON text.
func irValueToParam(v ir.IRValue) (any, error) {
	return ir.ToGo(v)
}
