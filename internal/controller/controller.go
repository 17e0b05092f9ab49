package controller

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/metrics"
	"github.com/roach88/cogd/internal/queryir"
	"github.com/roach88/cogd/internal/store"
)

const tracerName = "github.com/roach88/cogd/internal/controller"

// Record is implemented by every record type.
type Record interface {
	// Schema returns the record type's static schema. It must not depend on
	// the receiver's field values.
	Schema() *Schema
	// Fields returns the record's column values.
	Fields() ir.IRObject
}

// Model constrains P to be a pointer to T that implements Record and can
// populate itself from a row.
type Model[T any] interface {
	*T
	Record
	Scan(row ir.IRObject) error
}

// Query selects a list of records.
type Query struct {
	Where  queryir.Predicate
	Order  []queryir.OrderBy
	Limit  int
	Offset int
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	logger *logging.Logger
}

// WithLogger sets the controller's logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Controller is the data-access object for one record type. All generic
// CRUD, transaction and relation logic lives here; type-specific
// controllers embed it.
type Controller[T any, P Model[T]] struct {
	schema *Schema
	client *store.Client
	logger *logging.Logger
	tracer trace.Tracer
}

// New binds a controller to record type T.
//
//	wikis, err := controller.New[model.Wiki](client)
func New[T any, P Model[T]](client *store.Client, opts ...Option) (*Controller[T, P], error) {
	if client == nil {
		return nil, fmt.Errorf("controller needs a store client")
	}
	o := options{logger: logging.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	schema := P(&zero).Schema()
	if schema == nil {
		return nil, fmt.Errorf("record type %T has no schema", zero)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	return &Controller[T, P]{
		schema: schema,
		client: client,
		logger: o.logger.Named("controller").With(zap.String("record", schema.Name)),
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Schema returns the bound schema.
func (c *Controller[T, P]) Schema() *Schema { return c.schema }

// Client returns the store client.
func (c *Controller[T, P]) Client() *store.Client { return c.client }

func (c *Controller[T, P]) observe(ctx context.Context, op string) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, c.schema.Name+"."+op,
		trace.WithAttributes(
			attribute.String("record.type", c.schema.Name),
			attribute.String("record.op", op),
		))
	return ctx, func(errp *error) {
		result := "ok"
		if err := *errp; err != nil {
			result = "error"
			if IsNotFound(err) {
				result = "not_found"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Debug(ctx, "controller operation failed", zap.String("op", op), zap.Error(err))
		}
		span.End()
		metrics.ObserveController(c.schema.Name, op, result, start)
	}
}

func (c *Controller[T, P]) scan(row ir.IRObject) (P, error) {
	var t T
	p := P(&t)
	if err := p.Scan(row); err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.schema.Name, err)
	}
	return p, nil
}

func (c *Controller[T, P]) checkSelector(op string, sel ir.IRObject) error {
	if len(sel) == 0 {
		return newError(CodeInvalidArgument, op, c.schema.Name, "empty selector")
	}
	if !c.schema.IsUniqueSelector(sel) {
		return newError(CodeInvalidArgument, op, c.schema.Name,
			"selector %v is not the key or a unique field set", sel.SortedKeys())
	}
	for k, v := range sel {
		if ir.IsNull(v) {
			return newError(CodeInvalidArgument, op, c.schema.Name, "selector field %q is null", k)
		}
	}
	return nil
}

func (c *Controller[T, P]) checkData(op string, data ir.IRObject) error {
	if bad := c.schema.unknownColumns(data); len(bad) > 0 {
		return newError(CodeInvalidArgument, op, c.schema.Name, "unknown fields %v", bad)
	}
	return nil
}

func (c *Controller[T, P]) checkPredicate(op string, where queryir.Predicate) error {
	if where == nil {
		return nil
	}
	res := queryir.Validate(queryir.Count{From: c.schema.Table, Filter: where}, c.schema.columnsFn())
	if !res.Valid {
		return newError(CodeInvalidArgument, op, c.schema.Name, "invalid filter: %v", res.Problems)
	}
	return nil
}

// applyRefs resolves refs and writes each target key into data.
func (c *Controller[T, P]) applyRefs(ctx context.Context, op string, data ir.IRObject, refs []RelationRef) (ir.IRObject, error) {
	out := data.Clone()
	for _, ref := range refs {
		if _, dup := data[ref.Field]; dup {
			return nil, newError(CodeInvalidArgument, op, c.schema.Name,
				"field %q given both as a value and as a relation", ref.Field)
		}
		resolved, err := resolveRef(ctx, c.client, c.schema, ref)
		if err != nil {
			return nil, err
		}
		key, _ := resolved.Key()
		out[ref.Field] = key
	}
	return out, nil
}

// FindUnique returns the record matching key, or nil if there is none.
// key must cover exactly the primary key or one unique field set.
func (c *Controller[T, P]) FindUnique(ctx context.Context, key ir.IRObject) (rec P, err error) {
	const op = "find_unique"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	if err := c.checkSelector(op, key); err != nil {
		return nil, err
	}
	row, ok, err := c.client.QueryOne(ctx, queryir.Select{
		From:   c.schema.Table,
		Filter: queryir.Match(key),
		Key:    c.schema.Key,
		Limit:  1,
	})
	if err != nil {
		return nil, wrapStore(op, c.schema.Name, err)
	}
	if !ok {
		return nil, nil
	}
	return c.scan(row)
}

// FindMany returns every record matching q in a deterministic order: q's
// order (or the schema default) followed by the primary key.
func (c *Controller[T, P]) FindMany(ctx context.Context, q Query) (recs []P, err error) {
	const op = "find_many"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	order := q.Order
	if len(order) == 0 {
		order = c.schema.DefaultOrder
	}
	sel := queryir.Select{
		From:   c.schema.Table,
		Filter: q.Where,
		Order:  order,
		Key:    c.schema.Key,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if res := queryir.Validate(sel, c.schema.columnsFn()); !res.Valid {
		return nil, newError(CodeInvalidArgument, op, c.schema.Name, "invalid query: %v", res.Problems)
	}

	rows, err := c.client.Query(ctx, sel)
	if err != nil {
		return nil, wrapStore(op, c.schema.Name, err)
	}
	out := make([]P, 0, len(rows))
	for _, row := range rows {
		p, err := c.scan(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// FindFirst returns the first record FindMany would return, or nil.
func (c *Controller[T, P]) FindFirst(ctx context.Context, q Query) (P, error) {
	q.Limit = 1
	recs, err := c.FindMany(ctx, q)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Count returns the number of records matching where.
func (c *Controller[T, P]) Count(ctx context.Context, where queryir.Predicate) (n int64, err error) {
	const op = "count"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	if err := c.checkPredicate(op, where); err != nil {
		return 0, err
	}
	n, err = c.client.Count(ctx, queryir.Count{From: c.schema.Table, Filter: where})
	if err != nil {
		return 0, wrapStore(op, c.schema.Name, err)
	}
	return n, nil
}

// Exists reports whether any record matches where.
func (c *Controller[T, P]) Exists(ctx context.Context, where queryir.Predicate) (bool, error) {
	n, err := c.Count(ctx, where)
	return n > 0, err
}

// Create inserts a record. Every relation ref is connected or created in
// the same transaction as the insert; the returned record carries the
// resolved keys.
func (c *Controller[T, P]) Create(ctx context.Context, data ir.IRObject, refs ...RelationRef) (rec P, err error) {
	const op = "create"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	if err := c.checkData(op, data); err != nil {
		return nil, err
	}

	err = c.client.RunInTx(ctx, func(ctx context.Context) error {
		values, err := c.applyRefs(ctx, op, data, refs)
		if err != nil {
			return err
		}
		for _, col := range c.schema.Required {
			if v, ok := values[col]; !ok || ir.IsNull(v) {
				return newError(CodeInvalidArgument, op, c.schema.Name, "required field %q is missing", col)
			}
		}

		row, ok, err := c.client.QueryOne(ctx, queryir.Insert{
			Into:      c.schema.Table,
			Values:    values,
			Returning: c.schema.Columns,
		})
		if err != nil {
			return err
		}
		if !ok {
			return newError(CodeStoreUnavailable, op, c.schema.Name, "insert returned no row")
		}
		rec, err = c.scan(row)
		return err
	})
	if err != nil {
		return nil, wrapStore(op, c.schema.Name, err)
	}
	return rec, nil
}

// Update modifies the single record matching the unique selector where.
// It returns ErrNotFound if nothing matched.
func (c *Controller[T, P]) Update(ctx context.Context, where, data ir.IRObject, refs ...RelationRef) (rec P, err error) {
	const op = "update"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	if err := c.checkSelector(op, where); err != nil {
		return nil, err
	}
	if err := c.checkData(op, data); err != nil {
		return nil, err
	}
	if len(data) == 0 && len(refs) == 0 {
		return nil, newError(CodeInvalidArgument, op, c.schema.Name, "nothing to update")
	}

	err = c.client.RunInTx(ctx, func(ctx context.Context) error {
		set, err := c.applyRefs(ctx, op, data, refs)
		if err != nil {
			return err
		}
		row, ok, err := c.client.QueryOne(ctx, queryir.Update{
			Table:     c.schema.Table,
			Set:       set,
			Filter:    queryir.Match(where),
			Returning: c.schema.Columns,
		})
		if err != nil {
			return err
		}
		if !ok {
			return newError(CodeNotFound, op, c.schema.Name, "no record matches %v", where.SortedKeys())
		}
		rec, err = c.scan(row)
		return err
	})
	if err != nil {
		return nil, wrapStore(op, c.schema.Name, err)
	}
	return rec, nil
}

// Delete removes the single record matching the unique selector where and
// returns it. It returns ErrNotFound if nothing matched.
func (c *Controller[T, P]) Delete(ctx context.Context, where ir.IRObject) (rec P, err error) {
	const op = "delete"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	if err := c.checkSelector(op, where); err != nil {
		return nil, err
	}
	row, ok, err := c.client.QueryOne(ctx, queryir.Delete{
		From:      c.schema.Table,
		Filter:    queryir.Match(where),
		Returning: c.schema.Columns,
	})
	if err != nil {
		return nil, wrapStore(op, c.schema.Name, err)
	}
	if !ok {
		return nil, newError(CodeNotFound, op, c.schema.Name, "no record matches %v", where.SortedKeys())
	}
	return c.scan(row)
}

// UpdateMany applies data to every record matching where and returns the
// count. Zero is not an error.
func (c *Controller[T, P]) UpdateMany(ctx context.Context, where queryir.Predicate, data ir.IRObject) (n int64, err error) {
	const op = "update_many"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	if len(data) == 0 {
		return 0, newError(CodeInvalidArgument, op, c.schema.Name, "nothing to update")
	}
	if err := c.checkData(op, data); err != nil {
		return 0, err
	}
	if err := c.checkPredicate(op, where); err != nil {
		return 0, err
	}
	n, err = c.client.Exec(ctx, queryir.Update{Table: c.schema.Table, Set: data, Filter: where})
	if err != nil {
		return 0, wrapStore(op, c.schema.Name, err)
	}
	return n, nil
}

// DeleteMany removes every record matching where and returns the count.
func (c *Controller[T, P]) DeleteMany(ctx context.Context, where queryir.Predicate) (n int64, err error) {
	const op = "delete_many"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	if err := c.checkPredicate(op, where); err != nil {
		return 0, err
	}
	n, err = c.client.Exec(ctx, queryir.Delete{From: c.schema.Table, Filter: where})
	if err != nil {
		return 0, wrapStore(op, c.schema.Name, err)
	}
	return n, nil
}

// Upsert inserts create merged with where, or, when a record matching the
// unique selector where exists, applies update to it. One statement.
func (c *Controller[T, P]) Upsert(ctx context.Context, where, create, update ir.IRObject) (rec P, err error) {
	const op = "upsert"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	if err := c.checkSelector(op, where); err != nil {
		return nil, err
	}
	if err := c.checkData(op, create); err != nil {
		return nil, err
	}
	if err := c.checkData(op, update); err != nil {
		return nil, err
	}

	row, ok, err := c.client.QueryOne(ctx, queryir.Upsert{
		Into:       c.schema.Table,
		Values:     create.Merge(where),
		ConflictOn: where.SortedKeys(),
		Update:     update,
		Returning:  c.schema.Columns,
	})
	if err != nil {
		return nil, wrapStore(op, c.schema.Name, err)
	}
	if !ok {
		return nil, newError(CodeStoreUnavailable, op, c.schema.Name, "upsert returned no row")
	}
	return c.scan(row)
}

// ExecuteTransaction runs work in one transaction. Controller calls made
// with the context passed to work join it. It commits iff work returns nil;
// an error or panic rolls back, and a panic is re-raised. Only acquiring
// the transaction is retried, once, on contention. A call inside another
// transaction joins it.
func (c *Controller[T, P]) ExecuteTransaction(ctx context.Context, work func(ctx context.Context) error) (err error) {
	const op = "transaction"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	return wrapStore(op, c.schema.Name, c.client.RunInTx(ctx, work))
}

// ResolveRelation connects or creates the target row of field's relation
// identified by lookup and returns a reference bound to its key.
// createDefaults are written only when the row is created; it may be nil.
func (c *Controller[T, P]) ResolveRelation(ctx context.Context, field string, lookup, createDefaults ir.IRObject) (ref RelationRef, err error) {
	const op = "resolve_relation"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	return resolveRef(ctx, c.client, c.schema, ConnectOrCreate(field, lookup).WithCreate(createDefaults))
}

// Include fetches the row rec's relation field points at. It returns nil
// when the field is null or the target row is gone.
func (c *Controller[T, P]) Include(ctx context.Context, rec P, field string) (row ir.IRObject, err error) {
	const op = "include"
	ctx, done := c.observe(ctx, op)
	defer done(&err)

	rel, ok := c.schema.Relation(field)
	if !ok {
		return nil, newError(CodeInvalidArgument, op, c.schema.Name, "%q is not a relation", field)
	}
	key := SafeGetAttr(rec, field, ir.IRNull{})
	if ir.IsNull(key) {
		return nil, nil
	}
	row, _, err = c.client.QueryOne(ctx, queryir.Select{
		From:   rel.Target,
		Filter: queryir.Eq(rel.TargetKey, key),
		Key:    []string{rel.TargetKey},
		Limit:  1,
	})
	if err != nil {
		return nil, wrapStore(op, c.schema.Name, err)
	}
	return row, nil
}
