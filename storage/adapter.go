// Package storage runs CRUD statements against relational tables. Every
// identifier is validated before it reaches SQL and every value is bound
// through a placeholder.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Client executes prepared statements. Implementations bind args to the
// placeholders rendered by the adapter's Dialect.
type Client interface {
	QueryRows(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	QueryScalar(ctx context.Context, query string, args ...any) (any, error)
	Exec(ctx context.Context, query string, args ...any) (ExecResult, error)
}

// ExecResult reports the outcome of a write.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// Compare is a filter value applying an operator other than equality.
type Compare struct {
	Operator string
	Value    any
}

var operators = []string{"=", "!=", "<", "<=", ">", ">=", "LIKE"}

// IdentifierError reports a table or column name rejected before it reached SQL.
type IdentifierError struct {
	Kind string
	Name string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("Invalid %s name: %q", e.Kind, e.Name)
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s may be used as a table or column name.
func ValidIdentifier(s string) bool { return identifier.MatchString(s) }

// ListParams describes one page of a table listing.
type ListParams struct {
	Table         string
	Fields        []string
	Filters       map[string]any
	SortField     string
	SortDirection string
	Page          int
	PerPage       int
}

// Page is one page of rows plus the total row count matching the filters.
type Page struct {
	Items   []map[string]any
	Total   int
	Page    int
	PerPage int
}

// Adapter builds and runs CRUD statements through a Client.
type Adapter struct {
	client  Client
	dialect Dialect
	prefix  string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithDialect selects the SQL dialect. Default: WPDialect.
func WithDialect(d Dialect) Option {
	return func(a *Adapter) {
		a.dialect = d
	}
}

// WithTablePrefix prepends prefix to every table name.
func WithTablePrefix(prefix string) Option {
	return func(a *Adapter) {
		a.prefix = prefix
	}
}

// NewAdapter returns an Adapter running statements through client.
func NewAdapter(client Client, opts ...Option) *Adapter {
	a := &Adapter{client: client, dialect: WPDialect{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dialect returns the dialect in use.
func (a *Adapter) Dialect() Dialect { return a.dialect }

// List returns one page of rows and the total count.
func (a *Adapter) List(ctx context.Context, p ListParams) (Page, error) {
	table, err := a.table(p.Table)
	if err != nil {
		return Page{}, err
	}
	cols, err := a.columns(p.Fields)
	if err != nil {
		return Page{}, err
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}

	var b builder
	b.dialect = a.dialect
	where, err := b.where(p.Filters)
	if err != nil {
		return Page{}, err
	}

	query := "SELECT " + cols + " FROM " + table + where
	if p.SortField != "" {
		if !ValidIdentifier(p.SortField) {
			return Page{}, &IdentifierError{Kind: "sort field", Name: p.SortField}
		}
		dir := "ASC"
		if strings.EqualFold(p.SortDirection, "DESC") {
			dir = "DESC"
		}
		query += " ORDER BY " + a.dialect.Quote(p.SortField) + " " + dir
	}
	countArgs := slices.Clone(b.args)
	query += " LIMIT " + b.bind(p.PerPage) + " OFFSET " + b.bind((p.Page-1)*p.PerPage)

	rows, err := a.client.QueryRows(ctx, query, b.args...)
	if err != nil {
		return Page{}, fmt.Errorf("list %s: %w", p.Table, err)
	}
	total, err := a.client.QueryScalar(ctx, "SELECT COUNT(*) FROM "+table+where, countArgs...)
	if err != nil {
		return Page{}, fmt.Errorf("count %s: %w", p.Table, err)
	}
	n, _ := ToInt64(total)

	if rows == nil {
		rows = []map[string]any{}
	}
	return Page{Items: rows, Total: int(n), Page: p.Page, PerPage: p.PerPage}, nil
}

// Get returns the row whose primary key equals id.
func (a *Adapter) Get(ctx context.Context, table, primaryKey string, id int64, fields []string) (map[string]any, bool, error) {
	return a.First(ctx, table, fields, map[string]any{primaryKey: id})
}

// First returns the first row matching filters.
func (a *Adapter) First(ctx context.Context, table string, fields []string, filters map[string]any) (map[string]any, bool, error) {
	t, err := a.table(table)
	if err != nil {
		return nil, false, err
	}
	cols, err := a.columns(fields)
	if err != nil {
		return nil, false, err
	}
	var b builder
	b.dialect = a.dialect
	where, err := b.where(filters)
	if err != nil {
		return nil, false, err
	}
	query := "SELECT " + cols + " FROM " + t + where + " LIMIT " + b.bind(1)
	rows, err := a.client.QueryRows(ctx, query, b.args...)
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// Create inserts payload and returns the stored row.
func (a *Adapter) Create(ctx context.Context, table, primaryKey string, payload map[string]any, fields []string) (map[string]any, error) {
	t, err := a.table(table)
	if err != nil {
		return nil, err
	}
	if !ValidIdentifier(primaryKey) {
		return nil, &IdentifierError{Kind: "primary key", Name: primaryKey}
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("create %s: empty payload", table)
	}

	var b builder
	b.dialect = a.dialect
	keys := sortedKeys(payload)
	cols := make([]string, 0, len(keys))
	vals := make([]string, 0, len(keys))
	for _, k := range keys {
		if !ValidIdentifier(k) {
			return nil, &IdentifierError{Kind: "field", Name: k}
		}
		cols = append(cols, a.dialect.Quote(k))
		vals = append(vals, b.bind(payload[k]))
	}
	query := "INSERT INTO " + t + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")"

	var id int64
	if a.dialect.Returning() {
		raw, err := a.client.QueryScalar(ctx, query+" RETURNING "+a.dialect.Quote(primaryKey), b.args...)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", table, err)
		}
		id, _ = ToInt64(raw)
	} else {
		res, err := a.client.Exec(ctx, query, b.args...)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", table, err)
		}
		id = res.LastInsertID
	}

	row, ok, err := a.Get(ctx, table, primaryKey, id, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("create %s: row %d not found after insert", table, id)
	}
	return row, nil
}

// Update writes payload to the row with primary key id and returns the
// stored row, or false if no such row exists.
func (a *Adapter) Update(ctx context.Context, table, primaryKey string, id int64, payload map[string]any, fields []string) (map[string]any, bool, error) {
	t, err := a.table(table)
	if err != nil {
		return nil, false, err
	}
	if !ValidIdentifier(primaryKey) {
		return nil, false, &IdentifierError{Kind: "primary key", Name: primaryKey}
	}
	if len(payload) > 0 {
		var b builder
		b.dialect = a.dialect
		sets := make([]string, 0, len(payload))
		for _, k := range sortedKeys(payload) {
			if !ValidIdentifier(k) {
				return nil, false, &IdentifierError{Kind: "field", Name: k}
			}
			sets = append(sets, a.dialect.Quote(k)+" = "+b.bind(payload[k]))
		}
		query := "UPDATE " + t + " SET " + strings.Join(sets, ", ") +
			" WHERE " + a.dialect.Quote(primaryKey) + " = " + b.bind(id)
		if _, err := a.client.Exec(ctx, query, b.args...); err != nil {
			return nil, false, fmt.Errorf("update %s: %w", table, err)
		}
	}
	return a.Get(ctx, table, primaryKey, id, fields)
}

// Delete removes the row with primary key id and reports whether a row was removed.
func (a *Adapter) Delete(ctx context.Context, table, primaryKey string, id int64) (bool, error) {
	return a.DeleteWhere(ctx, table, map[string]any{primaryKey: id})
}

// DeleteWhere removes the rows matching filters.
func (a *Adapter) DeleteWhere(ctx context.Context, table string, filters map[string]any) (bool, error) {
	t, err := a.table(table)
	if err != nil {
		return false, err
	}
	if len(filters) == 0 {
		return false, fmt.Errorf("delete %s: refusing to delete without conditions", table)
	}
	var b builder
	b.dialect = a.dialect
	where, err := b.where(filters)
	if err != nil {
		return false, err
	}
	res, err := a.client.Exec(ctx, "DELETE FROM "+t+where, b.args...)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", table, err)
	}
	return res.RowsAffected > 0, nil
}

func (a *Adapter) table(name string) (string, error) {
	full := a.prefix + name
	if !ValidIdentifier(full) {
		return "", &IdentifierError{Kind: "table", Name: full}
	}
	return a.dialect.Quote(full), nil
}

func (a *Adapter) columns(fields []string) (string, error) {
	if len(fields) == 0 {
		return "*", nil
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		if !ValidIdentifier(f) {
			return "", &IdentifierError{Kind: "field", Name: f}
		}
		quoted = append(quoted, a.dialect.Quote(f))
	}
	return strings.Join(quoted, ", "), nil
}

// builder accumulates bound values while a statement is rendered.
type builder struct {
	dialect Dialect
	args    []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.dialect.Placeholder(len(b.args), v)
}

// where renders filters in sorted key order. Slices become IN lists, nil
// becomes IS NULL, Compare values use their operator and a []Compare adds
// one condition per element.
func (b *builder) where(filters map[string]any) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(filters))
	for _, key := range sortedKeys(filters) {
		if !ValidIdentifier(key) {
			return "", &IdentifierError{Kind: "field", Name: key}
		}
		col := b.dialect.Quote(key)
		switch v := filters[key].(type) {
		case nil:
			conds = append(conds, col+" IS NULL")
		case Compare:
			cond, err := b.compare(col, v)
			if err != nil {
				return "", err
			}
			conds = append(conds, cond)
		case []Compare:
			for _, c := range v {
				cond, err := b.compare(col, c)
				if err != nil {
					return "", err
				}
				conds = append(conds, cond)
			}
		case []string:
			conds = append(conds, b.in(col, anySlice(v)))
		case []int:
			conds = append(conds, b.in(col, anySlice(v)))
		case []int64:
			conds = append(conds, b.in(col, anySlice(v)))
		case []any:
			conds = append(conds, b.in(col, v))
		default:
			conds = append(conds, col+" = "+b.bind(v))
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), nil
}

func (b *builder) compare(col string, c Compare) (string, error) {
	op := strings.ToUpper(c.Operator)
	if !slices.Contains(operators, op) {
		return "", fmt.Errorf("unsupported operator %q for %s", c.Operator, col)
	}
	return col + " " + op + " " + b.bind(c.Value), nil
}

func (b *builder) in(col string, values []any) string {
	if len(values) == 0 {
		return "1 = 0"
	}
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = b.bind(v)
	}
	return col + " IN (" + strings.Join(ph, ", ") + ")"
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ToInt64 converts the integer representations drivers return.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}
