package resource

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// memoryRows is a mutex-guarded row set with sequential ids.
type memoryRows struct {
	mu     sync.Mutex
	rows   map[int64]map[string]any
	nextID int64
}

func (m *memoryRows) init() {
	if m.rows == nil {
		m.rows = map[int64]map[string]any{}
	}
}

func (m *memoryRows) list(q ListQuery, idField string, match func(row map[string]any, name string, want any) bool) ListResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()

	matched := make([]map[string]any, 0, len(m.rows))
	for _, row := range m.rows {
		ok := true
		for name, want := range q.Filters {
			if !match(row, name, want) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, row)
		}
	}

	sortField := q.SortField
	if sortField == "" {
		sortField = idField
	}
	slices.SortStableFunc(matched, func(a, b map[string]any) int {
		c := cmp.Compare(fmt.Sprint(a[sortField]), fmt.Sprint(b[sortField]))
		if x, ok := a[sortField].(int64); ok {
			if y, ok := b[sortField].(int64); ok {
				c = cmp.Compare(x, y)
			}
		}
		if q.SortDirection == SortDesc {
			return -c
		}
		return c
	})

	page := q.Page
	if page < 1 {
		page = 1
	}
	perPage := q.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	start := len(matched)
	if page-1 <= len(matched)/perPage {
		start = (page - 1) * perPage
	}
	end := min(start+perPage, len(matched))

	items := make([]map[string]any, 0, end-start)
	for _, row := range matched[start:end] {
		items = append(items, project(maps.Clone(row), q.Fields))
	}
	return ListResult{Items: items, Total: len(matched), Page: page, PerPage: perPage}
}

func (m *memoryRows) get(id int64, fields []string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	row, ok := m.rows[id]
	if !ok {
		return nil, false
	}
	return project(maps.Clone(row), fields), true
}

func (m *memoryRows) create(idField string, payload map[string]any, fields []string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.nextID++
	row := maps.Clone(payload)
	row[idField] = m.nextID
	m.rows[m.nextID] = row
	return project(maps.Clone(row), fields)
}

func (m *memoryRows) update(id int64, payload map[string]any, fields []string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	row, ok := m.rows[id]
	if !ok {
		return nil, false
	}
	for k, v := range payload {
		row[k] = v
	}
	return project(maps.Clone(row), fields), true
}

func (m *memoryRows) delete(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if _, ok := m.rows[id]; !ok {
		return false
	}
	delete(m.rows, id)
	return true
}

func equalsFilter(row map[string]any, name string, want any) bool {
	got := fmt.Sprint(row[name])
	switch w := want.(type) {
	case []string:
		return slices.Contains(w, got)
	case []any:
		for _, v := range w {
			if fmt.Sprint(v) == got {
				return true
			}
		}
		return false
	default:
		return fmt.Sprint(w) == got
	}
}

// MemoryTable is an in-memory TableRepository holding one row set per table.
type MemoryTable struct {
	mu     sync.Mutex
	tables map[string]*memoryRows
}

var _ TableRepository = (*MemoryTable)(nil)

// NewMemoryTable returns an empty MemoryTable.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{tables: map[string]*memoryRows{}}
}

func (t *MemoryTable) rows(table string) *memoryRows {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tables == nil {
		t.tables = map[string]*memoryRows{}
	}
	rows, ok := t.tables[table]
	if !ok {
		rows = &memoryRows{}
		t.tables[table] = rows
	}
	return rows
}

func (t *MemoryTable) List(_ context.Context, table, primaryKey string, q ListQuery) (ListResult, error) {
	return t.rows(table).list(q, primaryKey, equalsFilter), nil
}

func (t *MemoryTable) Get(_ context.Context, table, _ string, id int64, fields []string) (map[string]any, bool, error) {
	row, ok := t.rows(table).get(id, fields)
	return row, ok, nil
}

func (t *MemoryTable) Create(_ context.Context, table, primaryKey string, payload map[string]any, fields []string) (map[string]any, error) {
	return t.rows(table).create(primaryKey, payload, fields), nil
}

func (t *MemoryTable) Update(_ context.Context, table, _ string, id int64, payload map[string]any, fields []string) (map[string]any, bool, error) {
	row, ok := t.rows(table).update(id, payload, fields)
	return row, ok, nil
}

func (t *MemoryTable) Delete(_ context.Context, table, _ string, id int64) (bool, error) {
	return t.rows(table).delete(id), nil
}

// MemoryContent is an in-memory ContentRepository. The after and before
// filters compare against the date field.
type MemoryContent struct {
	tables MemoryTable
}

var _ ContentRepository = (*MemoryContent)(nil)

// NewMemoryContent returns an empty MemoryContent.
func NewMemoryContent() *MemoryContent {
	return &MemoryContent{}
}

func contentFilter(row map[string]any, name string, want any) bool {
	switch name {
	case "after":
		return fmt.Sprint(row["date"]) >= fmt.Sprint(want)
	case "before":
		return fmt.Sprint(row["date"]) <= fmt.Sprint(want)
	}
	return equalsFilter(row, name, want)
}

func (c *MemoryContent) List(_ context.Context, contentType string, q ListQuery) (ListResult, error) {
	return c.tables.rows(contentType).list(q, "id", contentFilter), nil
}

func (c *MemoryContent) Get(ctx context.Context, contentType string, id int64, fields []string) (map[string]any, bool, error) {
	return c.tables.Get(ctx, contentType, "id", id, fields)
}

func (c *MemoryContent) Create(ctx context.Context, contentType string, payload map[string]any, fields []string) (map[string]any, error) {
	if _, ok := payload["status"]; !ok {
		payload = maps.Clone(payload)
		payload["status"] = "draft"
	}
	return c.tables.Create(ctx, contentType, "id", payload, fields)
}

func (c *MemoryContent) Update(ctx context.Context, contentType string, id int64, payload map[string]any, fields []string) (map[string]any, bool, error) {
	return c.tables.Update(ctx, contentType, "id", id, payload, fields)
}

func (c *MemoryContent) Delete(ctx context.Context, contentType string, id int64) (bool, error) {
	return c.tables.Delete(ctx, contentType, "id", id)
}
