package resource

import "context"

// ListResult is one page of items.
type ListResult struct {
	Items   []map[string]any
	Total   int
	Page    int
	PerPage int
}

// ContentRepository reads and writes items of host-managed content types.
// Get and Update report false when the item does not exist.
type ContentRepository interface {
	List(ctx context.Context, contentType string, q ListQuery) (ListResult, error)
	Get(ctx context.Context, contentType string, id int64, fields []string) (map[string]any, bool, error)
	Create(ctx context.Context, contentType string, payload map[string]any, fields []string) (map[string]any, error)
	Update(ctx context.Context, contentType string, id int64, payload map[string]any, fields []string) (map[string]any, bool, error)
	Delete(ctx context.Context, contentType string, id int64) (bool, error)
}

// TableRepository reads and writes rows of a physical table identified by
// name and primary key.
type TableRepository interface {
	List(ctx context.Context, table, primaryKey string, q ListQuery) (ListResult, error)
	Get(ctx context.Context, table, primaryKey string, id int64, fields []string) (map[string]any, bool, error)
	Create(ctx context.Context, table, primaryKey string, payload map[string]any, fields []string) (map[string]any, error)
	Update(ctx context.Context, table, primaryKey string, id int64, payload map[string]any, fields []string) (map[string]any, bool, error)
	Delete(ctx context.Context, table, primaryKey string, id int64) (bool, error)
}

// project keeps only fields of item, filling absent fields with nil.
func project(item map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return item
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = item[f]
	}
	return out
}
