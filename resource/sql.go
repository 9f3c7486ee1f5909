package resource

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bjaus/restroute/storage"
)

// SQLTableRepository serves table resources through a storage.Adapter.
type SQLTableRepository struct {
	Adapter *storage.Adapter
}

var _ TableRepository = (*SQLTableRepository)(nil)

func (r *SQLTableRepository) List(ctx context.Context, table, _ string, q ListQuery) (ListResult, error) {
	page, err := r.Adapter.List(ctx, storage.ListParams{
		Table:         table,
		Fields:        q.Fields,
		Filters:       q.Filters,
		SortField:     q.SortField,
		SortDirection: q.SortDirection,
		Page:          q.Page,
		PerPage:       q.PerPage,
	})
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: page.Items, Total: page.Total, Page: page.Page, PerPage: page.PerPage}, nil
}

func (r *SQLTableRepository) Get(ctx context.Context, table, primaryKey string, id int64, fields []string) (map[string]any, bool, error) {
	return r.Adapter.Get(ctx, table, primaryKey, id, fields)
}

func (r *SQLTableRepository) Create(ctx context.Context, table, primaryKey string, payload map[string]any, fields []string) (map[string]any, error) {
	return r.Adapter.Create(ctx, table, primaryKey, payload, fields)
}

func (r *SQLTableRepository) Update(ctx context.Context, table, primaryKey string, id int64, payload map[string]any, fields []string) (map[string]any, bool, error) {
	return r.Adapter.Update(ctx, table, primaryKey, id, payload, fields)
}

func (r *SQLTableRepository) Delete(ctx context.Context, table, primaryKey string, id int64) (bool, error) {
	return r.Adapter.Delete(ctx, table, primaryKey, id)
}

// postColumns maps content fields onto the columns of the posts table.
var postColumns = map[string]string{
	"id":      "ID",
	"title":   "post_title",
	"slug":    "post_name",
	"excerpt": "post_excerpt",
	"date":    "post_date_gmt",
	"status":  "post_status",
	"author":  "post_author",
	"content": "post_content",
	"type":    "post_type",
}

func postColumn(field string) string {
	if col, ok := postColumns[field]; ok {
		return col
	}
	return field
}

// SQLContentRepository serves content resources from a posts table holding
// every content type, discriminated by post_type.
type SQLContentRepository struct {
	Adapter *storage.Adapter
	// Table defaults to "posts"; the adapter's table prefix applies.
	Table string
}

var _ ContentRepository = (*SQLContentRepository)(nil)

func (r *SQLContentRepository) table() string {
	if r.Table == "" {
		return "posts"
	}
	return r.Table
}

func (r *SQLContentRepository) List(ctx context.Context, contentType string, q ListQuery) (ListResult, error) {
	filters := map[string]any{"post_type": contentType}
	var dates []storage.Compare
	for name, value := range q.Filters {
		switch name {
		case "after":
			dates = append(dates, storage.Compare{Operator: ">=", Value: value})
		case "before":
			dates = append(dates, storage.Compare{Operator: "<=", Value: value})
		default:
			filters[postColumn(name)] = value
		}
	}
	if len(dates) > 0 {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Operator > dates[j].Operator })
		filters["post_date_gmt"] = dates
	}

	sortField := ""
	if q.SortField != "" {
		sortField = postColumn(q.SortField)
	}
	page, err := r.Adapter.List(ctx, storage.ListParams{
		Table:         r.table(),
		Fields:        columnsFor(q.Fields),
		Filters:       filters,
		SortField:     sortField,
		SortDirection: q.SortDirection,
		Page:          q.Page,
		PerPage:       q.PerPage,
	})
	if err != nil {
		return ListResult{}, err
	}
	items := make([]map[string]any, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, projectPost(row, q.Fields))
	}
	return ListResult{Items: items, Total: page.Total, Page: page.Page, PerPage: page.PerPage}, nil
}

func (r *SQLContentRepository) Get(ctx context.Context, contentType string, id int64, fields []string) (map[string]any, bool, error) {
	row, ok, err := r.Adapter.First(ctx, r.table(), columnsFor(fields), map[string]any{"ID": id, "post_type": contentType})
	if err != nil || !ok {
		return nil, false, err
	}
	return projectPost(row, fields), true, nil
}

func (r *SQLContentRepository) Create(ctx context.Context, contentType string, payload map[string]any, fields []string) (map[string]any, error) {
	values := postValues(payload)
	values["post_type"] = contentType
	if _, ok := values["post_status"]; !ok {
		values["post_status"] = "draft"
	}
	row, err := r.Adapter.Create(ctx, r.table(), "ID", values, columnsFor(fields))
	if err != nil {
		return nil, err
	}
	return projectPost(row, fields), nil
}

func (r *SQLContentRepository) Update(ctx context.Context, contentType string, id int64, payload map[string]any, fields []string) (map[string]any, bool, error) {
	if _, ok, err := r.Get(ctx, contentType, id, []string{"id"}); err != nil || !ok {
		return nil, false, err
	}
	row, ok, err := r.Adapter.Update(ctx, r.table(), "ID", id, postValues(payload), columnsFor(fields))
	if err != nil || !ok {
		return nil, ok, err
	}
	return projectPost(row, fields), true, nil
}

func (r *SQLContentRepository) Delete(ctx context.Context, contentType string, id int64) (bool, error) {
	return r.Adapter.DeleteWhere(ctx, r.table(), map[string]any{"ID": id, "post_type": contentType})
}

func columnsFor(fields []string) []string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = postColumn(f)
	}
	return cols
}

func postValues(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[postColumn(k)] = v
	}
	return out
}

// projectPost renames post columns back to content fields. Ids are
// integers and dates are rendered as RFC 3339 with a numeric offset.
func projectPost(row map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v := row[postColumn(f)]
		switch f {
		case "id", "author":
			n, _ := storage.ToInt64(v)
			out[f] = n
		case "date":
			switch t := v.(type) {
			case time.Time:
				out[f] = t.Format(atomLayout)
			case nil:
				out[f] = ""
			default:
				out[f] = fmt.Sprint(t)
			}
		default:
			out[f] = v
		}
	}
	return out
}
