package resource

import (
	"context"
	"net/http"
	"slices"

	"github.com/bjaus/restroute"
)

// source hides whether a resource is backed by content or a table.
type source interface {
	list(ctx context.Context, q ListQuery) (ListResult, error)
	get(ctx context.Context, id int64, fields []string) (map[string]any, bool, error)
	create(ctx context.Context, payload map[string]any, fields []string) (map[string]any, error)
	update(ctx context.Context, id int64, payload map[string]any, fields []string) (map[string]any, bool, error)
	delete(ctx context.Context, id int64) (bool, error)
}

type contentSource struct {
	repo        ContentRepository
	contentType string
}

func (s contentSource) list(ctx context.Context, q ListQuery) (ListResult, error) {
	return s.repo.List(ctx, s.contentType, q)
}

func (s contentSource) get(ctx context.Context, id int64, fields []string) (map[string]any, bool, error) {
	return s.repo.Get(ctx, s.contentType, id, fields)
}

func (s contentSource) create(ctx context.Context, payload map[string]any, fields []string) (map[string]any, error) {
	return s.repo.Create(ctx, s.contentType, payload, fields)
}

func (s contentSource) update(ctx context.Context, id int64, payload map[string]any, fields []string) (map[string]any, bool, error) {
	return s.repo.Update(ctx, s.contentType, id, payload, fields)
}

func (s contentSource) delete(ctx context.Context, id int64) (bool, error) {
	return s.repo.Delete(ctx, s.contentType, id)
}

type tableSource struct {
	repo       TableRepository
	table      string
	primaryKey string
}

func (s tableSource) list(ctx context.Context, q ListQuery) (ListResult, error) {
	return s.repo.List(ctx, s.table, s.primaryKey, q)
}

func (s tableSource) get(ctx context.Context, id int64, fields []string) (map[string]any, bool, error) {
	return s.repo.Get(ctx, s.table, s.primaryKey, id, fields)
}

func (s tableSource) create(ctx context.Context, payload map[string]any, fields []string) (map[string]any, error) {
	return s.repo.Create(ctx, s.table, s.primaryKey, payload, fields)
}

func (s tableSource) update(ctx context.Context, id int64, payload map[string]any, fields []string) (map[string]any, bool, error) {
	return s.repo.Update(ctx, s.table, s.primaryKey, id, payload, fields)
}

func (s tableSource) delete(ctx context.Context, id int64) (bool, error) {
	return s.repo.Delete(ctx, s.table, s.primaryKey, id)
}

func (r *Resource) source() source {
	if r.table != "" {
		return tableSource{repo: r.tables, table: r.table, primaryKey: r.primaryKey}
	}
	return contentSource{repo: r.content, contentType: r.contentType}
}

type handlers struct {
	res    *Resource
	parser *QueryParser
	source source
}

func (h *handlers) isContent() bool { return h.res.table == "" }

func (h *handlers) list(rc restroute.RequestContext, req restroute.Request) (any, error) {
	q, err := h.parser.Parse(req.QueryParams())
	if err != nil {
		return nil, err
	}

	allowed := h.res.visibleStatuses
	if h.isContent() {
		if requested, ok := q.Filters["status"]; ok {
			allowed = statusList(requested)
		} else if len(h.res.visibleStatuses) > 0 {
			if len(h.res.visibleStatuses) == 1 {
				q.Filters["status"] = h.res.visibleStatuses[0]
			} else {
				q.Filters["status"] = append([]string(nil), h.res.visibleStatuses...)
			}
		}
	}

	result, err := h.source.list(rc.Context(), q)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(result.Items))
	for _, item := range result.Items {
		if h.isContent() && !h.visible(item, allowed, rc) {
			continue
		}
		items = append(items, project(item, q.Fields))
	}

	page, perPage := result.Page, result.PerPage
	if page == 0 {
		page = q.Page
	}
	if perPage == 0 {
		perPage = q.PerPage
	}
	return map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":    page,
			"perPage": perPage,
			"total":   result.Total,
		},
	}, nil
}

func (h *handlers) get(rc restroute.RequestContext, req restroute.Request) (any, error) {
	id, ok := parseID(req)
	if !ok {
		return nil, restroute.NotFound("")
	}
	item, found, err := h.source.get(rc.Context(), id, h.res.fields)
	if err != nil {
		return nil, err
	}
	if !found || (h.isContent() && !h.visible(item, h.res.visibleStatuses, rc)) {
		return nil, restroute.NotFound("")
	}
	return project(item, h.res.fields), nil
}

func (h *handlers) create(rc restroute.RequestContext, req restroute.Request) (any, error) {
	payload, err := h.payload(req)
	if err != nil {
		return nil, err
	}
	item, err := h.source.create(rc.Context(), payload, h.res.fields)
	if err != nil {
		return nil, err
	}
	return restroute.NewResponse(project(item, h.res.fields), http.StatusCreated), nil
}

func (h *handlers) update(rc restroute.RequestContext, req restroute.Request) (any, error) {
	id, ok := parseID(req)
	if !ok {
		return nil, restroute.NotFound("")
	}
	payload, err := h.payload(req)
	if err != nil {
		return nil, err
	}
	item, found, err := h.source.update(rc.Context(), id, payload, h.res.fields)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, restroute.NotFound("")
	}
	return project(item, h.res.fields), nil
}

func (h *handlers) delete(rc restroute.RequestContext, req restroute.Request) (any, error) {
	id, ok := parseID(req)
	if !ok {
		return nil, restroute.NotFound("")
	}
	deleted, err := h.source.delete(rc.Context(), id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, restroute.NotFound("")
	}
	return map[string]any{
		"data": map[string]any{"id": id, "deleted": true},
	}, nil
}

// payload reads the write payload from the JSON body, the form body, or the
// merged parameters without path parameters, in that order.
func (h *handlers) payload(req restroute.Request) (map[string]any, error) {
	raw := req.JSONParams()
	if len(raw) == 0 {
		raw = req.BodyParams()
	}
	if len(raw) == 0 {
		raw = req.Params()
		for k := range req.PathParams() {
			delete(raw, k)
		}
	}
	if len(raw) == 0 {
		return nil, restroute.ValidationFailed(map[string][]string{"payload": {"must not be empty"}})
	}

	idField := h.res.idField()
	fieldErrors := map[string][]string{}
	payload := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == idField || !slices.Contains(h.res.fields, k) {
			fieldErrors[k] = []string{"field not allowed"}
			continue
		}
		payload[k] = v
	}
	if len(fieldErrors) > 0 {
		return nil, restroute.ValidationFailed(fieldErrors)
	}
	return payload, nil
}

// visible reports whether a content item passes the status and visibility
// checks. Items without a status, or an empty status list, pass the status
// check.
func (h *handlers) visible(item map[string]any, statuses []string, rc restroute.RequestContext) bool {
	if status, ok := item["status"]; ok && len(statuses) > 0 {
		s, _ := status.(string)
		if !slices.Contains(statuses, s) {
			return false
		}
	}
	if h.res.visibility != nil && !h.res.visibility(item, rc) {
		return false
	}
	return true
}

func statusList(v any) []string {
	switch s := v.(type) {
	case string:
		return []string{s}
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
