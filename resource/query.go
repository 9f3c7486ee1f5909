package resource

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bjaus/restroute"
)

// Sort directions.
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// Pagination defaults.
const (
	DefaultPerPage    = 20
	DefaultMaxPerPage = 100
	DefaultMaxOffset  = 10000
)

// ListQuery is a validated list request.
type ListQuery struct {
	Fields        []string
	Filters       map[string]any
	SortField     string
	SortDirection string
	Page          int
	PerPage       int
}

// Offset returns the number of rows skipped before the page.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.PerPage
}

// FilterType is the type a filter value is coerced to.
type FilterType string

// Filter types.
const (
	FilterString FilterType = "string"
	FilterInt    FilterType = "int"
	FilterFloat  FilterType = "float"
	FilterBool   FilterType = "bool"
	FilterDate   FilterType = "date"
	FilterEnum   FilterType = "enum"
)

// FilterRule declares how one filter is coerced. Enum rules list their
// allowed values.
type FilterRule struct {
	Type   FilterType
	Values []string
}

// QueryRules configures a QueryParser.
type QueryRules struct {
	Fields         []string
	Filters        []string
	Sort           []string
	FilterSchema   map[string]FilterRule
	DefaultPerPage int // default: 20
	MaxPerPage     int // default: 100
	MaxOffset      int // default: 10000; negative is invalid
}

// QueryParser turns raw list parameters into a ListQuery.
type QueryParser struct {
	rules QueryRules
}

// NewQueryParser validates rules and returns a parser. A zero MaxOffset
// means the default; use NoOffset to forbid paging past the first page.
func NewQueryParser(rules QueryRules) (*QueryParser, error) {
	if rules.DefaultPerPage == 0 {
		rules.DefaultPerPage = DefaultPerPage
	}
	if rules.MaxPerPage == 0 {
		rules.MaxPerPage = DefaultMaxPerPage
	}
	switch {
	case rules.MaxOffset == 0:
		rules.MaxOffset = DefaultMaxOffset
	case rules.MaxOffset == NoOffset:
		rules.MaxOffset = 0
	case rules.MaxOffset < 0:
		return nil, &restroute.ConfigError{Message: "max offset must be greater than or equal to 0"}
	}
	if rules.DefaultPerPage < 1 || rules.DefaultPerPage > rules.MaxPerPage {
		return nil, &restroute.ConfigError{Message: fmt.Sprintf(
			"pagination requires 1 <= default per page (%d) <= max per page (%d)", rules.DefaultPerPage, rules.MaxPerPage)}
	}
	for name, rule := range rules.FilterSchema {
		switch rule.Type {
		case FilterString, FilterInt, FilterFloat, FilterBool, FilterDate, "":
		case FilterEnum:
			if !slices.ContainsFunc(rule.Values, func(v string) bool { return v != "" }) {
				return nil, &restroute.ConfigError{Message: fmt.Sprintf("enum filter %s requires a non-empty values list", name)}
			}
		default:
			return nil, &restroute.ConfigError{Message: fmt.Sprintf("filter %s has unsupported type %s", name, rule.Type)}
		}
	}
	return &QueryParser{rules: rules}, nil
}

// NoOffset as QueryRules.MaxOffset restricts lists to their first page.
const NoOffset = math.MinInt

// Rules returns the effective rules.
func (p *QueryParser) Rules() QueryRules { return p.rules }

// Parse validates params. Unknown parameters are all reported at once;
// other violations stop at the first offending parameter.
func (p *QueryParser) Parse(params map[string]any) (ListQuery, error) {
	if err := p.checkUnknown(params); err != nil {
		return ListQuery{}, err
	}
	fields, err := p.parseFields(params["fields"])
	if err != nil {
		return ListQuery{}, err
	}
	sortField, direction, err := p.parseSort(params["sort"])
	if err != nil {
		return ListQuery{}, err
	}

	page := 1
	if raw, ok := params["page"]; ok {
		if page, err = positiveInt(raw, "page"); err != nil {
			return ListQuery{}, err
		}
	}
	perPage := p.rules.DefaultPerPage
	if raw, ok := params["per_page"]; ok {
		if perPage, err = positiveInt(raw, "per_page"); err != nil {
			return ListQuery{}, err
		}
	}
	if perPage > p.rules.MaxPerPage {
		return ListQuery{}, invalid("per_page", fmt.Sprintf("max %d", p.rules.MaxPerPage))
	}
	// Compare by division so (page-1)*perPage cannot overflow.
	if page-1 > p.rules.MaxOffset/perPage {
		return ListQuery{}, invalid("page", fmt.Sprintf("offset exceeds max %d", p.rules.MaxOffset))
	}

	filters := map[string]any{}
	for _, name := range p.rules.Filters {
		raw, ok := params[name]
		if !ok {
			continue
		}
		value, err := p.coerce(name, raw)
		if err != nil {
			return ListQuery{}, err
		}
		filters[name] = value
	}

	return ListQuery{
		Fields:        fields,
		Filters:       filters,
		SortField:     sortField,
		SortDirection: direction,
		Page:          page,
		PerPage:       perPage,
	}, nil
}

func (p *QueryParser) checkUnknown(params map[string]any) error {
	fieldErrors := map[string][]string{}
	for key := range params {
		switch key {
		case "fields", "sort", "page", "per_page":
			continue
		}
		if !slices.Contains(p.rules.Filters, key) {
			fieldErrors[key] = []string{"unknown parameter"}
		}
	}
	if len(fieldErrors) > 0 {
		return restroute.ValidationFailed(fieldErrors)
	}
	return nil
}

func (p *QueryParser) parseFields(raw any) ([]string, error) {
	all := append([]string(nil), p.rules.Fields...)
	if raw == nil {
		return all, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, invalid("fields", "must be a comma separated string")
	}
	var fields []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return all, nil
	}
	fieldErrors := map[string][]string{}
	for _, f := range fields {
		if !slices.Contains(p.rules.Fields, f) {
			fieldErrors[f] = []string{"field not allowed"}
		}
	}
	if len(fieldErrors) > 0 {
		return nil, restroute.ValidationFailed(fieldErrors)
	}
	return fields, nil
}

func (p *QueryParser) parseSort(raw any) (string, string, error) {
	if raw == nil || raw == "" {
		return "", SortAsc, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", "", invalid("sort", "must be string")
	}
	direction := SortAsc
	if strings.HasPrefix(s, "-") {
		direction = SortDesc
	}
	field := strings.TrimLeft(s, "-")
	if !slices.Contains(p.rules.Sort, field) {
		return "", "", invalid("sort", "unsupported sort field")
	}
	return field, direction, nil
}

var (
	intPattern    = regexp.MustCompile(`^-?\d+$`)
	digitsPattern = regexp.MustCompile(`^\d+$`)
)

func positiveInt(raw any, field string) (int, error) {
	var n int
	switch v := raw.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != math.Trunc(v) || v >= float64(math.MaxInt) {
			return 0, invalid(field, "must be a positive integer")
		}
		n = int(v)
	case string:
		if !digitsPattern.MatchString(v) {
			return 0, invalid(field, "must be a positive integer")
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, invalid(field, "must be a positive integer")
		}
		n = parsed
	default:
		return 0, invalid(field, "must be a positive integer")
	}
	if n < 1 {
		return 0, invalid(field, "must be greater than 0")
	}
	return n, nil
}

func (p *QueryParser) coerce(name string, raw any) (any, error) {
	rule, ok := p.rules.FilterSchema[name]
	if !ok {
		return raw, nil
	}
	switch rule.Type {
	case FilterString, "":
		return stringFilter(name, raw)
	case FilterInt:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == math.Trunc(v) {
				return int(v), nil
			}
		case string:
			if intPattern.MatchString(v) {
				if n, err := strconv.Atoi(v); err == nil {
					return n, nil
				}
			}
		}
		return nil, invalid(name, "must be an integer")
	case FilterFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return f, nil
			}
		}
		return nil, invalid(name, "must be numeric")
	case FilterBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int:
			if v == 0 || v == 1 {
				return v == 1, nil
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "1", "true", "yes":
				return true, nil
			case "0", "false", "no":
				return false, nil
			}
		}
		return nil, invalid(name, "must be boolean")
	case FilterDate:
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, invalid(name, "must be a valid date-time string")
		}
		t, err := parseDate(strings.TrimSpace(s))
		if err != nil {
			return nil, invalid(name, "must be a valid date-time string")
		}
		return t.Format(atomLayout), nil
	case FilterEnum:
		candidate, err := stringFilter(name, raw)
		if err != nil {
			return nil, err
		}
		if candidate == "" || !slices.Contains(rule.Values, candidate) {
			return nil, invalid(name, "unsupported value")
		}
		return candidate, nil
	}
	return nil, invalid(name, fmt.Sprintf("unsupported filter type %s", rule.Type))
}

func stringFilter(name string, raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case int, int64, float64, bool:
		return fmt.Sprint(v), nil
	}
	return "", invalid(name, "must be a string")
}

const atomLayout = "2006-01-02T15:04:05-07:00"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func invalid(field, reason string) error {
	return restroute.ValidationFailed(map[string][]string{field: {reason}})
}
