package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chibale/darasa/core"
)

var (
	orderingParam = "ordering"
	pageParam     = "page"
	pageSizeParam = "page_size"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses the "ordering" query param, e.g. "-enrolled_at,total_progress".
// Fields outside the allowed set are silently dropped; they never reach a query.
func (ord *Ordering) Bind(ctx echo.Context, allowedFields ...string) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if !containsString(allowedFields, field) {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func containsString(slice []string, s string) bool {
	for _, val := range slice {
		if val == s {
			return true
		}
	}
	return false
}

type Pagination struct {
	core.Pagination
}

func (p *Pagination) Bind(ctx echo.Context) {
	size := intQueryParam(ctx, pageSizeParam, core.DefaultPageSize)
	page := intQueryParam(ctx, pageParam, 1)
	if size < 1 {
		size = core.DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	p.Limit = size
	p.Offset = (page - 1) * size
}

func intQueryParam(ctx echo.Context, name string, dflt int) int {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return dflt
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return dflt
	}
	return val
}
