package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// FilterParams represents the list parameters accepted by admin listings
type FilterParams struct {
	Filters map[string]string `json:"filters"`
	Limit   int               `json:"limit"`
}

// ParseQueryParams reads limit and filters[field]=value pairs.
// limit falls back to defaultLimit when missing or invalid and is capped at maxLimit.
func ParseQueryParams(c *gin.Context, defaultLimit, maxLimit int) FilterParams {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	// Parse filters - format: filters[field_name]=value
	filters := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if strings.HasPrefix(key, "filters[") && strings.HasSuffix(key, "]") {
			fieldName := key[8 : len(key)-1]
			if fieldName != "" && len(values) > 0 && values[0] != "" {
				filters[fieldName] = values[0]
			}
		}
	}

	return FilterParams{Filters: filters, Limit: limit}
}

// Filter returns a single filter value
func (p FilterParams) Filter(name string) string {
	return p.Filters[name]
}

// UnknownFilters returns the filter names not present in allowed, sorted
func (p FilterParams) UnknownFilters(allowed ...string) []string {
	var unknown []string
	for name := range p.Filters {
		found := false
		for _, a := range allowed {
			if a == name {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}
