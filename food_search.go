package main

import (
	"strconv"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 1_000_000
)

// foodSortColumns whitelists sortable columns. Values are interpolated into
// SQL, so only keys of this map may ever reach the ORDER BY clause.
var foodSortColumns = map[string]string{
	"name":       "lower(name)",
	"calories":   "calories",
	"protein_g":  "protein_g",
	"carbs_g":    "carbs_g",
	"fat_g":      "fat_g",
	"created_at": "created_at",
}

// foodSearchParams are the parsed query params of GET /api/foods.
type foodSearchParams struct {
	Query           string
	Page            int
	PageSize        int
	Sort            string
	Order           string
	IncludeArchived bool
}

// parseFoodSearch validates the raw query values. get is c.Query in handlers.
func parseFoodSearch(get func(string) string) (foodSearchParams, error) {
	p := foodSearchParams{
		Query:    strings.TrimSpace(get("q")),
		Page:     1,
		PageSize: defaultPageSize,
		Sort:     "name",
		Order:    "asc",
	}
	if s := get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxPage {
			return p, invalidf("page must be between 1 and %d", maxPage)
		}
		p.Page = n
	}
	if s := get("page_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxPageSize {
			return p, invalidf("page_size must be between 1 and %d", maxPageSize)
		}
		p.PageSize = n
	}
	if s := get("sort"); s != "" {
		if _, ok := foodSortColumns[s]; !ok {
			return p, invalidf("sort must be one of: name, calories, protein_g, carbs_g, fat_g, created_at")
		}
		p.Sort = s
	}
	if s := strings.ToLower(get("order")); s != "" {
		if s != "asc" && s != "desc" {
			return p, invalidf("order must be asc or desc")
		}
		p.Order = s
	}
	if s := get("include_archived"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return p, invalidf("include_archived must be true or false")
		}
		p.IncludeArchived = b
	}
	return p, nil
}

// orderClause builds the ORDER BY clause. id is appended as a tie-breaker so
// rows with equal sort keys never move between pages.
func (p foodSearchParams) orderClause() string {
	dir := "ASC"
	if p.Order == "desc" {
		dir = "DESC"
	}
	return "ORDER BY " + foodSortColumns[p.Sort] + " " + dir + ", id " + dir
}

func (p foodSearchParams) offset() int {
	return (p.Page - 1) * p.PageSize
}

// likePattern escapes LIKE metacharacters so user input matches literally.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

// pagedResult is the envelope returned by list endpoints.
type pagedResult[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

func newPagedResult[T any](items []T, page, pageSize, total int) pagedResult[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return pagedResult[T]{Items: items, Page: page, PageSize: pageSize, TotalCount: total, TotalPages: pages}
}
