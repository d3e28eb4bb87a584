package repository

import (
	"fmt"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// whereBuilder accumulates positional conditions for dynamic filters.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

// add appends a condition; every "?" in expr is replaced with the next
// positional placeholder bound to arg.
func (w *whereBuilder) add(expr string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, strings.ReplaceAll(expr, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return " AND " + strings.Join(w.conditions, " AND ")
}

// pagination clamps page and page size and returns the SQL suffix together
// with the effective values.
func pagination(page, pageSize int) (string, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize), page, pageSize
}

// ordering resolves a sort key through an allow list mapping API names to
// SQL expressions.
func ordering(sortBy, sortOrder string, allowed map[string]string, fallback string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = allowed[fallback]
	}
	order := strings.ToUpper(sortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", column, order)
}

func toLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func likePattern(search string) string {
	return "%" + toLower(search) + "%"
}

func toUpper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
