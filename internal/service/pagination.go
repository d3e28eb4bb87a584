package service

import "github.com/noah-isme/music-school-api/internal/models"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func buildPagination(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
