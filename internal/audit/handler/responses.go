package handler

import "audittrail/pkg/platform/audit/query"

// Pagination describes the page returned by /logs.
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"pageSize"`
	PageCount int   `json:"pageCount"`
	Total     int64 `json:"total"`
}

type ListMeta struct {
	Pagination Pagination `json:"pagination"`
}

type ListResponse struct {
	Data []query.View `json:"data"`
	Meta ListMeta     `json:"meta"`
}

// DataResponse wraps single-object payloads.
type DataResponse struct {
	Data any `json:"data"`
}
