package bitbucket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/steveyegge/bbs-exporter/internal/types"
)

// Pagination selects the page size of a collection request.
type Pagination int

const (
	// PaginationStandard uses Options.PaginationLimit.
	PaginationStandard Pagination = iota
	// PaginationGit uses Options.GitPaginationLimit.
	PaginationGit
)

// Page is one page of a paginated collection.
type Page[T any] struct {
	Size          int  `json:"size"`
	Limit         int  `json:"limit"`
	Start         int  `json:"start"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart int  `json:"nextPageStart"`
	Values        []T  `json:"values"`
}

// listOptions describes one collection request.
type listOptions[T any] struct {
	api        API
	path       []string
	query      url.Values
	pagination Pagination

	// limitBy returns an item's epoch-millisecond timestamp. When set,
	// paging stops after the page whose last item is older than
	// Options.DataSince.
	limitBy func(T) int64
}

// getAll follows a paginated collection to its last page.
func getAll[T any](ctx context.Context, c *Client, o listOptions[T]) ([]T, error) {
	query := url.Values{}
	for k, v := range o.query {
		query[k] = v
	}
	if query.Get("limit") == "" {
		limit := c.opts.PaginationLimit
		if o.pagination == PaginationGit {
			limit = c.opts.GitPaginationLimit
		}
		query.Set("limit", strconv.Itoa(limit))
	}

	all := []T{}
	oldest := time.Now()

	for pages := 0; ; pages++ {
		if pages >= MaxPages {
			return all, fmt.Errorf("pagination of %v exceeded %d pages", o.path, MaxPages)
		}
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		var page Page[T]
		if _, err := c.getJSON(ctx, o.api, o.path, query, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Values...)

		if o.limitBy != nil && len(page.Values) > 0 {
			if ms := o.limitBy(page.Values[len(page.Values)-1]); ms != 0 {
				oldest = types.FromMillis(ms)
			}
		}

		if page.IsLastPage || oldest.Before(c.opts.DataSince) {
			return all, nil
		}
		query.Set("start", strconv.Itoa(page.NextPageStart))
	}
}
