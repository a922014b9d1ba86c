package bitbucket

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/steveyegge/bbs-exporter/internal/diff"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// PullRequest addresses the endpoints under .../pull-requests/{id}.
type PullRequest struct {
	c          *Client
	Repository *Repository
	ID         int64
}

func (p *PullRequest) path(extra ...string) []string {
	return append(p.Repository.path("pull-requests", IDString(p.ID)), extra...)
}

// Get returns the pull request.
func (p *PullRequest) Get(ctx context.Context) (*types.PullRequest, error) {
	var pr types.PullRequest
	if _, err := p.c.getJSON(ctx, APICore, p.path(), nil, &pr); err != nil {
		return nil, err
	}
	return &pr, nil
}

// Commits returns the pull request's commits. Bitbucket answers 404 for a
// pull request without commits; that yields an empty list.
func (p *PullRequest) Commits(ctx context.Context) ([]types.Commit, error) {
	commits, err := getAll(ctx, p.c, listOptions[types.Commit]{
		api:        APICore,
		path:       p.path("commits"),
		pagination: PaginationGit,
	})
	if IsNotFound(err) {
		return []types.Commit{}, nil
	}
	return commits, err
}

// Comment returns one comment, or nil if it no longer exists.
func (p *PullRequest) Comment(ctx context.Context, id int64) (*types.Comment, error) {
	var comment types.Comment
	_, err := p.c.getJSON(ctx, APICore, p.path("comments", IDString(id)), nil, &comment)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// ActivitiesQuery selects where an activity listing starts.
type ActivitiesQuery struct {
	FromID   int64
	FromType string // COMMENT or ACTIVITY
}

// Activities returns the activity stream, newest first.
func (p *PullRequest) Activities(ctx context.Context, q ActivitiesQuery) ([]types.Activity, error) {
	query := url.Values{}
	if q.FromID != 0 {
		query.Set("fromId", IDString(q.FromID))
	}
	if q.FromType != "" {
		query.Set("fromType", q.FromType)
	}
	return getAll(ctx, p.c, listOptions[types.Activity]{
		api:   APICore,
		path:  p.path("activities"),
		query: query,
	})
}

// DiffQuery tunes a pull request diff. Zero fields are omitted.
type DiffQuery struct {
	ContextLines int
	DiffType     string
	SinceID      string
	SrcPath      string
	UntilID      string
	Whitespace   string
	WithComments *bool
}

func (q DiffQuery) values() url.Values {
	v := url.Values{}
	if q.ContextLines != 0 {
		v.Set("contextLines", strconv.Itoa(q.ContextLines))
	}
	if q.DiffType != "" {
		v.Set("diffType", q.DiffType)
	}
	if q.SinceID != "" {
		v.Set("sinceId", q.SinceID)
	}
	if q.SrcPath != "" {
		v.Set("srcPath", q.SrcPath)
	}
	if q.UntilID != "" {
		v.Set("untilId", q.UntilID)
	}
	if q.Whitespace != "" {
		v.Set("whitespace", q.Whitespace)
	}
	if q.WithComments != nil {
		v.Set("withComments", strconv.FormatBool(*q.WithComments))
	}
	return v
}

// Diff returns the diff of one file of the pull request.
func (p *PullRequest) Diff(ctx context.Context, path string, q DiffQuery) (*diff.Diff, error) {
	segments := append(p.path("diff"), strings.Split(path, "/")...)
	var d diff.Diff
	if _, err := p.c.getJSON(ctx, APICore, segments, q.values(), &d); err != nil {
		return nil, err
	}
	return &d, nil
}
