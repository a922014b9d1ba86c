package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/steveyegge/bbs-exporter/internal/diff"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// Exception names Bitbucket Server reports for empty repositories.
const (
	noDefaultBranchException = "com.atlassian.bitbucket.repository.NoDefaultBranchException"
	emptyRepositoryException = "com.atlassian.bitbucket.repository.EmptyRepositoryException"
	noBranchModelPrefix      = "There is no branch model defined for repository "
)

// Repository addresses the endpoints under projects/{key}/repos/{slug}.
type Repository struct {
	c       *Client
	Project *Project
	Slug    string
}

func (r *Repository) path(extra ...string) []string {
	return append(r.Project.path("repos", r.Slug), extra...)
}

// FullName returns "KEY/slug".
func (r *Repository) FullName() string {
	return r.Project.Key + "/" + r.Slug
}

// Get returns the repository.
func (r *Repository) Get(ctx context.Context) (*types.Repository, error) {
	var repo types.Repository
	if _, err := r.c.getJSON(ctx, APICore, r.path(), nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// CommitsQuery filters a commit listing. Empty fields are omitted.
type CommitsQuery struct {
	FollowRenames bool
	IgnoreMissing bool
	Merges        string // exclude, include or only
	Path          string
	Since         string // exclusive
	Until         string // inclusive
	WithCounts    bool
}

func (q CommitsQuery) values() url.Values {
	v := url.Values{}
	if q.FollowRenames {
		v.Set("followRenames", "true")
	}
	if q.IgnoreMissing {
		v.Set("ignoreMissing", "true")
	}
	if q.Merges != "" {
		v.Set("merges", q.Merges)
	}
	if q.Path != "" {
		v.Set("path", q.Path)
	}
	if q.Since != "" {
		v.Set("since", q.Since)
	}
	if q.Until != "" {
		v.Set("until", q.Until)
	}
	if q.WithCounts {
		v.Set("withCounts", "true")
	}
	return v
}

// Commits returns the commits matching q. An empty repository yields no
// commits rather than an error.
func (r *Repository) Commits(ctx context.Context, q CommitsQuery) ([]types.Commit, error) {
	commits, err := getAll(ctx, r.c, listOptions[types.Commit]{
		api:        APICore,
		path:       r.path("commits"),
		query:      q.values(),
		pagination: PaginationGit,
	})
	if err != nil {
		if apiErr := asAPIError(err); apiErr != nil && apiErr.Status == http.StatusNotFound &&
			apiErr.HasException(noDefaultBranchException) {
			return []types.Commit{}, nil
		}
		return nil, err
	}
	for i := range commits {
		c := commits[i]
		r.c.commits.Add(r.FullName()+"@"+c.ID, &c)
	}
	return commits, nil
}

// Commit returns one commit. Results are cached per client.
func (r *Repository) Commit(ctx context.Context, sha string) (*types.Commit, error) {
	key := r.FullName() + "@" + sha
	if c, ok := r.c.commits.Get(key); ok {
		return c, nil
	}
	var commit types.Commit
	if _, err := r.c.getJSON(ctx, APICore, r.path("commits", sha), nil, &commit); err != nil {
		return nil, err
	}
	r.c.commits.Add(key, &commit)
	return &commit, nil
}

// Branches returns every branch.
func (r *Repository) Branches(ctx context.Context) ([]types.Branch, error) {
	return getAll(ctx, r.c, listOptions[types.Branch]{
		api:  APICore,
		path: r.path("branches"),
	})
}

// BranchModel returns the repository's branching model. A repository
// without a model yields (nil, nil); an empty repository yields
// ErrEmptyRepository.
func (r *Repository) BranchModel(ctx context.Context) (*types.BranchModel, error) {
	var model types.BranchModel
	_, err := r.c.getJSON(ctx, APIBranch, r.path("branchmodel"), nil, &model)
	if err == nil {
		return &model, nil
	}
	apiErr := asAPIError(err)
	if apiErr == nil || apiErr.Status < 400 || apiErr.Status >= 500 {
		return nil, err
	}
	first := apiErr.FirstError()
	switch {
	case first.ExceptionName == emptyRepositoryException:
		return nil, ErrEmptyRepository
	case strings.HasPrefix(first.Message, noBranchModelPrefix):
		return nil, nil
	}
	return nil, err
}

// BranchPermissions returns the ref restrictions of the repository.
func (r *Repository) BranchPermissions(ctx context.Context) ([]types.BranchPermission, error) {
	return getAll(ctx, r.c, listOptions[types.BranchPermission]{
		api:  APIRefRestriction,
		path: r.path("restrictions"),
	})
}

// AccessKeys returns the repository's SSH access keys.
func (r *Repository) AccessKeys(ctx context.Context) ([]types.AccessKey, error) {
	return getAll(ctx, r.c, listOptions[types.AccessKey]{
		api:  APISSH,
		path: r.path("ssh"),
	})
}

// TeamMembers returns the users granted access to the repository.
func (r *Repository) TeamMembers(ctx context.Context) ([]types.UserPermission, error) {
	return getAll(ctx, r.c, listOptions[types.UserPermission]{
		api:  APICore,
		path: r.path("permissions", "users"),
	})
}

// GroupAccess returns the groups granted access to the repository. Group
// names come back lowercased.
func (r *Repository) GroupAccess(ctx context.Context) ([]types.GroupPermission, error) {
	return getAll(ctx, r.c, listOptions[types.GroupPermission]{
		api:  APICore,
		path: r.path("permissions", "groups"),
	})
}

// Tags returns every tag.
func (r *Repository) Tags(ctx context.Context) ([]types.Tag, error) {
	return getAll(ctx, r.c, listOptions[types.Tag]{
		api:  APICore,
		path: r.path("tags"),
	})
}

// Tag returns one tag by display id.
func (r *Repository) Tag(ctx context.Context, displayID string) (*types.Tag, error) {
	var tag types.Tag
	if _, err := r.c.getJSON(ctx, APICore, r.path("tags", displayID), nil, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// PullRequests returns every pull request, newest first. Paging stops once
// pull requests are older than Options.DataSince.
func (r *Repository) PullRequests(ctx context.Context) ([]types.PullRequest, error) {
	return getAll(ctx, r.c, listOptions[types.PullRequest]{
		api:     APICore,
		path:    r.path("pull-requests"),
		query:   url.Values{"state": {"all"}},
		limitBy: func(pr types.PullRequest) int64 { return pr.CreatedDate },
	})
}

// PullRequest returns a handle for one pull request.
func (r *Repository) PullRequest(id int64) *PullRequest {
	return &PullRequest{c: r.c, Repository: r, ID: id}
}

// CommentedItem holds the comments Bitbucket embeds in one item of a commit
// diff.
type CommentedItem struct {
	LineComments []types.Comment `json:"lineComments,omitempty"`
	FileComments []types.Comment `json:"fileComments,omitempty"`
}

// CommitDiff is a commit diff together with its embedded comments.
// Comments[i] belongs to Diffs[i].
type CommitDiff struct {
	*diff.Diff
	Comments []CommentedItem
}

// Diff returns the diff of commitID against since (its parent when
// empty), optionally limited to filePath.
func (r *Repository) Diff(ctx context.Context, commitID, filePath, since string) (*CommitDiff, error) {
	path := r.path("commits", commitID, "diff")
	if filePath != "" {
		path = append(path, strings.Split(filePath, "/")...)
	}
	var query url.Values
	if since != "" {
		query = url.Values{"since": {since}}
	}

	var raw json.RawMessage
	if _, err := r.c.getJSON(ctx, APICore, path, query, &raw); err != nil {
		return nil, err
	}

	var d diff.Diff
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to parse diff of %s: %w", commitID, err)
	}
	var comments struct {
		Diffs []CommentedItem `json:"diffs"`
	}
	if err := json.Unmarshal(raw, &comments); err != nil {
		return nil, fmt.Errorf("failed to parse diff comments of %s: %w", commitID, err)
	}
	return &CommitDiff{Diff: &d, Comments: comments.Diffs}, nil
}

func (r *Repository) attachmentPath(path []string) []string {
	return append(r.path("attachments"), path...)
}

// AttachmentContentType returns the content type of an attachment. Paths
// starting with "." are not served by the attachment endpoint and yield "".
func (r *Repository) AttachmentContentType(ctx context.Context, path []string) (string, error) {
	if len(path) > 0 && path[0] == "." {
		return "", nil
	}
	headers, err := r.c.head(ctx, APINone, r.attachmentPath(path))
	if err != nil {
		return "", err
	}
	return headers.Get("Content-Type"), nil
}

// Attachment downloads an attachment. The caller closes the reader.
func (r *Repository) Attachment(ctx context.Context, path []string) (io.ReadCloser, error) {
	return r.c.download(ctx, APINone, r.attachmentPath(path))
}

// IDString formats a numeric id for a path segment.
func IDString(id int64) string {
	return strconv.FormatInt(id, 10)
}
