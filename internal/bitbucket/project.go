package bitbucket

import (
	"context"

	"github.com/steveyegge/bbs-exporter/internal/types"
)

// Project addresses the endpoints under projects/{key}.
type Project struct {
	c   *Client
	Key string
}

// Project returns a handle for the project with the given key.
func (c *Client) Project(key string) *Project {
	return &Project{c: c, Key: key}
}

func (p *Project) path(extra ...string) []string {
	return append([]string{"projects", p.Key}, extra...)
}

// IsUserProject reports whether this is a personal project.
func (p *Project) IsUserProject() bool {
	return types.IsUserProject(p.Key)
}

// Get returns the project.
func (p *Project) Get(ctx context.Context) (*types.Project, error) {
	var project types.Project
	if _, err := p.c.getJSON(ctx, APICore, p.path(), nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// Members returns the users granted access to the project.
func (p *Project) Members(ctx context.Context) ([]types.UserPermission, error) {
	return getAll(ctx, p.c, listOptions[types.UserPermission]{
		api:  APICore,
		path: p.path("permissions", "users"),
	})
}

// GroupAccess returns the groups granted access to the project. Group
// names come back lowercased.
func (p *Project) GroupAccess(ctx context.Context) ([]types.GroupPermission, error) {
	return getAll(ctx, p.c, listOptions[types.GroupPermission]{
		api:  APICore,
		path: p.path("permissions", "groups"),
	})
}

// Repositories returns the repositories of the project.
func (p *Project) Repositories(ctx context.Context) ([]types.Repository, error) {
	return getAll(ctx, p.c, listOptions[types.Repository]{
		api:  APICore,
		path: p.path("repos"),
	})
}

// Repository returns a handle for a repository of this project.
func (p *Project) Repository(slug string) *Repository {
	return &Repository{c: p.c, Project: p, Slug: slug}
}
