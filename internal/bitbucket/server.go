package bitbucket

import (
	"context"
	"net/url"

	"github.com/steveyegge/bbs-exporter/internal/types"
)

// ApplicationProperties returns the server's version information.
func (c *Client) ApplicationProperties(ctx context.Context) (*types.ApplicationProperties, error) {
	var props types.ApplicationProperties
	if _, err := c.getJSON(ctx, APICore, []string{"application-properties"}, nil, &props); err != nil {
		return nil, err
	}
	return &props, nil
}

// Plugins returns the installed add-ons.
func (c *Client) Plugins(ctx context.Context) ([]types.Plugin, error) {
	var resp struct {
		Plugins []types.Plugin `json:"plugins"`
	}
	// The plugin root requires a trailing slash.
	if _, err := c.getJSON(ctx, APIPlugin, []string{""}, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plugins, nil
}

// AuthenticatedUser returns the username requests are made as. With basic
// authentication that is the configured username; with a token the server
// reports it in the X-AUSERNAME header.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	if c.authUser != "" {
		return c.authUser, nil
	}
	if c.opts.Token == "" && c.opts.Username != "" {
		c.authUser = c.opts.Username
		return c.authUser, nil
	}

	headers, err := c.getJSON(ctx, APICore, []string{"application-properties"}, nil, nil)
	if err != nil {
		return "", err
	}
	raw := headers.Get("X-AUSERNAME")
	if raw == "" {
		return "", ErrAuthentication
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		name = raw
	}
	c.authUser = name
	return name, nil
}

// User returns the user with exactly the given username.
//
// The users/{slug} endpoint only accepts slugs, and the username-to-slug
// mapping is lossy, so the admin user list is filtered instead.
func (c *Client) User(ctx context.Context, username string) (*types.User, error) {
	if u, ok := c.users.Get(username); ok {
		return u, nil
	}

	users, err := getAll(ctx, c, listOptions[types.User]{
		api:   APICore,
		path:  []string{"admin", "users"},
		query: url.Values{"filter": {username}},
	})
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Name == username {
			u := users[i]
			c.users.Add(username, &u)
			return &u, nil
		}
	}
	return nil, &UserNotFoundError{Username: username}
}

// CurrentUser returns the authenticated user's record.
func (c *Client) CurrentUser(ctx context.Context) (*types.User, error) {
	name, err := c.AuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}
	return c.User(ctx, name)
}

// Groups returns every group.
func (c *Client) Groups(ctx context.Context) ([]types.Group, error) {
	return getAll(ctx, c, listOptions[types.Group]{
		api:  APICore,
		path: []string{"admin", "groups"},
	})
}

// GroupMembers returns the members of a group.
func (c *Client) GroupMembers(ctx context.Context, group string) ([]types.User, error) {
	return getAll(ctx, c, listOptions[types.User]{
		api:   APICore,
		path:  []string{"admin", "groups", "more-members"},
		query: url.Values{"context": {group}},
	})
}

// Repositories returns every repository visible to the user.
func (c *Client) Repositories(ctx context.Context) ([]types.Repository, error) {
	return getAll(ctx, c, listOptions[types.Repository]{
		api:  APICore,
		path: []string{"repos"},
	})
}
