package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/steveyegge/bbs-exporter/internal/bitbucket"
	"github.com/steveyegge/bbs-exporter/internal/branchperm"
	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/git"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// groupGrant is the access one group holds on the repository, through its
// project or directly.
type groupGrant struct {
	Name        string
	Permissions []string
}

// repositoryExporter exports one repository and everything under it.
type repositoryExporter struct {
	*Exporter

	api  *bitbucket.Repository
	repo *types.Repository

	groupAccess []groupGrant

	permsOnce sync.Once
	perms     []types.BranchPermission
	permsErr  error
}

func (r *repositoryExporter) url() string {
	return r.urls.RepositoryURL(r.repo)
}

func (r *repositoryExporter) export(ctx context.Context) error {
	debug.Status("Exporting repository %s...", r.repo.FullName())

	user, err := r.user(ctx)
	if err != nil {
		return err
	}
	if err := r.exportUser(ctx, user, at(0)); err != nil {
		return err
	}

	if r.hasModel(ModelTeams) {
		if err := r.loadGroupAccess(ctx); err != nil {
			return err
		}
	}
	if err := r.exportOwner(ctx); err != nil {
		return err
	}
	if err := r.clone(ctx); err != nil {
		return err
	}

	if r.hasModel(ModelPullRequests) {
		if err := r.exportPullRequests(ctx); err != nil {
			return err
		}
	}
	if r.hasModel(ModelCommitComments) {
		if err := r.exportCommitComments(ctx); err != nil {
			return err
		}
	}
	if r.hasModel(ModelTeams) {
		if err := r.exportTeams(ctx); err != nil {
			return err
		}
	}

	if err := r.exportTags(ctx); err != nil {
		return err
	}
	if err := r.exportProtectedBranches(ctx); err != nil {
		return err
	}
	return r.exportRecord(ctx)
}

// exportUser stages u. A user that fails validation is logged and skipped.
func (r *repositoryExporter) exportUser(ctx context.Context, u *types.User, order *int) error {
	err := r.Exporter.exportUser(ctx, u, order)
	if u != nil {
		return skip(err, "Unable to export user, see logs for details", r.urls.UserURL(u))
	}
	return err
}

// loadGroupAccess collects the project and repository group grants.
// Bitbucket lowercases group names in permission listings, so names are
// matched against the group list case-insensitively to recover their
// spelling.
func (r *repositoryExporter) loadGroupAccess(ctx context.Context) error {
	groups, err := r.client.Groups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	projectAccess, err := r.client.Project(r.repo.Project.Key).GroupAccess(ctx)
	if err != nil {
		return fmt.Errorf("list project group access: %w", err)
	}
	repoAccess, err := r.api.GroupAccess(ctx)
	if err != nil {
		return fmt.Errorf("list repository group access: %w", err)
	}

	r.groupAccess = mergeGroupAccess(groups, projectAccess, repoAccess)

	names := make([]string, 0, len(r.groupAccess))
	for _, g := range r.groupAccess {
		names = append(names, g.Name)
	}
	r.teams.SetGroupAccess(names)
	return nil
}

func mergeGroupAccess(groups []types.Group, lists ...[]types.GroupPermission) []groupGrant {
	spelling := func(name string) string {
		for _, g := range groups {
			if strings.EqualFold(g.Name, name) {
				return g.Name
			}
		}
		return name
	}

	var out []groupGrant
	index := make(map[string]int)
	for _, list := range lists {
		for _, access := range list {
			name := spelling(access.Group.Name)
			i, ok := index[name]
			if !ok {
				i = len(out)
				index[name] = i
				out = append(out, groupGrant{Name: name})
			}
			out[i].Permissions = append(out[i].Permissions, access.Permission)
		}
	}
	return out
}

// exportOwner exports the owner of a personal project as a user, or a
// project as an organization together with its members.
func (r *repositoryExporter) exportOwner(ctx context.Context) error {
	projectAPI := r.client.Project(r.repo.Project.Key)
	project, err := projectAPI.Get(ctx)
	if err != nil {
		return fmt.Errorf("get project %s: %w", r.repo.Project.Key, err)
	}

	if project.IsUserProject() {
		return r.exportUser(ctx, project.Owner, nil)
	}

	members, err := projectAPI.Members(ctx)
	if err != nil {
		return fmt.Errorf("list members of project %s: %w", project.Key, err)
	}
	project.Members = members

	orgURL := r.urls.OrganizationURL(project)
	err = r.record(ctx, "organization", orgURL, nil, func() (any, error) {
		return r.serializer.Organization(project)
	})
	if err := skip(err, "Unable to export project "+project.Key, orgURL); err != nil {
		return err
	}

	r.teams.AddRepository(project, r.repo)
	for i := range members {
		r.teams.AddMember(project, members[i])
		if err := r.exportUser(ctx, &members[i].User, nil); err != nil {
			return err
		}
	}
	return nil
}

// clone mirrors the git data into the archive.
func (r *repositoryExporter) clone(ctx context.Context) error {
	if r.opts.Cloner == nil {
		return nil
	}
	debug.Status("Cloning repository...")

	authUser, err := r.client.AuthenticatedUser(ctx)
	if err != nil {
		return err
	}
	links := make([]string, 0, len(r.repo.Links.Clone))
	for _, l := range r.repo.Links.Clone {
		links = append(links, l.Href)
	}
	cloneURL := git.CloneURL(links, authUser)
	if cloneURL == "" {
		return fmt.Errorf("repository %s has no http clone link", r.repo.FullName())
	}

	cloner := *r.opts.Cloner
	if cloner.Authorization == "" {
		cloner.Authorization = r.client.Authorization()
	}
	return cloner.Mirror(ctx, cloneURL, r.builder.RepoPath(r.repo.Project.Key, r.repo.Slug))
}

func (r *repositoryExporter) exportPullRequests(ctx context.Context) error {
	debug.Status("Exporting pull requests...")

	prs, err := r.api.PullRequests(ctx)
	if err != nil {
		return fmt.Errorf("list pull requests: %w", err)
	}
	return forEach(ctx, r.opts.MaxThreads, prs, func(ctx context.Context, i int, pr types.PullRequest) error {
		return r.exportPullRequest(ctx, &pr, i)
	})
}

func (r *repositoryExporter) exportTags(ctx context.Context) error {
	debug.Status("Exporting tags...")

	tags, err := r.api.Tags(ctx)
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}
	return forEach(ctx, r.opts.MaxThreads, tags, func(ctx context.Context, i int, tag types.Tag) error {
		return r.exportRelease(ctx, &tag, i)
	})
}

func (r *repositoryExporter) branchPermissions(ctx context.Context) ([]types.BranchPermission, error) {
	r.permsOnce.Do(func() {
		r.perms, r.permsErr = r.api.BranchPermissions(ctx)
	})
	return r.perms, r.permsErr
}

// exportTeams exports the groups with access to the repository, and the
// groups named by branch permissions, as teams.
func (r *repositoryExporter) exportTeams(ctx context.Context) error {
	for _, g := range r.groupAccess {
		members, err := r.exportGroupMembers(ctx, g.Name)
		if err != nil {
			return err
		}
		if err := r.exportTeam(ctx, g.Name, g.Permissions, members, []string{r.url()}); err != nil {
			return err
		}
	}

	perms, err := r.branchPermissions(ctx)
	if err != nil {
		return fmt.Errorf("list branch permissions: %w", err)
	}
	for _, p := range perms {
		for _, group := range p.Groups {
			members, err := r.exportGroupMembers(ctx, group)
			if err != nil {
				return err
			}
			if err := r.exportTeam(ctx, group, nil, members, []string{}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *repositoryExporter) exportGroupMembers(ctx context.Context, group string) ([]string, error) {
	users, err := r.client.GroupMembers(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("list members of group %s: %w", group, err)
	}
	urls := make([]string, 0, len(users))
	for i := range users {
		if err := r.exportUser(ctx, &users[i], nil); err != nil {
			return nil, err
		}
		urls = append(urls, r.urls.UserURL(&users[i]))
	}
	return urls, nil
}

func (r *repositoryExporter) exportTeam(ctx context.Context, name string, permissions, members, repositories []string) error {
	project := &r.repo.Project
	teamURL := r.urls.TeamURL(project, name)
	err := r.record(ctx, "team", teamURL, nil, func() (any, error) {
		return r.serializer.Team(serializeTeam(project, name, permissions, members, repositories))
	})
	return skip(err, "Unable to export team, see logs for details", teamURL)
}

// exportProtectedBranches resolves branch permissions to the branches they
// protect. Empty repositories have no branches to protect.
func (r *repositoryExporter) exportProtectedBranches(ctx context.Context) error {
	debug.Status("Exporting branch permissions...")

	model, err := r.api.BranchModel(ctx)
	if errors.Is(err, bitbucket.ErrEmptyRepository) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get branch model: %w", err)
	}
	perms, err := r.branchPermissions(ctx)
	if err != nil {
		return fmt.Errorf("list branch permissions: %w", err)
	}
	branches, err := r.api.Branches(ctx)
	if err != nil {
		return fmt.Errorf("list branches: %w", err)
	}

	protected, err := branchperm.Aggregate(perms, branches, model, func(msg string) {
		debug.Warn("protected_branch", r.url(), msg)
	})
	if err != nil {
		return err
	}

	for _, branch := range protected.Branches() {
		branchURL := r.urls.ProtectedBranchURL(r.repo, branch)
		branchPerms := protected.Permissions(branch)
		err := r.record(ctx, "protected_branch", branchURL, nil, func() (any, error) {
			return r.serializer.ProtectedBranch(r.repo, branch, branchPerms)
		})
		if err := skip(err, "Unable to export branch permissions, see logs for details", branchURL); err != nil {
			return err
		}
	}
	return nil
}

// exportRecord stages the repository itself with its collaborators and
// access keys.
func (r *repositoryExporter) exportRecord(ctx context.Context) error {
	collaborators, err := r.api.TeamMembers(ctx)
	if err != nil {
		return fmt.Errorf("list collaborators: %w", err)
	}
	for i := range collaborators {
		if err := r.exportUser(ctx, &collaborators[i].User, nil); err != nil {
			return err
		}
	}
	keys, err := r.api.AccessKeys(ctx)
	if err != nil {
		return fmt.Errorf("list access keys: %w", err)
	}

	err = r.record(ctx, "repository", r.url(), nil, func() (any, error) {
		return r.serializer.Repository(r.repo, collaborators, keys)
	})
	return skip(err, "Unable to export repository "+r.repo.FullName(), r.url())
}
