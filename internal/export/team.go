package export

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/steveyegge/bbs-exporter/internal/serialize"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// TeamBuilder collects project memberships across repositories and turns
// them into one team per project and permission level, such as
// "project_write_access".
type TeamBuilder struct {
	e *Exporter

	mu       sync.Mutex
	projects []*projectTeams
	groups   []string
}

type projectTeams struct {
	project      *types.Project
	members      []types.UserPermission
	repositories []*types.Repository
}

// NewTeamBuilder returns a TeamBuilder that stages its teams through e.
func NewTeamBuilder(e *Exporter) *TeamBuilder {
	return &TeamBuilder{e: e}
}

func (t *TeamBuilder) entry(project *types.Project) *projectTeams {
	for _, p := range t.projects {
		if p.project.Key == project.Key {
			return p
		}
	}
	p := &projectTeams{project: project}
	t.projects = append(t.projects, p)
	return p
}

// AddMember records that member holds a permission on project.
func (t *TeamBuilder) AddMember(project *types.Project, member types.UserPermission) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.entry(project)
	for _, m := range p.members {
		if m.User.Slug == member.User.Slug && m.Permission == member.Permission {
			return
		}
	}
	p.members = append(p.members, member)
}

// AddRepository records that repo belongs to project.
func (t *TeamBuilder) AddRepository(project *types.Project, repo *types.Repository) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.entry(project)
	for _, r := range p.repositories {
		if r.Slug == repo.Slug && r.Project.Key == repo.Project.Key {
			return
		}
	}
	p.repositories = append(p.repositories, repo)
}

// SetGroupAccess sets the names of real groups. Generated team names avoid
// them, ignoring case.
func (t *TeamBuilder) SetGroupAccess(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.groups = t.groups[:0]
	for _, n := range names {
		t.groups = append(t.groups, strings.ToLower(strings.TrimSpace(n)))
	}
}

// teamName returns "<permission>_access", suffixed with " (2)", " (3)"
// and so on while it collides with a real group.
func (t *TeamBuilder) teamName(permission string) string {
	base := strings.ToLower(permission) + "_access"
	name := base
	for n := 2; slices.Contains(t.groups, strings.ToLower(name)); n++ {
		name = fmt.Sprintf("%s (%d)", base, n)
	}
	return name
}

// Teams returns the team of every project and permission level, in the
// order the members were added.
func (t *TeamBuilder) Teams() []serialize.TeamInput {
	t.mu.Lock()
	defer t.mu.Unlock()

	var teams []serialize.TeamInput
	for _, p := range t.projects {
		var permissions []string
		byPermission := make(map[string][]types.UserPermission)
		for _, m := range p.members {
			if _, ok := byPermission[m.Permission]; !ok {
				permissions = append(permissions, m.Permission)
			}
			byPermission[m.Permission] = append(byPermission[m.Permission], m)
		}

		repoURLs := make([]string, 0, len(p.repositories))
		for _, r := range p.repositories {
			repoURLs = append(repoURLs, t.e.urls.RepositoryURL(r))
		}

		for _, perm := range permissions {
			members := byPermission[perm]
			memberURLs := make([]string, 0, len(members))
			for i := range members {
				memberURLs = append(memberURLs, t.e.urls.MemberURL(&members[i]))
			}
			teams = append(teams, serializeTeam(p.project, t.teamName(perm), []string{perm}, memberURLs, repoURLs))
		}
	}
	return teams
}

// Write stages every team.
func (t *TeamBuilder) Write(ctx context.Context) error {
	for _, in := range t.Teams() {
		teamURL := t.e.urls.TeamURL(in.Project, in.Name)
		err := t.e.record(ctx, "team", teamURL, nil, func() (any, error) {
			return t.e.serializer.Team(in)
		})
		if err := skip(err, "Unable to export team, see logs for details", teamURL); err != nil {
			return err
		}
	}
	return nil
}

func serializeTeam(project *types.Project, name string, permissions, members, repositories []string) serialize.TeamInput {
	return serialize.TeamInput{
		Project:        project,
		Name:           name,
		Permissions:    permissions,
		RepositoryURLs: repositories,
		MemberURLs:     members,
	}
}
