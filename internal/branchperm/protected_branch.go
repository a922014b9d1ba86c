package branchperm

import (
	"errors"

	"github.com/steveyegge/bbs-exporter/internal/types"
)

// GitHub enforcement levels for blocking deletions and force pushes.
const (
	EnforcementOff       = 0
	EnforcementNonAdmins = 1
	EnforcementEveryone  = 2
)

// URLResolver supplies the canonical URLs a protected branch record links
// to.
type URLResolver interface {
	UserURL(u *types.User) string
	TeamURL(project *types.Project, group string) string
	RepositoryURL(repo *types.Repository) string
	ProtectedBranchURL(repo *types.Repository, branch string) string
}

// ProtectedBranch is the archive record for one protected branch.
type ProtectedBranch struct {
	Type                                 string   `json:"type"`
	Name                                 string   `json:"name"`
	URL                                  string   `json:"url"`
	RepositoryURL                        string   `json:"repository_url"`
	AdminEnforced                        bool     `json:"admin_enforced"`
	BlockDeletionsEnforcementLevel       int      `json:"block_deletions_enforcement_level"`
	BlockForcePushesEnforcementLevel     int      `json:"block_force_pushes_enforcement_level"`
	DismissStaleReviewsOnPush            bool     `json:"dismiss_stale_reviews_on_push"`
	PullRequestReviewsEnforcementLevel   string   `json:"pull_request_reviews_enforcement_level"`
	RequireCodeOwnerReview               bool     `json:"require_code_owner_review"`
	RequiredStatusChecksEnforcementLevel string   `json:"required_status_checks_enforcement_level"`
	StrictRequiredStatusChecksPolicy     bool     `json:"strict_required_status_checks_policy"`
	AuthorizedActorsOnly                 bool     `json:"authorized_actors_only"`
	AuthorizedUserURLs                   []string `json:"authorized_user_urls"`
	AuthorizedTeamURLs                   []string `json:"authorized_team_urls"`
	DismissalRestrictedUserURLs          []string `json:"dismissal_restricted_user_urls"`
	DismissalRestrictedTeamURLs          []string `json:"dismissal_restricted_team_urls"`
	RequiredStatusChecks                 []string `json:"required_status_checks"`
}

// ErrNoBranchName is returned when a protected branch has no name.
var ErrNoBranchName = errors.New("branch name can't be blank")

// BuildProtectedBranch converts the permissions aggregated for branch into a
// protected branch record. Users and teams named by several permissions of
// the same type are listed once, in first-seen order.
func BuildProtectedBranch(repo *types.Repository, branch string, perms []types.BranchPermission, urls URLResolver) (*ProtectedBranch, error) {
	if branch == "" {
		return nil, ErrNoBranchName
	}

	readOnly := ofType(perms, types.PermissionReadOnly)
	prOnly := ofType(perms, types.PermissionPullRequestOnly)

	reviews := "off"
	if len(prOnly) > 0 {
		reviews = "everyone"
	}

	return &ProtectedBranch{
		Type:          "protected_branch",
		Name:          branch,
		URL:           urls.ProtectedBranchURL(repo, branch),
		RepositoryURL: urls.RepositoryURL(repo),
		// Bitbucket has no admin exceptions, no code owners and no
		// status checks.
		AdminEnforced:                        true,
		BlockDeletionsEnforcementLevel:       EnforcementEveryone,
		BlockForcePushesEnforcementLevel:     EnforcementEveryone,
		DismissStaleReviewsOnPush:            true,
		PullRequestReviewsEnforcementLevel:   reviews,
		RequireCodeOwnerReview:               false,
		RequiredStatusChecksEnforcementLevel: "off",
		StrictRequiredStatusChecksPolicy:     false,
		AuthorizedActorsOnly:                 len(readOnly) > 0,
		AuthorizedUserURLs:                   userURLs(readOnly, urls),
		AuthorizedTeamURLs:                   teamURLs(repo, readOnly, urls),
		DismissalRestrictedUserURLs:          userURLs(prOnly, urls),
		DismissalRestrictedTeamURLs:          teamURLs(repo, prOnly, urls),
		RequiredStatusChecks:                 []string{},
	}, nil
}

func ofType(perms []types.BranchPermission, t types.PermissionType) []types.BranchPermission {
	var out []types.BranchPermission
	for _, p := range perms {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

func userURLs(perms []types.BranchPermission, urls URLResolver) []string {
	out := newOrderedSet()
	for _, p := range perms {
		for i := range p.Users {
			out.add(urls.UserURL(&p.Users[i]))
		}
	}
	return out.items
}

func teamURLs(repo *types.Repository, perms []types.BranchPermission, urls URLResolver) []string {
	out := newOrderedSet()
	for _, p := range perms {
		for _, g := range p.Groups {
			out.add(urls.TeamURL(&repo.Project, g))
		}
	}
	return out.items
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{}), items: []string{}}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
