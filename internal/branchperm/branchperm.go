// Package branchperm resolves Bitbucket Server branch permissions onto the
// concrete branches they protect.
//
// Bitbucket restricts refs by literal name, by glob pattern, and by
// branching model category or named branch. GitHub only protects explicit
// branches, so every active permission is expanded to the branches it
// covers and aggregated per branch.
package branchperm

import (
	"fmt"
	"strings"

	"github.com/steveyegge/bbs-exporter/internal/pattern"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// UnknownMatcherError is returned for a matcher kind Bitbucket Server does
// not define.
type UnknownMatcherError struct {
	Type string
}

func (e *UnknownMatcherError) Error() string {
	return fmt.Sprintf("%q is not a valid branch permission type ID!", e.Type)
}

// MissingBranchMessage is the warning for a MODEL_BRANCH matcher whose
// branch is not configured in the branching model.
func MissingBranchMessage(id string) string {
	return fmt.Sprintf("was skipped because the branch %q was not found", id)
}

// Map is an insertion-ordered mapping from branch display name to the
// permissions that apply to it.
type Map struct {
	order []string
	perms map[string][]types.BranchPermission
}

func newMap() *Map {
	return &Map{perms: make(map[string][]types.BranchPermission)}
}

func (m *Map) add(branch string, p types.BranchPermission) {
	if _, ok := m.perms[branch]; !ok {
		m.order = append(m.order, branch)
	}
	m.perms[branch] = append(m.perms[branch], p)
}

// Branches returns the branch names in the order they were first resolved.
func (m *Map) Branches() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Permissions returns the permissions for branch in matcher order.
func (m *Map) Permissions(branch string) []types.BranchPermission {
	return m.perms[branch]
}

// Len returns the number of branches.
func (m *Map) Len() int {
	return len(m.order)
}

// Aggregator expands branch permissions. A zero Aggregator is not usable;
// call NewAggregator.
type Aggregator struct {
	branches []types.Branch
	model    *types.BranchModel
	matcher  *pattern.Matcher

	// Warn receives recoverable problems, such as a named branching model
	// branch that is not configured. May be nil.
	Warn func(message string)
}

// NewAggregator returns an Aggregator over the repository's branches and
// branching model. model may be nil when the repository has none.
func NewAggregator(branches []types.Branch, model *types.BranchModel) *Aggregator {
	return &Aggregator{
		branches: branches,
		model:    model,
		matcher:  pattern.NewMatcher(),
	}
}

// Aggregate is shorthand for NewAggregator followed by Aggregator.Aggregate.
func Aggregate(permissions []types.BranchPermission, branches []types.Branch, model *types.BranchModel, warn func(string)) (*Map, error) {
	a := NewAggregator(branches, model)
	a.Warn = warn
	return a.Aggregate(permissions)
}

// Aggregate resolves every active permission and groups the results by
// branch. Inactive matchers are ignored. An unknown matcher kind aborts the
// whole aggregation.
func (a *Aggregator) Aggregate(permissions []types.BranchPermission) (*Map, error) {
	out := newMap()

	for _, p := range permissions {
		if !p.Matcher.Active {
			continue
		}

		switch p.Matcher.Type.ID {
		case types.MatcherBranch:
			out.add(p.Matcher.DisplayID, p)

		case types.MatcherPattern:
			for _, b := range a.byPattern(p.Matcher.DisplayID) {
				out.add(b.DisplayID, p)
			}

		case types.MatcherModelCategory:
			for _, b := range a.byCategory(p.Matcher.ID) {
				out.add(b.DisplayID, p)
			}

		case types.MatcherModelBranch:
			b := a.model.Named(p.Matcher.ID)
			if b == nil {
				a.warn(MissingBranchMessage(p.Matcher.ID))
				continue
			}
			out.add(b.DisplayID, p)

		default:
			return nil, &UnknownMatcherError{Type: string(p.Matcher.Type.ID)}
		}
	}

	return out, nil
}

// byPattern returns the branches whose fully qualified ref matches a
// Bitbucket branch pattern.
func (a *Aggregator) byPattern(expr string) []types.Branch {
	var out []types.Branch
	for _, b := range a.branches {
		ref := b.ID
		if ref == "" {
			ref = b.DisplayID
		}
		if a.matcher.Match(expr, ref) {
			out = append(out, b)
		}
	}
	return out
}

// byCategory returns the branches whose display name starts with the prefix
// of a branching model category. The prefix is compared literally.
func (a *Aggregator) byCategory(typeID string) []types.Branch {
	prefix, ok := a.model.Prefix(typeID)
	if !ok {
		a.warn(fmt.Sprintf("was skipped because the branching model category %q was not found", typeID))
		return nil
	}

	var out []types.Branch
	for _, b := range a.branches {
		if strings.HasPrefix(b.DisplayID, prefix) {
			out = append(out, b)
		}
	}
	return out
}

func (a *Aggregator) warn(msg string) {
	if a.Warn != nil {
		a.Warn(msg)
	}
}
