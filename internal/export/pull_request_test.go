package export

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/bbs-exporter/internal/types"
)

func TestSortCommits(t *testing.T) {
	commits := []types.Commit{
		{ID: "c", AuthorTimestamp: 1000},
		{ID: "b", AuthorTimestamp: 3000},
		{ID: "z", AuthorTimestamp: 2000},
		{ID: "a", AuthorTimestamp: 2000},
	}
	sorted := sortCommits(commits)

	ids := make([]string, 0, len(sorted))
	for _, c := range sorted {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"b", "a", "z", "c"}, ids)
	assert.Equal(t, "c", commits[0].ID, "input must not be reordered")
}

func TestCommitIDForTimestamp(t *testing.T) {
	p := &pullRequestExporter{commits: sortCommits([]types.Commit{
		{ID: "first", AuthorTimestamp: 1000},
		{ID: "second", AuthorTimestamp: 2000},
		{ID: "third", AuthorTimestamp: 3000},
	})}

	tests := []struct {
		ts   int64
		want string
	}{
		{ts: 500, want: blankCommitID},
		{ts: 1000, want: "first"},
		{ts: 2500, want: "second"},
		{ts: 3000, want: "third"},
		{ts: 9000, want: "third"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.commitIDForTimestamp(tt.ts), "ts %d", tt.ts)
	}
}

func TestIssueEvents(t *testing.T) {
	assert.Equal(t, "closed", issueEvents[types.ActionDeclined])
	assert.Equal(t, "merged", issueEvents[types.ActionMerged])
	assert.Equal(t, "reopened", issueEvents[types.ActionReopened])
	assert.NotContains(t, issueEvents, types.ActionApproved)
}
