package serialize

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/bbs-exporter/internal/diff"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

const host = "https://bitbucket.example.com"

func self(href string) types.Links {
	return types.Links{Self: []types.Link{{Href: href}}}
}

func fixtureProject() types.Project {
	return types.Project{Key: "MIGR", Name: "Migration", Links: self(host + "/projects/MIGR")}
}

func fixtureRepo() *types.Repository {
	return &types.Repository{
		Slug:    "hugo-pages",
		Project: fixtureProject(),
		Links:   self(host + "/projects/MIGR/repos/hugo-pages/browse"),
	}
}

func fixtureUser(slug string) types.User {
	return types.User{
		Name:         slug,
		Slug:         slug,
		DisplayName:  strings.ToUpper(slug),
		EmailAddress: slug + "@example.com",
		Links:        self(host + "/users/" + slug),
	}
}

func fixturePR() *types.PullRequest {
	return &types.PullRequest{
		ID:          7,
		Title:       "Add theme",
		State:       types.StateMerged,
		CreatedDate: 1500000000000,
		UpdatedDate: 1500000360000,
		FromRef:     types.Ref{DisplayID: "feature", LatestCommit: "aaa"},
		ToRef:       types.Ref{DisplayID: "master", LatestCommit: "bbb"},
		Author:      types.Participant{User: fixtureUser("unit-test")},
		Links:       self(host + "/projects/MIGR/repos/hugo-pages/pull-requests/7"),
	}
}

func newTestSerializer() *Serializer {
	s := New(NewURLService(host))
	s.Now = func() time.Time { return time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestURLService(t *testing.T) {
	urls := NewURLService(host)
	repo := fixtureRepo()
	pr := fixturePR()
	project := fixtureProject()

	commented := &types.Activity{
		ID:      42,
		Action:  types.ActionCommented,
		Comment: &types.Comment{ID: 5, Author: fixtureUser("reviewer")},
	}
	approved := &types.Activity{ID: 43, Action: types.ActionApproved}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"repository", urls.RepositoryURL(repo), host + "/projects/MIGR/repos/hugo-pages"},
		{"organization", urls.OrganizationURL(&project), host + "/projects/MIGR"},
		{"user with links", urls.UserURL(&types.User{Slug: "x", Links: self(host + "/users/x")}), host + "/users/x"},
		{"user without links", urls.UserURL(&types.User{Slug: "ghost"}), host + "/users/ghost"},
		{"issue comment", urls.IssueCommentURL(pr, 9), host + "/projects/MIGR/repos/hugo-pages/pull-requests/7/overview?commentId=9"},
		{"review comment", urls.ReviewCommentURL(pr, 9), host + "/projects/MIGR/repos/hugo-pages/pull-requests/7/overview?commentId=9#r9"},
		{"comment review", urls.ReviewURL(pr, commented, "abc"), host + "/projects/MIGR/repos/hugo-pages/pull-requests/7#reviewer-abc"},
		{"approval review", urls.ReviewURL(pr, approved, "abc"), host + "/projects/MIGR/repos/hugo-pages/pull-requests/7#43"},
		{"issue event", urls.IssueEventURL(pr, 431), host + "/projects/MIGR/repos/hugo-pages/pull-requests/7#event-431"},
		{"team", urls.TeamURL(&project, "dev team"), host + "/admin/groups/view?name=dev+team#MIGR"},
		{"protected branch", urls.ProtectedBranchURL(repo, "master"), host + "/plugins/servlet/branch-permissions/MIGR/hugo-pages#master"},
		{"commit comment", urls.CommitCommentURL(repo, "abc123", 4), host + "/projects/MIGR/repos/hugo-pages/commits/abc123?commentId=4#commitcomment-4"},
		{"release", urls.ReleaseURL(repo, &types.Tag{DisplayID: "v1.0"}), host + "/projects/MIGR/repos/hugo-pages/browse?at=refs%2Ftags%2Fv1.0"},
		{"attachment", urls.AttachmentURL(repo, "1", "logo.png"), host + "/projects/MIGR/repos/hugo-pages/attachments/1/logo.png"},
		{"attachment with space", urls.AttachmentURL(repo, "ab12", "my logo.png"), host + "/projects/MIGR/repos/hugo-pages/attachments/ab12/my%20logo.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestURLTemplatesCoverModelTypes(t *testing.T) {
	templates := URLTemplates()
	for _, key := range []string{
		"user", "organization", "team", "repository", "issue_comment", "issue_event",
		"pull_request", "pull_request_review_comment", "commit_comment", "release", "protected_branch",
	} {
		assert.Contains(t, templates, key)
	}
	_, err := json.Marshal(templates)
	require.NoError(t, err)
}

func TestUser(t *testing.T) {
	s := newTestSerializer()
	u := fixtureUser("unit-test")

	rec, err := s.User(&u)
	require.NoError(t, err)
	assert.Equal(t, "user", rec.Type)
	assert.Equal(t, host+"/users/unit-test", rec.URL)
	assert.Equal(t, "unit-test", rec.Login)
	assert.Equal(t, []Email{{Address: "unit-test@example.com", Primary: true}}, rec.Emails)
	assert.Equal(t, "2020-01-02T03:04:05Z", rec.CreatedAt)

	u.EmailAddress = ""
	rec, err = s.User(&u)
	require.NoError(t, err)
	assert.Empty(t, rec.Emails)
	assert.NotNil(t, rec.Emails)

	_, err = s.User(&types.User{Slug: "nameless"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"name can't be blank"}, verr.Problems)
}

func TestOrganizationMembers(t *testing.T) {
	s := newTestSerializer()
	project := fixtureProject()
	project.Members = []types.UserPermission{
		{User: fixtureUser("admin"), Permission: types.ProjectAdmin},
		{User: fixtureUser("dev"), Permission: types.ProjectWrite},
	}

	rec, err := s.Organization(&project)
	require.NoError(t, err)
	assert.Equal(t, "MIGR", rec.Login)
	assert.Equal(t, []Member{
		{User: host + "/users/admin", Role: "admin"},
		{User: host + "/users/dev", Role: "direct_member"},
	}, rec.Members)
}

func TestRepository(t *testing.T) {
	s := newTestSerializer()
	repo := fixtureRepo()
	repo.Description = "Static\x07 site\n"

	collaborators := []types.UserPermission{
		{User: fixtureUser("reader"), Permission: types.RepoRead},
		{User: fixtureUser("owner"), Permission: types.RepoAdmin},
	}

	rec, err := s.Repository(repo, collaborators, nil)
	require.NoError(t, err)
	assert.Equal(t, host+"/projects/MIGR/repos/hugo-pages", rec.URL)
	assert.Equal(t, host+"/projects/MIGR", rec.Owner)
	assert.Equal(t, "Static site", rec.Description)
	assert.True(t, rec.Private)
	assert.Equal(t, "tarball://root/repositories/MIGR/hugo-pages.git", rec.GitURL)
	assert.Equal(t, "master", rec.DefaultBranch)
	assert.Equal(t, []Collaborator{
		{User: host + "/users/reader", Permission: "read"},
		{User: host + "/users/owner", Permission: "admin"},
	}, rec.Collaborators)
	assert.NotNil(t, rec.PublicKeys)

	repo.Public = true
	rec, err = s.Repository(repo, []types.UserPermission{}, nil)
	require.NoError(t, err)
	assert.False(t, rec.Private)

	_, err = s.Repository(repo, nil, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, "collaborators can't be blank")

	_, err = s.Repository(repo, []types.UserPermission{{User: fixtureUser("x"), Permission: types.ProjectRead}}, nil)
	require.ErrorAs(t, err, &verr)
}

func TestPullRequestClosedDates(t *testing.T) {
	s := newTestSerializer()
	repo := fixtureRepo()

	tests := []struct {
		state  string
		merged bool
		closed bool
	}{
		{types.StateOpen, false, false},
		{types.StateMerged, true, true},
		{types.StateDeclined, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			pr := fixturePR()
			pr.State = tt.state
			rec, err := s.PullRequest(repo, pr, "body")
			require.NoError(t, err)
			assert.Equal(t, tt.merged, rec.MergedAt != nil)
			assert.Equal(t, tt.closed, rec.ClosedAt != nil)
			if rec.ClosedAt != nil {
				assert.Equal(t, "2017-07-14T02:46:00Z", *rec.ClosedAt)
			}
			assert.Equal(t, "2017-07-14T02:40:00Z", rec.CreatedAt)
			assert.Equal(t, "master", rec.Base.Ref)
			assert.Equal(t, "aaa", rec.Head.SHA)
			assert.Equal(t, host+"/projects/MIGR", rec.Head.User)
		})
	}

	pr := fixturePR()
	pr.FromRef.LatestCommit = ""
	_, err := s.PullRequest(repo, pr, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"from_ref_latest_commit can't be blank"}, verr.Problems)
}

func TestIssueCommentRequiresText(t *testing.T) {
	s := newTestSerializer()
	pr := fixturePR()
	comment := &types.Comment{ID: 3, Text: "LGTM", Author: fixtureUser("dev"), CreatedDate: 1500000000000}

	rec, err := s.IssueComment(pr, comment)
	require.NoError(t, err)
	assert.Equal(t, Formatter, rec.Formatter)
	assert.Equal(t, host+"/projects/MIGR/repos/hugo-pages/pull-requests/7/overview?commentId=3", rec.URL)

	comment.Text = "  "
	_, err = s.IssueComment(pr, comment)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = s.IssueComment(pr, nil)
	require.ErrorAs(t, err, &verr)
}

func TestReviewComment(t *testing.T) {
	s := newTestSerializer()
	pr := fixturePR()
	root := &types.Comment{ID: 10, Text: "nit", Author: fixtureUser("reviewer"), CreatedDate: 1500000000000}
	reply := &types.Comment{ID: 11, Text: "fixed", Author: fixtureUser("dev"), CreatedDate: 1500000001000}
	activity := &types.Activity{
		ID:            99,
		Action:        types.ActionCommented,
		Comment:       root,
		CommentAnchor: &types.CommentAnchor{Path: "README.md", ToHash: "abc"},
		Diff:          &diff.Item{},
	}
	position := 4
	hunk := "@@ -1,1 +1,1 @@\n+x"

	rec, err := s.ReviewComment(ReviewCommentInput{
		PullRequest: pr, Activity: activity, Comment: reply, Parent: root,
		Body: "fixed", CommitID: "abc", Position: &position, DiffHunk: &hunk,
	})
	require.NoError(t, err)
	require.NotNil(t, rec.InReplyTo)
	assert.Equal(t, host+"/projects/MIGR/repos/hugo-pages/pull-requests/7/overview?commentId=10#r10", *rec.InReplyTo)
	assert.Equal(t, host+"/projects/MIGR/repos/hugo-pages/pull-requests/7#reviewer-abc", rec.Review)
	assert.Equal(t, "README.md", rec.Path)
	assert.Equal(t, 4, *rec.OriginalPosition)
	assert.Equal(t, 1, rec.State)

	empty := ""
	_, err = s.ReviewComment(ReviewCommentInput{
		PullRequest: pr, Activity: activity, Comment: root,
		Body: "nit", CommitID: "abc", DiffHunk: &empty,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, "diff_hunk cannot be an empty string")

	_, err = s.ReviewComment(ReviewCommentInput{
		PullRequest: pr, Activity: activity, Comment: root, Body: "nit", CommitID: "abc",
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems, "must have either `position` or `diff_hunk`")
}

func TestCommitCommentRequiresPosition(t *testing.T) {
	s := newTestSerializer()
	in := CommitCommentInput{
		Repository: fixtureRepo(),
		Comment:    &types.Comment{ID: 4, Author: fixtureUser("dev"), CreatedDate: 1500000000000},
		CommitID:   "abc123",
		Path:       "main.go",
		Position:   2,
		Body:       "why?",
	}
	rec, err := s.CommitComment(in)
	require.NoError(t, err)
	assert.Equal(t, host+"/projects/MIGR/repos/hugo-pages/commits/abc123?commentId=4#commitcomment-4", rec.URL)
	assert.Equal(t, host+"/users/dev", rec.User)

	in.Position = 0
	_, err = s.CommitComment(in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRelease(t *testing.T) {
	s := newTestSerializer()
	user := fixtureUser("exporter")
	rec, err := s.Release(fixtureRepo(), &types.Tag{DisplayID: "v2"}, &user, &types.Commit{AuthorTimestamp: 1500000000000})
	require.NoError(t, err)
	assert.Equal(t, "v2", rec.TagName)
	assert.Equal(t, "v2", rec.PendingTag)
	assert.Equal(t, "published", rec.State)
	assert.Equal(t, "2017-07-14T02:40:00Z", rec.PublishedAt)
	assert.Empty(t, rec.ReleaseAssets)

	_, err = s.Release(fixtureRepo(), &types.Tag{DisplayID: "v2"}, &user, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestAttachmentMarshalsParentUnderItsType(t *testing.T) {
	s := newTestSerializer()
	user := fixtureUser("dev")
	rec, err := s.Attachment(AttachmentInput{
		URL:         host + "/projects/MIGR/repos/hugo-pages/attachments/1/logo.png",
		ParentType:  "issue_comment",
		ParentURL:   host + "/comment",
		User:        &user,
		AssetName:   "logo.png",
		ContentType: "image/png",
		AssetURL:    "tarball://root/attachments/abc.png",
		CreatedDate: 1500000000000,
	})
	require.NoError(t, err)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "attachment", decoded["type"])
	assert.Equal(t, host+"/comment", decoded["issue_comment"])
	assert.Equal(t, "image/png", decoded["asset_content_type"])
	assert.Equal(t, "2017-07-14T02:40:00Z", decoded["created_date"])
	assert.True(t, strings.HasPrefix(string(data), `{"type":"attachment","url":`))
}

func TestTeamAccess(t *testing.T) {
	assert.Equal(t, "admin", TeamAccess([]string{types.RepoRead, types.ProjectAdmin}))
	assert.Equal(t, "push", TeamAccess([]string{types.RepoWrite, types.ProjectRead}))
	assert.Equal(t, "", TeamAccess(nil))

	s := newTestSerializer()
	project := fixtureProject()
	rec, err := s.Team(TeamInput{
		Project:        &project,
		Name:           "developers",
		Permissions:    []string{types.RepoWrite},
		RepositoryURLs: []string{host + "/projects/MIGR/repos/hugo-pages"},
		MemberURLs:     []string{host + "/users/dev"},
	})
	require.NoError(t, err)
	assert.Equal(t, host+"/admin/groups/view?name=developers#MIGR", rec.URL)
	assert.Equal(t, []TeamPermission{{Repository: host + "/projects/MIGR/repos/hugo-pages", Access: "push"}}, rec.Permissions)
	assert.Equal(t, []TeamMember{{User: host + "/users/dev", Role: "member"}}, rec.Members)

	rec, err = s.Team(TeamInput{Project: &project, Name: "restricted", RepositoryURLs: []string{}, MemberURLs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, rec.Permissions)

	_, err = s.Team(TeamInput{Project: &project, Name: "broken", RepositoryURLs: []string{"r"}, MemberURLs: []string{}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestProtectedBranchRequiresName(t *testing.T) {
	s := newTestSerializer()
	_, err := s.ProtectedBranch(fixtureRepo(), "", nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	rec, err := s.ProtectedBranch(fixtureRepo(), "master", nil)
	require.NoError(t, err)
	assert.Equal(t, host+"/plugins/servlet/branch-permissions/MIGR/hugo-pages#master", rec.URL)
}

func TestBodies(t *testing.T) {
	assert.Equal(t,
		":twisted_rightwards_arrows: *Originally on **line 12** in Bitbucket Server:*\n\nhello",
		BodyWithOriginalLine(12, "hello"))
	assert.True(t, strings.HasSuffix(BodyForFileComment("hello"), ":*\n\nhello"))
	assert.Equal(t,
		":twisted_rightwards_arrows: *Originally a **file comment** in Bitbucket Server*\n  `a.go`@`abc`:\n\nhi",
		BodyForReviewFileComment("a.go", "abc", "hi"))
	assert.Contains(t, BodyWithThread("http://x/1", "re"), "[this comment](http://x/1)")
}

func TestReviewStates(t *testing.T) {
	s := newTestSerializer()
	pr := fixturePR()

	tests := []struct {
		action string
		state  int
		ok     bool
	}{
		{types.ActionCommented, ReviewCommented, true},
		{types.ActionApproved, ReviewApproved, true},
		{types.ActionUnapproved, ReviewChangesRequested, true},
		{types.ActionMerged, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			state, ok := ReviewState(tt.action)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.state, state)
		})
	}

	activity := &types.Activity{ID: 8, Action: types.ActionApproved, User: fixtureUser("lead"), CreatedDate: 1500000000000}
	rec, err := s.Review(pr, activity, "abc", ReviewApproved)
	require.NoError(t, err)
	assert.Equal(t, 40, rec.State)
	assert.Equal(t, rec.CreatedAt, rec.SubmittedAt)
	assert.Equal(t, host+"/projects/MIGR/repos/hugo-pages/pull-requests/7#8", rec.URL)

	_, err = s.Review(pr, activity, "", ReviewApproved)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestEscapeSegment(t *testing.T) {
	tests := map[string]string{
		"logo.png":      "logo.png",
		"my logo.png":   "my%20logo.png",
		"a+b&c=d":       "a%2Bb%26c%3Dd",
		"ünïcode~_-.md": "%C3%BCn%C3%AFcode~_-.md",
	}
	for in, want := range tests {
		if got := EscapeSegment(in); got != want {
			t.Errorf("EscapeSegment(%q) = %q, want %q", in, got, want)
		}
	}
}
