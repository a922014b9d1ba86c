package serialize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/steveyegge/bbs-exporter/internal/branchperm"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// Email is one address of a user record.
type Email struct {
	Address string `json:"address"`
	Primary bool   `json:"primary"`
}

// User is a user record.
type User struct {
	Type      string  `json:"type"`
	URL       string  `json:"url"`
	Login     string  `json:"login"`
	Name      string  `json:"name"`
	Emails    []Email `json:"emails"`
	CreatedAt string  `json:"created_at"`
}

// User serializes a Bitbucket user.
func (s *Serializer) User(u *types.User) (*User, error) {
	v := newValidator("user")
	v.requireString("login", u.Slug)
	v.requireString("name", u.DisplayName)
	if err := v.err(); err != nil {
		return nil, err
	}

	emails := []Email{}
	if u.EmailAddress != "" {
		emails = append(emails, Email{Address: u.EmailAddress, Primary: true})
	}
	return &User{
		Type:      "user",
		URL:       s.URLs.UserURL(u),
		Login:     u.Slug,
		Name:      u.DisplayName,
		Emails:    emails,
		CreatedAt: s.createdAt(),
	}, nil
}

// Member is an organization membership.
type Member struct {
	User string `json:"user"`
	Role string `json:"role"`
}

// Member serializes a project permission grant. Project admins become
// organization admins; everyone else is a direct member.
func (s *Serializer) Member(p *types.UserPermission) Member {
	role := "direct_member"
	if p.Permission == types.ProjectAdmin {
		role = "admin"
	}
	return Member{User: s.URLs.MemberURL(p), Role: role}
}

// Organization is an organization record.
type Organization struct {
	Type        string   `json:"type"`
	URL         string   `json:"url"`
	Login       string   `json:"login"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []Member `json:"members"`
}

// Organization serializes a project together with project.Members.
func (s *Serializer) Organization(project *types.Project) (*Organization, error) {
	v := newValidator("organization")
	v.requireString("key", project.Key)
	v.requireString("name", project.Name)
	if err := v.err(); err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(project.Members))
	for i := range project.Members {
		members = append(members, s.Member(&project.Members[i]))
	}
	return &Organization{
		Type:        "organization",
		URL:         s.URLs.OrganizationURL(project),
		Login:       project.Key,
		Name:        project.Name,
		Description: project.Description,
		Members:     members,
	}, nil
}

// Collaborator is a repository permission grant.
type Collaborator struct {
	User       string `json:"user"`
	Permission string `json:"permission"`
}

var collaboratorPermissions = map[string]string{
	types.RepoRead:  "read",
	types.RepoWrite: "write",
	types.RepoAdmin: "admin",
}

// Collaborator serializes a repository permission grant.
func (s *Serializer) Collaborator(p *types.UserPermission) (Collaborator, error) {
	v := newValidator("collaborator")
	v.requireString("permission", p.Permission)
	if err := v.err(); err != nil {
		return Collaborator{}, err
	}
	perm, ok := collaboratorPermissions[p.Permission]
	if !ok {
		return Collaborator{}, &ValidationError{
			Model:    "collaborator",
			Problems: []string{fmt.Sprintf("permission %q is not a repository permission", p.Permission)},
		}
	}
	return Collaborator{User: s.URLs.MemberURL(p), Permission: perm}, nil
}

// PublicKey is a deploy key of a repository.
type PublicKey struct {
	Title       string `json:"title"`
	Key         string `json:"key"`
	ReadOnly    bool   `json:"read_only"`
	Fingerprint string `json:"fingerprint"`
	CreatedAt   string `json:"created_at"`
}

// Repository is a repository record.
type Repository struct {
	Type          string         `json:"type"`
	URL           string         `json:"url"`
	Owner         string         `json:"owner"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Private       bool           `json:"private"`
	HasIssues     bool           `json:"has_issues"`
	HasWiki       bool           `json:"has_wiki"`
	HasDownloads  bool           `json:"has_downloads"`
	Labels        []string       `json:"labels"`
	Collaborators []Collaborator `json:"collaborators"`
	CreatedAt     string         `json:"created_at"`
	GitURL        string         `json:"git_url"`
	DefaultBranch string         `json:"default_branch"`
	PublicKeys    []PublicKey    `json:"public_keys"`
}

// Repository serializes a repository with its collaborators and access
// keys. collaborators must not be nil.
func (s *Serializer) Repository(repo *types.Repository, collaborators []types.UserPermission, keys []types.AccessKey) (*Repository, error) {
	v := newValidator("repository")
	v.require("collaborators", collaborators != nil)
	v.requireString("project", repo.Project.Key)
	v.requireString("name", repo.Slug)
	if err := v.err(); err != nil {
		return nil, err
	}

	collabs := make([]Collaborator, 0, len(collaborators))
	for i := range collaborators {
		c, err := s.Collaborator(&collaborators[i])
		if err != nil {
			return nil, err
		}
		collabs = append(collabs, c)
	}

	createdAt := s.createdAt()
	publicKeys := make([]PublicKey, 0, len(keys))
	for i := range keys {
		k := &keys[i]
		fp, err := k.Fingerprint()
		if err != nil {
			return nil, err
		}
		publicKeys = append(publicKeys, PublicKey{
			Title:       k.Key.Label,
			Key:         k.Key.Text,
			ReadOnly:    k.ReadOnly(),
			Fingerprint: fp,
			CreatedAt:   createdAt,
		})
	}

	return &Repository{
		Type:          "repository",
		URL:           s.URLs.RepositoryURL(repo),
		Owner:         s.URLs.OrganizationURL(&repo.Project),
		Name:          repo.Slug,
		Description:   stripControl(repo.Description),
		Private:       !(repo.Project.Public || repo.Public),
		Labels:        []string{},
		Collaborators: collabs,
		CreatedAt:     createdAt,
		GitURL:        fmt.Sprintf("tarball://root/repositories/%s/%s.git", repo.Project.Key, repo.Slug),
		DefaultBranch: "master",
		PublicKeys:    publicKeys,
	}, nil
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// Ref is the base or head of a pull request record.
type Ref struct {
	Ref  string `json:"ref"`
	SHA  string `json:"sha"`
	User string `json:"user"`
	Repo string `json:"repo"`
}

// PullRequest is a pull request record.
type PullRequest struct {
	Type       string   `json:"type"`
	URL        string   `json:"url"`
	User       string   `json:"user"`
	Repository string   `json:"repository"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Base       Ref      `json:"base"`
	Head       Ref      `json:"head"`
	Labels     []string `json:"labels"`
	MergedAt   *string  `json:"merged_at"`
	ClosedAt   *string  `json:"closed_at"`
	CreatedAt  string   `json:"created_at"`
}

// PullRequest serializes a pull request. body replaces the description,
// which may have had its attachment links rewritten.
func (s *Serializer) PullRequest(repo *types.Repository, pr *types.PullRequest, body string) (*PullRequest, error) {
	v := newValidator("pull_request")
	v.requireString("author", pr.Author.User.Slug)
	v.require("created_date", pr.CreatedDate != 0)
	v.requireString("from_ref_display_id", pr.FromRef.DisplayID)
	v.requireString("from_ref_latest_commit", pr.FromRef.LatestCommit)
	v.requireString("project", repo.Project.Key)
	v.requireString("repository", repo.Slug)
	v.requireString("state", pr.State)
	v.requireString("to_ref_display_id", pr.ToRef.DisplayID)
	v.requireString("to_ref_latest_commit", pr.ToRef.LatestCommit)
	v.require("updated_date", pr.UpdatedDate != 0)
	if err := v.err(); err != nil {
		return nil, err
	}

	projectURL := s.URLs.OrganizationURL(&repo.Project)
	repoURL := s.URLs.RepositoryURL(repo)

	var mergedAt, closedAt *string
	if pr.State == types.StateMerged || pr.State == types.StateDeclined {
		updated := FormatMillis(pr.UpdatedDate)
		closedAt = &updated
		if pr.State == types.StateMerged {
			mergedAt = &updated
		}
	}

	return &PullRequest{
		Type:       "pull_request",
		URL:        s.URLs.PullRequestURL(pr),
		User:       s.URLs.UserURL(&pr.Author.User),
		Repository: repoURL,
		Title:      pr.Title,
		Body:       body,
		Base:       Ref{Ref: pr.ToRef.DisplayID, SHA: pr.ToRef.LatestCommit, User: projectURL, Repo: repoURL},
		Head:       Ref{Ref: pr.FromRef.DisplayID, SHA: pr.FromRef.LatestCommit, User: projectURL, Repo: repoURL},
		Labels:     []string{},
		MergedAt:   mergedAt,
		ClosedAt:   closedAt,
		CreatedAt:  FormatMillis(pr.CreatedDate),
	}, nil
}

// IssueComment is a general pull request comment record.
type IssueComment struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	PullRequest string `json:"pull_request"`
	User        string `json:"user"`
	Body        string `json:"body"`
	Formatter   string `json:"formatter"`
	CreatedAt   string `json:"created_at"`
}

// IssueComment serializes a pull request comment. The comment's Text is used
// as the body.
func (s *Serializer) IssueComment(pr *types.PullRequest, comment *types.Comment) (*IssueComment, error) {
	v := newValidator("issue_comment")
	v.require("pull_request_comment", comment != nil)
	if comment != nil {
		v.requireString("author", comment.Author.Slug)
		v.require("created_date", comment.CreatedDate != 0)
		v.requireString("text", comment.Text)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return &IssueComment{
		Type:        "issue_comment",
		URL:         s.URLs.IssueCommentURL(pr, comment.ID),
		PullRequest: s.URLs.PullRequestURL(pr),
		User:        s.URLs.UserURL(&comment.Author),
		Body:        comment.Text,
		Formatter:   Formatter,
		CreatedAt:   FormatMillis(comment.CreatedDate),
	}, nil
}

// IssueEvent is a pull request state change record.
type IssueEvent struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	PullRequest string `json:"pull_request"`
	Actor       string `json:"actor"`
	Event       string `json:"event"`
	CreatedAt   string `json:"created_at"`
}

// IssueEvent serializes event ("closed", "merged" or "reopened") raised by
// activity. eventID identifies the record within the pull request.
func (s *Serializer) IssueEvent(pr *types.PullRequest, activity *types.Activity, event string, eventID int64) (*IssueEvent, error) {
	v := newValidator("issue_event")
	v.require("activity", activity != nil)
	v.requireString("event", event)
	v.require("pull_request", pr != nil)
	if activity != nil {
		v.requireString("user", activity.User.Slug)
		v.require("created_date", activity.CreatedDate != 0)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return &IssueEvent{
		Type:        "issue_event",
		URL:         s.URLs.IssueEventURL(pr, eventID),
		PullRequest: s.URLs.PullRequestURL(pr),
		Actor:       s.URLs.UserURL(&activity.User),
		Event:       event,
		CreatedAt:   FormatMillis(activity.CreatedDate),
	}, nil
}

// Review states as the importer numbers them.
const (
	ReviewCommented        = 1
	ReviewChangesRequested = 30
	ReviewApproved         = 40
)

// ReviewState maps an activity action to a review state. Removing an
// approval becomes a change request.
func ReviewState(action string) (int, bool) {
	switch action {
	case types.ActionCommented:
		return ReviewCommented, true
	case types.ActionApproved:
		return ReviewApproved, true
	case types.ActionUnapproved:
		return ReviewChangesRequested, true
	}
	return 0, false
}

// Review is a pull request review record.
type Review struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	PullRequest string `json:"pull_request"`
	User        string `json:"user"`
	Formatter   string `json:"formatter"`
	HeadSHA     string `json:"head_sha"`
	State       int    `json:"state"`
	CreatedAt   string `json:"created_at"`
	SubmittedAt string `json:"submitted_at"`
}

// Review serializes the review raised by activity on commitID.
func (s *Serializer) Review(pr *types.PullRequest, activity *types.Activity, commitID string, state int) (*Review, error) {
	v := newValidator("pull_request_review")
	v.require("activity", activity != nil)
	v.requireString("commit_id", commitID)
	v.require("pull_request", pr != nil)
	v.require("state", state != 0)
	if activity != nil {
		v.require("created_date", activity.CreatedDate != 0)
		v.requireString("user", activity.User.Slug)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	created := FormatMillis(activity.CreatedDate)
	return &Review{
		Type:        "pull_request_review",
		URL:         s.URLs.ReviewURL(pr, activity, commitID),
		PullRequest: s.URLs.PullRequestURL(pr),
		User:        s.URLs.UserURL(&activity.User),
		Formatter:   Formatter,
		HeadSHA:     commitID,
		State:       state,
		CreatedAt:   created,
		SubmittedAt: created,
	}, nil
}

// ReviewCommentInput describes one inline review comment. Activity is the
// activity of the thread's root comment; Parent is set for replies.
type ReviewCommentInput struct {
	PullRequest *types.PullRequest
	Activity    *types.Activity
	Comment     *types.Comment
	Parent      *types.Comment
	Body        string
	CommitID    string
	Position    *int
	DiffHunk    *string
}

// ReviewComment is an inline review comment record.
type ReviewComment struct {
	Type             string  `json:"type"`
	URL              string  `json:"url"`
	PullRequest      string  `json:"pull_request"`
	Review           string  `json:"pull_request_review"`
	InReplyTo        *string `json:"in_reply_to"`
	User             string  `json:"user"`
	Body             string  `json:"body"`
	Formatter        string  `json:"formatter"`
	Path             string  `json:"path"`
	CommitID         string  `json:"commit_id"`
	OriginalPosition *int    `json:"original_position"`
	Position         *int    `json:"position"`
	DiffHunk         *string `json:"diff_hunk"`
	State            int     `json:"state"`
	CreatedAt        string  `json:"created_at"`
}

// reviewCommentSubmitted is the importer's "submitted" state.
const reviewCommentSubmitted = 1

// ReviewComment serializes an inline review comment.
func (s *Serializer) ReviewComment(in ReviewCommentInput) (*ReviewComment, error) {
	v := newValidator("pull_request_review_comment")
	v.require("activity", in.Activity != nil)
	v.require("comment", in.Comment != nil)
	v.requireString("body", in.Body)
	v.requireString("commit_id", in.CommitID)
	if in.Comment != nil {
		v.requireString("author", in.Comment.Author.Slug)
		v.require("created_date", in.Comment.CreatedDate != 0)
	}
	if in.Activity != nil {
		v.require("path", in.Activity.CommentAnchor != nil && in.Activity.CommentAnchor.Path != "")
	}
	if in.DiffHunk != nil && *in.DiffHunk == "" {
		v.add("diff_hunk cannot be an empty string")
	}
	if in.Position == nil && in.DiffHunk == nil {
		v.add("must have either `position` or `diff_hunk`")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var inReplyTo *string
	if in.Parent != nil {
		u := s.URLs.ReviewCommentURL(in.PullRequest, in.Parent.ID)
		inReplyTo = &u
	}
	return &ReviewComment{
		Type:             "pull_request_review_comment",
		URL:              s.URLs.ReviewCommentURL(in.PullRequest, in.Comment.ID),
		PullRequest:      s.URLs.PullRequestURL(in.PullRequest),
		Review:           s.URLs.ReviewURL(in.PullRequest, in.Activity, in.CommitID),
		InReplyTo:        inReplyTo,
		User:             s.URLs.UserURL(&in.Comment.Author),
		Body:             in.Body,
		Formatter:        Formatter,
		Path:             in.Activity.CommentAnchor.Path,
		CommitID:         in.CommitID,
		OriginalPosition: in.Position,
		Position:         in.Position,
		DiffHunk:         in.DiffHunk,
		State:            reviewCommentSubmitted,
		CreatedAt:        FormatMillis(in.Comment.CreatedDate),
	}, nil
}

// CommitCommentInput describes one comment on a commit.
type CommitCommentInput struct {
	Repository *types.Repository
	Comment    *types.Comment
	CommitID   string
	Path       string
	Position   int
	Body       string
}

// CommitComment is a commit comment record.
type CommitComment struct {
	Type       string `json:"type"`
	URL        string `json:"url"`
	Repository string `json:"repository"`
	User       string `json:"user"`
	Body       string `json:"body"`
	Formatter  string `json:"formatter"`
	Path       string `json:"path"`
	Position   int    `json:"position"`
	CommitID   string `json:"commit_id"`
	CreatedAt  string `json:"created_at"`
}

// CommitComment serializes a comment on a commit.
func (s *Serializer) CommitComment(in CommitCommentInput) (*CommitComment, error) {
	v := newValidator("commit_comment")
	v.requireString("body", in.Body)
	v.require("comment", in.Comment != nil)
	v.requireString("commit_id", in.CommitID)
	v.requireString("path", in.Path)
	v.require("position", in.Position > 0)
	v.require("repository", in.Repository != nil)
	if in.Comment != nil {
		v.require("created_date", in.Comment.CreatedDate != 0)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return &CommitComment{
		Type:       "commit_comment",
		URL:        s.URLs.CommitCommentURL(in.Repository, in.CommitID, in.Comment.ID),
		Repository: s.URLs.RepositoryURL(in.Repository),
		User:       s.URLs.UserURL(&in.Comment.Author),
		Body:       in.Body,
		Formatter:  Formatter,
		Path:       in.Path,
		Position:   in.Position,
		CommitID:   in.CommitID,
		CreatedAt:  FormatMillis(in.Comment.CreatedDate),
	}, nil
}

// Release is a release record.
type Release struct {
	Type            string   `json:"type"`
	URL             string   `json:"url"`
	Repository      string   `json:"repository"`
	User            string   `json:"user"`
	Name            string   `json:"name"`
	TagName         string   `json:"tag_name"`
	Body            string   `json:"body"`
	State           string   `json:"state"`
	PendingTag      string   `json:"pending_tag"`
	Prerelease      bool     `json:"prerelease"`
	TargetCommitish string   `json:"target_commitish"`
	ReleaseAssets   []string `json:"release_assets"`
	PublishedAt     string   `json:"published_at"`
	CreatedAt       string   `json:"created_at"`
}

// Release serializes tag as a published release attributed to user, dated
// by the author timestamp of the tagged commit.
func (s *Serializer) Release(repo *types.Repository, tag *types.Tag, user *types.User, commit *types.Commit) (*Release, error) {
	v := newValidator("release")
	v.require("tag", tag != nil)
	v.require("repository", repo != nil)
	v.require("user", user != nil)
	v.require("commit", commit != nil)
	if tag != nil {
		v.requireString("display_id", tag.DisplayID)
	}
	if commit != nil {
		v.require("author_timestamp", commit.AuthorTimestamp != 0)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	ts := FormatMillis(commit.AuthorTimestamp)
	return &Release{
		Type:            "release",
		URL:             s.URLs.ReleaseURL(repo, tag),
		Repository:      s.URLs.RepositoryURL(repo),
		User:            s.URLs.UserURL(user),
		Name:            tag.DisplayID,
		TagName:         tag.DisplayID,
		Body:            "",
		State:           "published",
		PendingTag:      tag.DisplayID,
		Prerelease:      false,
		TargetCommitish: "master",
		ReleaseAssets:   []string{},
		PublishedAt:     ts,
		CreatedAt:       ts,
	}, nil
}

// Attachment is an attachment record. The parent reference is keyed by the
// parent's model type, so the record marshals itself.
type Attachment struct {
	URL              string
	ParentType       string
	ParentURL        string
	User             string
	AssetName        string
	AssetContentType string
	AssetURL         string
	CreatedDate      string
}

// AttachmentInput describes an attachment found in a comment or description.
type AttachmentInput struct {
	URL         string
	ParentType  string
	ParentURL   string
	User        *types.User
	AssetName   string
	ContentType string
	AssetURL    string
	CreatedDate int64
}

// Attachment serializes an attachment.
func (s *Serializer) Attachment(in AttachmentInput) (*Attachment, error) {
	v := newValidator("attachment")
	v.requireString("url", in.URL)
	v.requireString("parent_type", in.ParentType)
	v.requireString("parent_url", in.ParentURL)
	v.require("user", in.User != nil)
	v.requireString("asset_name", in.AssetName)
	v.requireString("asset_url", in.AssetURL)
	if err := v.err(); err != nil {
		return nil, err
	}
	return &Attachment{
		URL:              in.URL,
		ParentType:       in.ParentType,
		ParentURL:        in.ParentURL,
		User:             s.URLs.UserURL(in.User),
		AssetName:        in.AssetName,
		AssetContentType: in.ContentType,
		AssetURL:         in.AssetURL,
		CreatedDate:      FormatMillis(in.CreatedDate),
	}, nil
}

// MarshalJSON writes the record with the parent URL under the parent type.
func (a *Attachment) MarshalJSON() ([]byte, error) {
	fields := []struct {
		key   string
		value string
	}{
		{"type", "attachment"},
		{"url", a.URL},
		{a.ParentType, a.ParentURL},
		{"user", a.User},
		{"asset_name", a.AssetName},
		{"asset_content_type", a.AssetContentType},
		{"asset_url", a.AssetURL},
		{"created_date", a.CreatedDate},
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// TeamInput describes a team. RepositoryURLs and MemberURLs must not be nil;
// Permissions are the Bitbucket grants the team holds on its repositories.
type TeamInput struct {
	Project        *types.Project
	Name           string
	Permissions    []string
	RepositoryURLs []string
	MemberURLs     []string
}

// TeamPermission is a team's access to one repository.
type TeamPermission struct {
	Repository string `json:"repository"`
	Access     string `json:"access"`
}

// TeamMember is one member of a team.
type TeamMember struct {
	User string `json:"user"`
	Role string `json:"role"`
}

// Team is a team record.
type Team struct {
	Type         string           `json:"type"`
	URL          string           `json:"url"`
	Organization string           `json:"organization"`
	Name         string           `json:"name"`
	Permissions  []TeamPermission `json:"permissions"`
	Members      []TeamMember     `json:"members"`
	CreatedAt    string           `json:"created_at"`
}

var teamAccess = map[string]struct {
	rank   int
	access string
}{
	types.ProjectRead:  {0, "pull"},
	types.ProjectWrite: {1, "push"},
	types.ProjectAdmin: {2, "admin"},
	types.RepoRead:     {0, "pull"},
	types.RepoWrite:    {1, "push"},
	types.RepoAdmin:    {2, "admin"},
}

// TeamAccess returns the broadest GitHub access among Bitbucket
// permissions, or "" when none is known.
func TeamAccess(permissions []string) string {
	best, access := -1, ""
	for _, p := range permissions {
		if a, ok := teamAccess[p]; ok && a.rank > best {
			best, access = a.rank, a.access
		}
	}
	return access
}

// Team serializes a team.
func (s *Serializer) Team(in TeamInput) (*Team, error) {
	v := newValidator("team")
	v.require("repositories", in.RepositoryURLs != nil)
	v.require("members", in.MemberURLs != nil)
	v.require("project", in.Project != nil)
	v.requireString("name", in.Name)
	access := TeamAccess(in.Permissions)
	if len(in.RepositoryURLs) > 0 && access == "" {
		v.add("permissions can't be blank")
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	perms := make([]TeamPermission, 0, len(in.RepositoryURLs))
	for _, r := range in.RepositoryURLs {
		perms = append(perms, TeamPermission{Repository: r, Access: access})
	}
	members := make([]TeamMember, 0, len(in.MemberURLs))
	for _, m := range in.MemberURLs {
		members = append(members, TeamMember{User: m, Role: "member"})
	}
	return &Team{
		Type:         "team",
		URL:          s.URLs.TeamURL(in.Project, in.Name),
		Organization: s.URLs.OrganizationURL(in.Project),
		Name:         in.Name,
		Permissions:  perms,
		Members:      members,
		CreatedAt:    s.createdAt(),
	}, nil
}

// ProtectedBranch serializes the permissions aggregated for branch.
func (s *Serializer) ProtectedBranch(repo *types.Repository, branch string, perms []types.BranchPermission) (*branchperm.ProtectedBranch, error) {
	pb, err := branchperm.BuildProtectedBranch(repo, branch, perms, s.URLs)
	if err != nil {
		return nil, &ValidationError{Model: "protected_branch", Problems: []string{err.Error()}}
	}
	return pb, nil
}
