// Package types defines the Bitbucket Server data structures the exporter
// reads from the REST API.
package types

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/steveyegge/bbs-exporter/internal/diff"
)

// Link is a single hypermedia link.
type Link struct {
	Href string `json:"href"`
	Name string `json:"name,omitempty"`
}

// Links holds the "links" object Bitbucket attaches to most resources.
type Links struct {
	Self  []Link `json:"self,omitempty"`
	Clone []Link `json:"clone,omitempty"`
}

// SelfURL returns the first self link, or "".
func (l Links) SelfURL() string {
	if len(l.Self) == 0 {
		return ""
	}
	return l.Self[0].Href
}

// User is a Bitbucket Server user.
type User struct {
	Name         string `json:"name"`
	EmailAddress string `json:"emailAddress,omitempty"`
	ID           int64  `json:"id"`
	DisplayName  string `json:"displayName"`
	Active       bool   `json:"active"`
	Slug         string `json:"slug"`
	Type         string `json:"type,omitempty"`
	Links        Links  `json:"links"`
}

// Project is a Bitbucket Server project. Personal projects have keys that
// start with "~" and carry an Owner.
type Project struct {
	Key         string `json:"key"`
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
	Type        string `json:"type,omitempty"`
	Owner       *User  `json:"owner,omitempty"`
	Links       Links  `json:"links"`

	// Members is filled in by the exporter, not by the API.
	Members []UserPermission `json:"-"`
}

// IsUserProject reports whether key names a personal project.
func IsUserProject(key string) bool {
	return strings.HasPrefix(key, "~")
}

// IsUserProject reports whether the project is a personal project.
func (p *Project) IsUserProject() bool {
	return IsUserProject(p.Key)
}

// Repository is a Bitbucket Server repository.
type Repository struct {
	Slug        string  `json:"slug"`
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	ScmID       string  `json:"scmId,omitempty"`
	State       string  `json:"state,omitempty"`
	Forkable    bool    `json:"forkable"`
	Public      bool    `json:"public"`
	Project     Project `json:"project"`
	Links       Links   `json:"links"`
}

// FullName returns "PROJECT/slug".
func (r *Repository) FullName() string {
	return r.Project.Key + "/" + r.Slug
}

// CloneURL returns the first HTTP clone link, or "".
func (r *Repository) CloneURL() string {
	for _, l := range r.Links.Clone {
		if l.Name == "http" || l.Name == "https" {
			return l.Href
		}
	}
	return ""
}

// Ref is a pull request source or target ref.
type Ref struct {
	ID           string      `json:"id"`
	DisplayID    string      `json:"displayId"`
	LatestCommit string      `json:"latestCommit"`
	Type         string      `json:"type,omitempty"`
	Repository   *Repository `json:"repository,omitempty"`
}

// Participant is a user's role on a pull request.
type Participant struct {
	User     User   `json:"user"`
	Role     string `json:"role,omitempty"`
	Approved bool   `json:"approved"`
	Status   string `json:"status,omitempty"`
}

// Pull request states.
const (
	StateOpen     = "OPEN"
	StateMerged   = "MERGED"
	StateDeclined = "DECLINED"
)

// PullRequest is a Bitbucket Server pull request.
type PullRequest struct {
	ID          int64         `json:"id"`
	Version     int           `json:"version"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	State       string        `json:"state"`
	Open        bool          `json:"open"`
	Closed      bool          `json:"closed"`
	CreatedDate int64         `json:"createdDate"`
	UpdatedDate int64         `json:"updatedDate"`
	FromRef     Ref           `json:"fromRef"`
	ToRef       Ref           `json:"toRef"`
	Author      Participant   `json:"author"`
	Reviewers   []Participant `json:"reviewers,omitempty"`
	Links       Links         `json:"links"`
}

// Comment is a pull request or commit comment. Replies nest under Comments.
type Comment struct {
	ID          int64     `json:"id"`
	Version     int       `json:"version"`
	Text        string    `json:"text"`
	Author      User      `json:"author"`
	CreatedDate int64     `json:"createdDate"`
	UpdatedDate int64     `json:"updatedDate"`
	Comments    []Comment `json:"comments,omitempty"`
}

// Diff types of a comment anchor.
const (
	DiffTypeEffective = "EFFECTIVE"
	DiffTypeCommit    = "COMMIT"
	DiffTypeRange     = "RANGE"
)

// CommentAnchor places a comment on a file or a line of a diff.
type CommentAnchor struct {
	FromHash string `json:"fromHash"`
	ToHash   string `json:"toHash"`
	Line     int    `json:"line,omitempty"`
	LineType string `json:"lineType,omitempty"`
	FileType string `json:"fileType,omitempty"`
	Path     string `json:"path"`
	SrcPath  string `json:"srcPath,omitempty"`
	DiffType string `json:"diffType,omitempty"`
	Orphaned bool   `json:"orphaned"`
}

// Activity actions.
const (
	ActionCommented  = "COMMENTED"
	ActionApproved   = "APPROVED"
	ActionUnapproved = "UNAPPROVED"
	ActionDeclined   = "DECLINED"
	ActionMerged     = "MERGED"
	ActionReopened   = "REOPENED"
	ActionOpened     = "OPENED"
	ActionRescoped   = "RESCOPED"
	ActionUpdated    = "UPDATED"
)

// Activity is one entry of a pull request's activity stream.
type Activity struct {
	ID            int64          `json:"id"`
	CreatedDate   int64          `json:"createdDate"`
	User          User           `json:"user"`
	Action        string         `json:"action"`
	CommentAction string         `json:"commentAction,omitempty"`
	Comment       *Comment       `json:"comment,omitempty"`
	CommentAnchor *CommentAnchor `json:"commentAnchor,omitempty"`
	Diff          *diff.Item     `json:"diff,omitempty"`
}

// Commented reports whether the activity is a comment of any kind.
func (a *Activity) Commented() bool {
	return a.Action == ActionCommented
}

// IsComment reports whether the activity is a general pull request comment.
func (a *Activity) IsComment() bool {
	return a.Commented() && a.CommentAnchor == nil && a.Diff == nil
}

// IsFileComment reports whether the activity is a comment on a whole file.
func (a *Activity) IsFileComment() bool {
	return a.Commented() && a.CommentAnchor != nil && a.Diff == nil
}

// IsDiffComment reports whether the activity is an inline diff comment.
func (a *Activity) IsDiffComment() bool {
	return a.Commented() && a.CommentAnchor != nil && a.Diff != nil
}

// IsIssueEvent reports whether the activity changes the pull request state.
func (a *Activity) IsIssueEvent() bool {
	switch a.Action {
	case ActionDeclined, ActionMerged, ActionReopened:
		return true
	}
	return false
}

// IsReviewed reports whether the activity is an approval or its removal.
func (a *Activity) IsReviewed() bool {
	return a.Action == ActionApproved || a.Action == ActionUnapproved
}

// MinimalCommit identifies a commit without its metadata.
type MinimalCommit struct {
	ID        string `json:"id"`
	DisplayID string `json:"displayId"`
}

// Person is a git author or committer. It matches a Bitbucket user only
// when the email is known to the server.
type Person struct {
	Name         string `json:"name"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Slug         string `json:"slug,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	Links        Links  `json:"links"`
}

// Commit is a git commit as reported by Bitbucket Server.
type Commit struct {
	ID                 string          `json:"id"`
	DisplayID          string          `json:"displayId"`
	Author             Person          `json:"author"`
	AuthorTimestamp    int64           `json:"authorTimestamp"`
	Committer          Person          `json:"committer"`
	CommitterTimestamp int64           `json:"committerTimestamp"`
	Message            string          `json:"message"`
	Parents            []MinimalCommit `json:"parents"`
	Properties         map[string]any  `json:"properties,omitempty"`
}

// HasComments reports whether Bitbucket counted comments on the commit.
func (c *Commit) HasComments() bool {
	_, ok := c.Properties["commentCount"]
	return ok
}

// FirstParent returns the first parent id, or "" for a root commit.
func (c *Commit) FirstParent() string {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0].ID
}

// LastParent returns the last parent id, or "" for a root commit.
func (c *Commit) LastParent() string {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[len(c.Parents)-1].ID
}

// Branch is a repository branch.
type Branch struct {
	ID           string `json:"id"`
	DisplayID    string `json:"displayId"`
	Type         string `json:"type,omitempty"`
	LatestCommit string `json:"latestCommit"`
	IsDefault    bool   `json:"isDefault"`
}

// Tag is a repository tag.
type Tag struct {
	ID              string `json:"id"`
	DisplayID       string `json:"displayId"`
	Type            string `json:"type,omitempty"`
	LatestCommit    string `json:"latestCommit"`
	LatestChangeset string `json:"latestChangeset,omitempty"`
	Hash            string `json:"hash,omitempty"`
}

// BranchType is a branching model category such as feature or bugfix.
type BranchType struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Prefix      string `json:"prefix"`
	Enabled     bool   `json:"enabled"`
}

// BranchModel is a repository's branching model.
type BranchModel struct {
	Development *Branch      `json:"development,omitempty"`
	Production  *Branch      `json:"production,omitempty"`
	Types       []BranchType `json:"types,omitempty"`
}

// Named returns the development or production branch by matcher id.
func (m *BranchModel) Named(id string) *Branch {
	if m == nil {
		return nil
	}
	switch strings.ToLower(id) {
	case "development":
		return m.Development
	case "production":
		return m.Production
	}
	return nil
}

// Prefix returns the branch name prefix of the category with the given id.
func (m *BranchModel) Prefix(id string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, t := range m.Types {
		if t.ID == id {
			return t.Prefix, true
		}
	}
	return "", false
}

// MatcherKind is the kind of a branch permission matcher.
type MatcherKind string

// Branch permission matcher kinds.
const (
	MatcherBranch        MatcherKind = "BRANCH"
	MatcherPattern       MatcherKind = "PATTERN"
	MatcherModelCategory MatcherKind = "MODEL_CATEGORY"
	MatcherModelBranch   MatcherKind = "MODEL_BRANCH"
)

// IsValid checks if the matcher kind is one Bitbucket Server defines.
func (k MatcherKind) IsValid() bool {
	switch k {
	case MatcherBranch, MatcherPattern, MatcherModelCategory, MatcherModelBranch:
		return true
	}
	return false
}

// MatcherType names a matcher kind.
type MatcherType struct {
	ID   MatcherKind `json:"id"`
	Name string      `json:"name,omitempty"`
}

// Matcher selects the refs a branch permission applies to.
type Matcher struct {
	ID        string      `json:"id"`
	DisplayID string      `json:"displayId"`
	Type      MatcherType `json:"type"`
	Active    bool        `json:"active"`
}

// PermissionType is the restriction a branch permission applies.
type PermissionType string

// Branch permission types.
const (
	PermissionReadOnly        PermissionType = "read-only"
	PermissionPullRequestOnly PermissionType = "pull-request-only"
	PermissionNoDeletes       PermissionType = "no-deletes"
	PermissionFastForwardOnly PermissionType = "fast-forward-only"
)

// BranchPermission is a ref restriction.
type BranchPermission struct {
	ID      int64          `json:"id"`
	Type    PermissionType `json:"type"`
	Matcher Matcher        `json:"matcher"`
	Users   []User         `json:"users"`
	Groups  []string       `json:"groups"`
}

// Repository and project permission levels.
const (
	ProjectRead  = "PROJECT_READ"
	ProjectWrite = "PROJECT_WRITE"
	ProjectAdmin = "PROJECT_ADMIN"
	RepoRead     = "REPO_READ"
	RepoWrite    = "REPO_WRITE"
	RepoAdmin    = "REPO_ADMIN"
)

// UserPermission grants a user access to a project or repository.
type UserPermission struct {
	User       User   `json:"user"`
	Permission string `json:"permission"`
}

// Group is a Bitbucket Server user group.
type Group struct {
	Name      string `json:"name"`
	Deletable bool   `json:"deletable,omitempty"`
}

// GroupPermission grants a group access to a project or repository.
type GroupPermission struct {
	Group      Group  `json:"group"`
	Permission string `json:"permission"`
}

// SSHKey is the public key half of an access key.
type SSHKey struct {
	ID    int64  `json:"id"`
	Text  string `json:"text"`
	Label string `json:"label"`
}

// AccessKey is a repository SSH access key.
type AccessKey struct {
	Key        SSHKey `json:"key"`
	Permission string `json:"permission"`
}

// ReadOnly reports whether the key grants read access only.
func (k *AccessKey) ReadOnly() bool {
	return k.Permission == RepoRead
}

// Fingerprint returns the colon-separated MD5 fingerprint of the key.
func (k *AccessKey) Fingerprint() (string, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(k.Key.Text))
	if err != nil {
		return "", fmt.Errorf("parse access key %d: %w", k.Key.ID, err)
	}
	return ssh.FingerprintLegacyMD5(pub), nil
}

// Plugin is an installed add-on.
type Plugin struct {
	Key           string `json:"key"`
	Name          string `json:"name"`
	Version       string `json:"version,omitempty"`
	Enabled       bool   `json:"enabled"`
	UserInstalled bool   `json:"userInstalled"`
}

// ApplicationProperties describes the server.
type ApplicationProperties struct {
	Version     string `json:"version"`
	BuildNumber string `json:"buildNumber,omitempty"`
	BuildDate   string `json:"buildDate,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// FromMillis converts a Bitbucket epoch-millisecond timestamp to UTC,
// truncated to the second.
func FromMillis(ms int64) time.Time {
	return time.Unix(ms/1000, 0).UTC()
}
