package serialize

import (
	"net/url"
	"strings"

	"github.com/steveyegge/bbs-exporter/internal/types"
)

// URLService derives the canonical URL of every exported model. The URLs
// double as record identifiers in the staging store and as cross-references
// between records, so they must be stable for a given source object.
type URLService struct {
	// baseURL is used for users that arrive without links.
	baseURL string
}

// NewURLService returns a URLService for the server at baseURL.
func NewURLService(baseURL string) *URLService {
	return &URLService{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// rewrite parses raw, applies fn and formats the result. Unparseable URLs
// are returned unchanged.
func rewrite(raw string, fn func(u *url.URL)) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	fn(u)
	return u.String()
}

func joinPath(base string, elem ...string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.Join(elem, "/")
}

// RepositoryURL returns the repository's self link without "/browse".
func (s *URLService) RepositoryURL(repo *types.Repository) string {
	return strings.TrimSuffix(repo.Links.SelfURL(), "/browse")
}

// RepositoryBrowseURL returns the repository's self link as served.
func (s *URLService) RepositoryBrowseURL(repo *types.Repository) string {
	return repo.Links.SelfURL()
}

// OrganizationURL returns the project's self link.
func (s *URLService) OrganizationURL(project *types.Project) string {
	return project.Links.SelfURL()
}

// UserURL returns the user's self link, or /users/<slug> on the server when
// the payload carries no links.
func (s *URLService) UserURL(u *types.User) string {
	if href := u.Links.SelfURL(); href != "" {
		return href
	}
	return rewrite(s.baseURL, func(uu *url.URL) {
		uu.Path = "/users/" + u.Slug
		uu.RawQuery = ""
		uu.Fragment = ""
	})
}

// MemberURL returns the URL of the user behind a permission grant.
func (s *URLService) MemberURL(p *types.UserPermission) string {
	return p.User.Links.SelfURL()
}

// PullRequestURL returns the pull request's self link.
func (s *URLService) PullRequestURL(pr *types.PullRequest) string {
	return pr.Links.SelfURL()
}

// IssueCommentURL returns the URL of a general pull request comment.
func (s *URLService) IssueCommentURL(pr *types.PullRequest, commentID int64) string {
	return rewrite(s.PullRequestURL(pr), func(u *url.URL) {
		u.Path = joinPath(u.Path, "overview")
		u.RawQuery = url.Values{"commentId": {itoa(commentID)}}.Encode()
	})
}

// ReviewCommentURL returns the URL of an inline review comment.
func (s *URLService) ReviewCommentURL(pr *types.PullRequest, commentID int64) string {
	return rewrite(s.PullRequestURL(pr), func(u *url.URL) {
		u.Path = joinPath(u.Path, "overview")
		u.RawQuery = url.Values{"commentId": {itoa(commentID)}}.Encode()
		u.Fragment = "r" + itoa(commentID)
	})
}

// ReviewURL returns the URL of a review. Comment reviews are grouped per
// comment author and commit; approvals are identified by their activity.
func (s *URLService) ReviewURL(pr *types.PullRequest, activity *types.Activity, commitID string) string {
	return rewrite(s.PullRequestURL(pr), func(u *url.URL) {
		if activity.Commented() && activity.Comment != nil {
			u.Fragment = activity.Comment.Author.Slug + "-" + commitID
			return
		}
		u.Fragment = itoa(activity.ID)
	})
}

// IssueEventURL returns the URL of a pull request state change. eventID is
// the activity id, or a value derived from it for synthesized events.
func (s *URLService) IssueEventURL(pr *types.PullRequest, eventID int64) string {
	return rewrite(s.PullRequestURL(pr), func(u *url.URL) {
		u.Fragment = "event-" + itoa(eventID)
	})
}

// TeamURL returns the admin page of a group, with the owning project key as
// fragment so that one group exported for several projects stays distinct.
func (s *URLService) TeamURL(project *types.Project, name string) string {
	return rewrite(s.OrganizationURL(project), func(u *url.URL) {
		u.Path = "/admin/groups/view"
		u.RawQuery = url.Values{"name": {name}}.Encode()
		u.Fragment = project.Key
	})
}

// ProtectedBranchURL links to the repository's branch permission page with
// the branch as fragment. Bitbucket has no page per permission.
func (s *URLService) ProtectedBranchURL(repo *types.Repository, branch string) string {
	return rewrite(s.RepositoryURL(repo), func(u *url.URL) {
		u.Path = "/plugins/servlet/branch-permissions/" + repo.Project.Key + "/" + repo.Slug
		u.RawQuery = ""
		u.Fragment = branch
	})
}

// CommitCommentURL returns the URL of a comment on a commit.
func (s *URLService) CommitCommentURL(repo *types.Repository, commitID string, commentID int64) string {
	return rewrite(s.RepositoryURL(repo), func(u *url.URL) {
		u.Path = joinPath(u.Path, "commits", commitID)
		u.RawQuery = url.Values{"commentId": {itoa(commentID)}}.Encode()
		u.Fragment = "commitcomment-" + itoa(commentID)
	})
}

// ReleaseURL returns the browse URL of the repository at the tag.
func (s *URLService) ReleaseURL(repo *types.Repository, tag *types.Tag) string {
	return rewrite(s.RepositoryBrowseURL(repo), func(u *url.URL) {
		u.RawQuery = url.Values{"at": {"refs/tags/" + tag.DisplayID}}.Encode()
	})
}

// AttachmentURL returns the URL of an attachment stored under the decoded
// path segments in the repository.
func (s *URLService) AttachmentURL(repo *types.Repository, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = EscapeSegment(seg)
	}
	return rewrite(s.RepositoryURL(repo), func(u *url.URL) {
		raw := u.EscapedPath()
		u.Path = joinPath(u.Path, append([]string{"attachments"}, segments...)...)
		u.RawPath = joinPath(raw, append([]string{"attachments"}, escaped...)...)
	})
}

// EscapeSegment percent-encodes every byte of s except ASCII letters,
// digits and "-._~".
func EscapeSegment(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&15])
		}
	}
	return b.String()
}
