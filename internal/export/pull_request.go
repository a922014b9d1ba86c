package export

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"github.com/steveyegge/bbs-exporter/internal/bitbucket"
	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/serialize"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// blankCommitID stands in for the head of a review that predates every
// commit of its pull request.
const blankCommitID = "1111111111111111111111111111111111111111"

// pullRequestExporter exports one pull request with its comments, reviews
// and state changes. Every record it stages shares the pull request's
// order.
type pullRequestExporter struct {
	*repositoryExporter

	api   *bitbucket.PullRequest
	pr    *types.PullRequest
	order *int

	// commits are sorted newest first.
	commits []types.Commit
}

// exportPullRequest exports pr. Failures other than cancellation are
// reported and the pull request is skipped.
func (r *repositoryExporter) exportPullRequest(ctx context.Context, pr *types.PullRequest, index int) error {
	p := &pullRequestExporter{
		repositoryExporter: r,
		api:                r.api.PullRequest(pr.ID),
		pr:                 pr,
		order:              at(index),
	}
	err := p.export(ctx)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	debug.Errorf("Unable to export Pull Request %d from repository %s", pr.ID, r.url())
	debug.LogError(err, "pull_request", r.urls.PullRequestURL(pr))
	return nil
}

func (p *pullRequestExporter) url() string {
	return p.urls.PullRequestURL(p.pr)
}

func (p *pullRequestExporter) export(ctx context.Context) error {
	commits, err := p.api.Commits(ctx)
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		debug.Warn("pull_request", p.url(), "was skipped because the PR has no diff")
		return nil
	}
	p.commits = sortCommits(commits)

	author := &p.pr.Author.User
	if err := p.exportUser(ctx, author, p.order); err != nil {
		return err
	}

	body, err := p.exportAttachments(ctx, attachmentParent{
		Type:        "pull_request",
		URL:         p.url(),
		User:        author,
		CreatedDate: p.pr.CreatedDate,
	}, p.pr.Description, p.order)
	if err != nil {
		return err
	}
	if err := p.record(ctx, "pull_request", p.url(), p.order, func() (any, error) {
		return p.serializer.PullRequest(p.repo, p.pr, body)
	}); err != nil {
		return err
	}

	activities, err := p.api.Activities(ctx, bitbucket.ActivitiesQuery{})
	if err != nil {
		return err
	}

	for i := range activities {
		if a := &activities[i]; a.IsComment() {
			if err := p.exportComment(ctx, a.Comment, ""); err != nil {
				return err
			}
		}
	}
	if err := p.exportReviewGroups(ctx, activities); err != nil {
		return err
	}
	for i := range activities {
		if a := &activities[i]; a.IsDiffComment() && a.Comment != nil {
			if err := p.exportReviewComment(ctx, newReviewThread(a), a.Comment, nil); err != nil {
				return err
			}
		}
	}
	for i := range activities {
		if a := &activities[i]; a.IsFileComment() && a.Comment != nil {
			if err := p.exportFileComment(ctx, a); err != nil {
				return err
			}
		}
	}
	for i := range activities {
		if a := &activities[i]; a.IsReviewed() {
			if err := p.exportReview(ctx, a, p.commitIDForTimestamp(a.CreatedDate)); err != nil {
				return err
			}
		}
	}
	for i := range activities {
		if a := &activities[i]; a.IsIssueEvent() {
			if err := p.exportIssueEvents(ctx, a); err != nil {
				return err
			}
		}
	}
	return nil
}

// sortCommits orders commits newest first. Commits authored in the same
// second are ordered by id.
func sortCommits(commits []types.Commit) []types.Commit {
	sorted := slices.Clone(commits)
	slices.SortStableFunc(sorted, func(a, b types.Commit) int {
		if c := cmp.Compare(b.AuthorTimestamp, a.AuthorTimestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return sorted
}

// commitIDForTimestamp returns the newest commit authored at or before ts.
func (p *pullRequestExporter) commitIDForTimestamp(ts int64) string {
	for _, c := range p.commits {
		if ts >= c.AuthorTimestamp {
			return c.ID
		}
	}
	return blankCommitID
}

// commitIDFromActivity returns the commit a diff comment was made on. For
// comments on the effective diff that is the merge base side of the
// anchored merge commit.
func (p *pullRequestExporter) commitIDFromActivity(ctx context.Context, a *types.Activity) (string, error) {
	anchor := a.CommentAnchor
	if anchor == nil {
		return "", nil
	}
	if anchor.DiffType != types.DiffTypeEffective {
		return anchor.ToHash, nil
	}
	commit, err := p.api.Repository.Commit(ctx, anchor.ToHash)
	if bitbucket.IsNotFound(err) {
		debug.LogError(err, "hash", anchor.ToHash)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return commit.LastParent(), nil
}

// exportComment exports a general comment and its replies. text replaces
// the comment's own text when set.
func (p *pullRequestExporter) exportComment(ctx context.Context, comment *types.Comment, text string) error {
	if err := p.exportUser(ctx, &comment.Author, p.order); err != nil {
		return err
	}
	if text == "" {
		text = comment.Text
	}

	commentURL := p.urls.IssueCommentURL(p.pr, comment.ID)
	body, err := p.exportAttachments(ctx, attachmentParent{
		Type:        "issue_comment",
		URL:         commentURL,
		User:        &comment.Author,
		CreatedDate: comment.CreatedDate,
	}, text, p.order)
	if err != nil {
		return err
	}

	rewritten := *comment
	rewritten.Text = body
	err = p.record(ctx, "issue_comment", commentURL, p.order, func() (any, error) {
		return p.serializer.IssueComment(p.pr, &rewritten)
	})
	if err != nil {
		return skip(err, "Unable to export comment, see logs for details", commentURL)
	}

	for i := range comment.Comments {
		if err := p.exportComment(ctx, &comment.Comments[i], ""); err != nil {
			return err
		}
	}
	return nil
}

// exportFileComment moves a comment on a whole file into the conversation,
// noting the file and commit it was made on.
func (p *pullRequestExporter) exportFileComment(ctx context.Context, a *types.Activity) error {
	commitID, err := p.commitIDFromActivity(ctx, a)
	if err != nil {
		return err
	}
	text := serialize.BodyForReviewFileComment(a.CommentAnchor.Path, commitID, a.Comment.Text)
	return p.exportComment(ctx, a.Comment, text)
}

// exportReviewGroups exports one review per comment author and commit,
// dated by the author's earliest diff comment on that commit.
func (p *pullRequestExporter) exportReviewGroups(ctx context.Context, activities []types.Activity) error {
	type key struct {
		slug     string
		commitID string
	}
	var order []key
	first := make(map[key]*types.Activity)

	for i := range activities {
		a := &activities[i]
		if !a.IsDiffComment() {
			continue
		}
		commitID, err := p.commitIDFromActivity(ctx, a)
		if err != nil {
			return err
		}
		k := key{slug: a.User.Slug, commitID: commitID}
		current, ok := first[k]
		if !ok {
			order = append(order, k)
		}
		if !ok || a.CreatedDate < current.CreatedDate {
			first[k] = a
		}
	}

	for _, k := range order {
		if err := p.exportReview(ctx, first[k], k.commitID); err != nil {
			return err
		}
	}
	return nil
}

func (p *pullRequestExporter) exportReview(ctx context.Context, a *types.Activity, commitID string) error {
	state, _ := serialize.ReviewState(a.Action)
	reviewURL := p.urls.ReviewURL(p.pr, a, commitID)
	err := p.record(ctx, "pull_request_review", reviewURL, p.order, func() (any, error) {
		return p.serializer.Review(p.pr, a, commitID, state)
	})
	if err != nil {
		return skip(err, "Unable to export review, see logs for details", reviewURL)
	}
	return p.exportUser(ctx, &a.User, p.order)
}

// Bitbucket's pull request state changes and the events they become.
var issueEvents = map[string]string{
	types.ActionDeclined: "closed",
	types.ActionMerged:   "merged",
	types.ActionReopened: "reopened",
}

// exportIssueEvents exports a state change. A merge also closes the pull
// request, so it yields a second "closed" event.
func (p *pullRequestExporter) exportIssueEvents(ctx context.Context, a *types.Activity) error {
	event := issueEvents[a.Action]
	id := a.ID * 10
	if err := p.exportIssueEvent(ctx, a, event, id); err != nil {
		return err
	}
	if event == "merged" {
		return p.exportIssueEvent(ctx, a, "closed", id+1)
	}
	return nil
}

func (p *pullRequestExporter) exportIssueEvent(ctx context.Context, a *types.Activity, event string, id int64) error {
	eventURL := p.urls.IssueEventURL(p.pr, id)
	err := p.record(ctx, "issue_event", eventURL, p.order, func() (any, error) {
		return p.serializer.IssueEvent(p.pr, a, event, id)
	})
	return skip(err, "Unable to export issue event, see logs for details", eventURL)
}
