package export

import (
	"context"
	"sync"

	"github.com/steveyegge/bbs-exporter/internal/bitbucket"
	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/diff"
	"github.com/steveyegge/bbs-exporter/internal/serialize"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// reviewThread is an inline comment thread. The root comment and its
// replies share the diff, position and hunk of the thread's activity.
type reviewThread struct {
	activity *types.Activity

	once       sync.Once
	err        error
	commitID   string
	diff       *diff.Diff
	positioner *diff.Positioner
	hunk       *string
}

func newReviewThread(a *types.Activity) *reviewThread {
	return &reviewThread{activity: a}
}

// load fetches the complete diff of the commented file. The activity
// payload may carry a truncated diff, and positions are counted from the
// top of the file's diff.
func (t *reviewThread) load(ctx context.Context, p *pullRequestExporter) error {
	t.once.Do(func() {
		t.commitID, t.err = p.commitIDFromActivity(ctx, t.activity)
		if t.err != nil {
			return
		}

		anchor := t.activity.CommentAnchor
		d, err := p.api.Diff(ctx, anchor.Path, bitbucket.DiffQuery{
			SrcPath:  anchor.SrcPath,
			DiffType: types.DiffTypeCommit,
			SinceID:  anchor.FromHash,
			UntilID:  anchor.ToHash,
		})
		switch {
		case bitbucket.IsNotFound(err):
			debug.LogError(err, "src_path", anchor.SrcPath, "since_id", anchor.FromHash, "until_id", anchor.ToHash)
		case err != nil:
			t.err = err
			return
		default:
			t.diff = d
		}

		t.positioner = diff.NewAnchorPositioner(t.diff, t.activity.Diff)
		if t.diff != nil {
			if h := diff.NewHunkGenerator(t.activity.Diff, t.activity.Comment.ID).Generate(); h != "" {
				t.hunk = &h
			}
		}
	})
	return t.err
}

// unsupported returns why comments on the thread's file cannot be
// imported, or "".
func (t *reviewThread) unsupported() string {
	if t.diff == nil {
		return ""
	}
	if len(t.diff.Diffs) > 0 && t.diff.Diffs[0].Binary {
		return "was skipped because comments on binary files are not supported"
	}
	if t.diff.HasConflictMarker() {
		return "was skipped because comments on merge conflicts are not supported"
	}
	return ""
}

// body prefixes text with where the comment came from when it cannot be
// shown in place. Replies to the root comment stay in the thread; deeper
// replies are flattened and link to their parent.
func (t *reviewThread) body(p *pullRequestExporter, parent *types.Comment, text string) string {
	if moved, ok := t.positioner.Moved(); ok && moved {
		return serialize.BodyWithOriginalLine(t.activity.CommentAnchor.Line, text)
	}
	if parent != nil && parent.ID != t.activity.Comment.ID {
		return serialize.BodyWithThread(p.urls.ReviewCommentURL(p.pr, parent.ID), text)
	}
	return text
}

// exportReviewComment exports comment, which belongs to thread t, and its
// replies.
func (p *pullRequestExporter) exportReviewComment(ctx context.Context, t *reviewThread, comment, parent *types.Comment) error {
	if err := t.load(ctx, p); err != nil {
		return err
	}

	commentURL := p.urls.ReviewCommentURL(p.pr, comment.ID)
	if msg := t.unsupported(); msg != "" {
		debug.Warn("pull_request_review_comment", commentURL, msg)
		return nil
	}

	text, err := p.exportAttachments(ctx, attachmentParent{
		Type:        "pull_request_review_comment",
		URL:         commentURL,
		User:        &comment.Author,
		CreatedDate: comment.CreatedDate,
	}, comment.Text, p.order)
	if err != nil {
		return err
	}

	var position *int
	if pos, ok := t.positioner.Position(); ok {
		position = &pos
	}

	err = p.record(ctx, "pull_request_review_comment", commentURL, p.order, func() (any, error) {
		return p.serializer.ReviewComment(serialize.ReviewCommentInput{
			PullRequest: p.pr,
			Activity:    t.activity,
			Comment:     comment,
			Parent:      parent,
			Body:        t.body(p, parent, text),
			CommitID:    t.commitID,
			Position:    position,
			DiffHunk:    t.hunk,
		})
	})
	if err != nil {
		return skip(err, "Unable to export review comment, see logs for details", commentURL)
	}
	if err := p.exportUser(ctx, &comment.Author, p.order); err != nil {
		return err
	}

	for i := range comment.Comments {
		if err := p.exportReviewComment(ctx, t, &comment.Comments[i], comment); err != nil {
			return err
		}
	}
	return nil
}
