package export

import (
	"context"
	"fmt"

	"github.com/steveyegge/bbs-exporter/internal/bitbucket"
	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/diff"
	"github.com/steveyegge/bbs-exporter/internal/serialize"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// commitComment is a comment on a line or on a whole file of a commit.
// Replies are copies with parent set, so they inherit the position of
// their thread.
type commitComment struct {
	commitID string
	comment  *types.Comment
	parent   *types.Comment

	// Line comments are located in diff.
	diff       *diff.Diff
	positioner *diff.Positioner

	// File comments belong to item.
	item *diff.Item
}

func newLineComment(d *diff.Diff, commitID string, comment *types.Comment) *commitComment {
	return &commitComment{
		commitID:   commitID,
		comment:    comment,
		diff:       d,
		positioner: diff.NewCommentPositioner(d, comment.ID),
	}
}

func newFileComment(item *diff.Item, commitID string, comment *types.Comment) *commitComment {
	return &commitComment{commitID: commitID, comment: comment, item: item}
}

func (c *commitComment) isFile() bool {
	return c.item != nil
}

func (c *commitComment) reply(comment *types.Comment) *commitComment {
	child := *c
	child.parent = c.comment
	child.comment = comment
	return &child
}

// position is 1 for file comments, which are attached to the top of the
// file's diff.
func (c *commitComment) position() int {
	if c.isFile() {
		return 1
	}
	pos, _ := c.positioner.Position()
	return pos
}

func (c *commitComment) path() string {
	if c.isFile() {
		return c.item.Path()
	}
	p, _ := c.positioner.Path()
	return p
}

func (c *commitComment) binary() bool {
	return c.isFile() && c.item.Binary
}

func (c *commitComment) body(urls *serialize.URLService, repo *types.Repository) string {
	text := c.comment.Text
	switch {
	case c.parent != nil:
		return serialize.BodyWithThread(urls.CommitCommentURL(repo, c.commitID, c.parent.ID), text)
	case c.isFile():
		return serialize.BodyForFileComment(text)
	}
	if moved, ok := c.positioner.Moved(); ok && moved {
		if line := c.diff.LineWithComment(c.comment.ID); line != nil {
			return serialize.BodyWithOriginalLine(line.Destination, text)
		}
	}
	return text
}

// exportCommitComments exports the comments on every commit reachable
// from a branch.
func (r *repositoryExporter) exportCommitComments(ctx context.Context) error {
	debug.Status("Exporting commit comments...")

	commits, err := r.commitsWithComments(ctx)
	if err != nil {
		return err
	}
	for _, commit := range commits {
		since := commit.FirstParent()
		d, err := r.api.Diff(ctx, commit.ID, "", since)
		if err != nil {
			if err := quietly(err, "commit", commit.ID); err != nil {
				return err
			}
			continue
		}
		commitID := d.ToHash
		if commitID == "" {
			commitID = commit.ID
		}

		// The full commit diff omits comments on large files, so each file
		// is fetched on its own.
		for i := range d.Diffs {
			fileDiff, err := r.api.Diff(ctx, commitID, d.Diffs[i].Path(), since)
			if err != nil {
				if err := quietly(err, "commit", commitID, "path", d.Diffs[i].Path()); err != nil {
					return err
				}
				continue
			}
			if err := r.exportDiffComments(ctx, fileDiff, commitID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *repositoryExporter) commitsWithComments(ctx context.Context) ([]types.Commit, error) {
	branches, err := r.api.Branches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	seenHeads := make(map[string]bool)
	seen := make(map[string]bool)
	var out []types.Commit
	for _, b := range branches {
		if b.LatestCommit == "" || seenHeads[b.LatestCommit] {
			continue
		}
		seenHeads[b.LatestCommit] = true

		commits, err := r.api.Commits(ctx, bitbucket.CommitsQuery{Until: b.LatestCommit})
		if err != nil {
			return nil, fmt.Errorf("list commits of %s: %w", b.DisplayID, err)
		}
		for _, c := range commits {
			if c.HasComments() && !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// exportDiffComments exports the line and file comments embedded in d.
// Their order is offset by the attachments staged so far, which comments
// may add to.
func (r *repositoryExporter) exportDiffComments(ctx context.Context, d *bitbucket.CommitDiff, commitID string) error {
	for i := range d.Diffs {
		if i >= len(d.Comments) {
			break
		}
		item := &d.Diffs[i]
		embedded := d.Comments[i]

		if err := r.exportCommentBatch(ctx, embedded.LineComments, func(c *types.Comment) *commitComment {
			return newLineComment(d.Diff, commitID, c)
		}); err != nil {
			return err
		}
		if err := r.exportCommentBatch(ctx, embedded.FileComments, func(c *types.Comment) *commitComment {
			return newFileComment(item, commitID, c)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *repositoryExporter) exportCommentBatch(ctx context.Context, comments []types.Comment, build func(*types.Comment) *commitComment) error {
	if len(comments) == 0 {
		return nil
	}
	offset, err := r.builder.Store().Count(ctx, "attachment")
	if err != nil {
		return err
	}
	return forEach(ctx, r.opts.MaxThreads, comments, func(ctx context.Context, i int, comment types.Comment) error {
		return r.exportCommitComment(ctx, build(&comment), at(i+offset))
	})
}

func (r *repositoryExporter) exportCommitComment(ctx context.Context, c *commitComment, order *int) error {
	commentURL := r.urls.CommitCommentURL(r.repo, c.commitID, c.comment.ID)
	if c.binary() {
		debug.Warn("commit_comment", commentURL, "was skipped because comments on binary files are not supported")
		return nil
	}

	body, err := r.exportAttachments(ctx, attachmentParent{
		Type:        "commit_comment",
		URL:         commentURL,
		User:        &c.comment.Author,
		CreatedDate: c.comment.CreatedDate,
	}, c.body(r.urls, r.repo), order)
	if err != nil {
		return err
	}

	err = r.record(ctx, "commit_comment", commentURL, order, func() (any, error) {
		return r.serializer.CommitComment(serialize.CommitCommentInput{
			Repository: r.repo,
			Comment:    c.comment,
			CommitID:   c.commitID,
			Path:       c.path(),
			Position:   c.position(),
			Body:       body,
		})
	})
	if err != nil {
		return skip(err, "Unable to export commit comment, see logs for details", commentURL)
	}
	if err := r.exportUser(ctx, &c.comment.Author, nil); err != nil {
		return err
	}

	for i := range c.comment.Comments {
		if err := r.exportCommitComment(ctx, c.reply(&c.comment.Comments[i]), order); err != nil {
			return err
		}
	}
	return nil
}
