package export

import (
	"context"

	"github.com/steveyegge/bbs-exporter/internal/types"
)

// exportRelease exports tag as a release dated by its commit and
// attributed to the exporting user.
func (r *repositoryExporter) exportRelease(ctx context.Context, tag *types.Tag, index int) error {
	releaseURL := r.urls.ReleaseURL(r.repo, tag)

	user, err := r.user(ctx)
	if err != nil {
		return err
	}
	commit, err := r.api.Commit(ctx, tag.LatestCommit)
	if err != nil {
		return skip(err, "Unable to export tag "+tag.DisplayID, releaseURL)
	}

	err = r.record(ctx, "release", releaseURL, at(index), func() (any, error) {
		return r.serializer.Release(r.repo, tag, user, commit)
	})
	return skip(err, "Unable to export tag "+tag.DisplayID, releaseURL)
}
