// Package export drives a Bitbucket Server export: it walks the selected
// repositories, turns their projects, pull requests, comments, tags and
// permissions into archive records, and packs the staged records into a
// migration archive.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/mod/semver"

	"github.com/steveyegge/bbs-exporter/internal/archive"
	"github.com/steveyegge/bbs-exporter/internal/bitbucket"
	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/git"
	"github.com/steveyegge/bbs-exporter/internal/serialize"
	"github.com/steveyegge/bbs-exporter/internal/telemetry"
	"github.com/steveyegge/bbs-exporter/internal/types"
)

// Optional models.
const (
	ModelPullRequests   = "pull_requests"
	ModelCommitComments = "commit_comments"
	ModelTeams          = "teams"
)

// Options select what one export run covers.
type Options struct {
	// Repositories and Projects are merged; a project contributes every
	// repository it holds.
	Repositories []RepoPath
	Projects     []string

	// Models lists the optional models to export.
	Models []string

	MaxThreads int

	// StagingDir holds records and git mirrors until the archive is
	// packed. Empty means a fresh temporary directory.
	StagingDir string

	IgnoreVersionCheck bool

	// Version is the exporter's own version, reported at start.
	Version string

	// Cloner mirrors each repository into the archive. Nil skips the git
	// data.
	Cloner *git.Cloner
}

// Exporter runs one export.
type Exporter struct {
	client     *bitbucket.Client
	opts       Options
	builder    *archive.Builder
	urls       *serialize.URLService
	serializer *serialize.Serializer
	teams      *TeamBuilder

	userOnce    sync.Once
	currentUser *types.User
	userErr     error
}

// New prepares an export against client. Close releases the staging
// directory.
func New(client *bitbucket.Client, opts Options) (*Exporter, error) {
	if opts.MaxThreads < 1 {
		opts.MaxThreads = 1
	}
	if opts.StagingDir == "" {
		dir, err := os.MkdirTemp("", "bbs-exporter-")
		if err != nil {
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
		opts.StagingDir = dir
	}

	builder, err := archive.NewBuilder(opts.StagingDir)
	if err != nil {
		return nil, err
	}

	urls := serialize.NewURLService(client.BaseURL())
	e := &Exporter{
		client:     client,
		opts:       opts,
		builder:    builder,
		urls:       urls,
		serializer: serialize.New(urls),
	}
	e.teams = NewTeamBuilder(e)
	return e, nil
}

// Close removes the staging directory. It is safe to call after a
// successful Export.
func (e *Exporter) Close() error {
	return e.builder.Cleanup()
}

func (e *Exporter) hasModel(model string) bool {
	return slices.Contains(e.opts.Models, model)
}

// Export exports every selected repository and writes the archive to
// output.
func (e *Exporter) Export(ctx context.Context, output string) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "export.run",
		attribute.StringSlice("bbs.models", e.opts.Models),
		attribute.Int("bbs.max_threads", e.opts.MaxThreads),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	debug.Status("Bitbucket Server Exporter version is %s.", e.opts.Version)

	props, err := e.client.ApplicationProperties(ctx)
	if err != nil {
		return err
	}
	debug.Status("Bitbucket Server version is %s.", props.Version)
	if err := e.checkVersion(props.Version); err != nil {
		return err
	}
	e.logPlugins(ctx)

	paths, err := e.repoPaths(ctx)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := e.exportRepository(ctx, path); err != nil {
			return err
		}
	}

	if e.hasModel(ModelTeams) {
		if err := e.teams.Write(ctx); err != nil {
			return err
		}
	}

	if _, err := e.builder.WriteFiles(ctx); err != nil {
		return err
	}
	used, err := e.builder.Used(ctx)
	if err != nil {
		return err
	}
	if !used {
		return ErrNothingExported
	}
	return e.builder.CreateTar(output, serialize.URLTemplates())
}

// checkVersion rejects servers older than MinimumVersion unless the check
// is disabled. Versions that are not valid semver count as too old.
func (e *Exporter) checkVersion(version string) error {
	if semver.Compare("v"+strings.TrimPrefix(version, "v"), "v"+MinimumVersion) >= 0 {
		return nil
	}
	if e.opts.IgnoreVersionCheck {
		debug.Warnf("Ignoring unsupported server version %s (minimum supported version is %s)!", version, MinimumVersion)
		return nil
	}
	return &BadVersionError{Version: version}
}

// logPlugins reports the enabled user-installed add-ons, which may change
// what the server returns. Failing to list them does not stop the export.
func (e *Exporter) logPlugins(ctx context.Context) {
	plugins, err := e.client.Plugins(ctx)
	if err != nil {
		debug.LogError(err, "context", "listing add-ons")
		return
	}
	var names []string
	for _, p := range plugins {
		if p.UserInstalled && p.Enabled {
			names = append(names, p.Name)
		}
	}
	if len(names) > 0 {
		debug.Status("Enabled user-installed add-ons: %s", strings.Join(names, ", "))
	}
}

// repoPaths merges the explicit repositories with those of the selected
// projects.
func (e *Exporter) repoPaths(ctx context.Context) ([]RepoPath, error) {
	var fromProjects []RepoPath
	for _, key := range e.opts.Projects {
		repos, err := e.client.Project(key).Repositories(ctx)
		if err != nil {
			return nil, fmt.Errorf("list repositories of project %s: %w", key, err)
		}
		for _, r := range repos {
			fromProjects = append(fromProjects, RepoPath{Project: key, Slug: r.Slug})
		}
	}
	return UniqueRepoPaths(e.opts.Repositories, fromProjects), nil
}

// user returns the authenticated user. Releases are attributed to it.
func (e *Exporter) user(ctx context.Context) (*types.User, error) {
	e.userOnce.Do(func() {
		e.currentUser, e.userErr = e.client.CurrentUser(ctx)
	})
	return e.currentUser, e.userErr
}

// exportRepository exports one repository. A repository the server does
// not know is reported and skipped.
func (e *Exporter) exportRepository(ctx context.Context, path RepoPath) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "export.repository", attribute.String("bbs.repository", path.String()))
	defer func() { telemetry.EndSpan(span, err) }()

	api := e.client.Project(path.Project).Repository(path.Slug)
	repo, err := api.Get(ctx)
	if err != nil {
		if bitbucket.IsNotFound(err) {
			debug.Errorf("Unable to export repository %s", path)
			debug.LogError(err, "repository", path.String())
			return nil
		}
		return err
	}

	r := &repositoryExporter{
		Exporter: e,
		api:      api,
		repo:     repo,
	}
	if err := r.export(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("export %s: %w", path, err)
	}
	return nil
}
