package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/steveyegge/bbs-exporter/internal/bitbucket"
	"github.com/steveyegge/bbs-exporter/internal/config"
	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/export"
	"github.com/steveyegge/bbs-exporter/internal/git"
	"github.com/steveyegge/bbs-exporter/internal/telemetry"
	"github.com/steveyegge/bbs-exporter/internal/timeparsing"
	"github.com/steveyegge/bbs-exporter/internal/ui"
)

var errNoRepositories = errors.New("no repositories selected; use --repositories, --projects or --manifest")

func runExport(ctx context.Context) error {
	settings := config.GetSettings()

	creds, err := credentials()
	if err != nil {
		return err
	}
	since, err := parseSince(settings.Since, time.Now())
	if err != nil {
		return &configError{err: err}
	}
	repos, err := selectRepositories(repositoriesFlag, manifestFlag)
	if err != nil {
		return &configError{err: err}
	}
	if len(repos) == 0 && len(projectsFlag) == 0 {
		return &configError{err: errNoRepositories}
	}

	output, err := filepath.Abs(outputPath(settings.Output))
	if err != nil {
		return &configError{err: fmt.Errorf("resolve output path: %w", err)}
	}
	if err := debug.SetLogFile(filepath.Dir(output)); err != nil {
		return err
	}

	progress := ui.NewProgress(os.Stderr, ui.IsStderrTerminal() && !debug.IsQuiet() && !debug.Enabled())
	debug.SetConsole(progress)
	defer progress.Clear()

	if err := telemetry.Init(ctx, "bbs-exporter", Version); err != nil {
		debug.Logf("telemetry disabled: %v\n", err)
	}
	defer telemetry.Shutdown(context.Background())

	client, err := bitbucket.NewClient(clientOptions(creds, settings, since, progress.Title))
	if err != nil {
		return err
	}

	exporter, err := export.New(client, export.Options{
		Repositories:       repos,
		Projects:           projectsFlag,
		Models:             settings.Models,
		MaxThreads:         settings.MaxThreads,
		StagingDir:         settings.StagingDir,
		IgnoreVersionCheck: settings.IgnoreVersionCheck,
		Version:            Version,
		Cloner:             &git.Cloner{SSLVerify: settings.SSLVerify},
	})
	if err != nil {
		return err
	}
	defer func() { _ = exporter.Close() }()

	if err := exporter.Export(ctx, output); err != nil {
		return err
	}
	progress.Clear()
	debug.PrintlnNormal(ui.RenderPassIcon() + " " + ui.RenderPass("Archive written to "+output))
	if logFile := debug.LogFile(); logFile != "" {
		debug.PrintlnNormal(ui.RenderInfoIcon() + " " + ui.RenderMuted("Log written to "+logFile))
	}
	return nil
}

// credentials returns the configured credentials, prompting for a username
// and password when they are incomplete and someone can answer.
func credentials() (config.Credentials, error) {
	creds := config.GetCredentials()
	if creds.ServerURL == "" {
		return creds, &configError{err: errors.New("the Bitbucket Server URL is required; set --server-url or BITBUCKET_SERVER_URL")}
	}
	if creds.Complete() || !ui.IsStdinTerminal() {
		return creds, nil
	}

	username, password, err := ui.PromptCredentials(creds.ServerURL, creds.Username)
	if err != nil {
		return creds, err
	}
	creds.Username = username
	creds.Password = password
	return creds, nil
}

// parseSince returns the pull request cutoff, or the zero time when s is
// empty.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := timeparsing.ParseSince(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since: %w", err)
	}
	return t, nil
}

// selectRepositories merges the --repositories values with the manifest.
func selectRepositories(values []string, manifest string) ([]export.RepoPath, error) {
	var fromFlags []export.RepoPath
	for _, v := range values {
		p, err := export.ParseRepoPath(v)
		if err != nil {
			return nil, err
		}
		fromFlags = append(fromFlags, p)
	}

	var fromManifest []export.RepoPath
	if manifest != "" {
		var err error
		fromManifest, err = export.ReadManifest(manifest)
		if err != nil {
			return nil, err
		}
	}
	return export.UniqueRepoPaths(fromFlags, fromManifest), nil
}

func outputPath(output string) string {
	if output == "" {
		return DefaultOutput
	}
	return output
}

func clientOptions(creds config.Credentials, s config.Settings, since time.Time, onRequest func(string)) bitbucket.Options {
	return bitbucket.Options{
		BaseURL:            creds.ServerURL,
		Username:           creds.Username,
		Password:           creds.Password,
		Token:              creds.Token,
		ReadTimeout:        s.ReadTimeout,
		OpenTimeout:        s.OpenTimeout,
		Retries:            s.Retries,
		PaginationLimit:    s.PaginationLimit,
		GitPaginationLimit: s.GitPaginationLimit,
		SkipTLSVerify:      !s.SSLVerify,
		DataSince:          since,
		OnRequest: func(method, url string) {
			if onRequest != nil {
				onRequest(method + " " + url)
			}
		},
	}
}
