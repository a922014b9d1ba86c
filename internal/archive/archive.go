// Package archive assembles the migration archive from the staging ledger.
//
// The staging directory holds the ledger database, the mirrored git
// repositories and downloaded attachments. When the export finishes the
// ledger is paged out into JSON manifests, the database is removed and the
// directory is packed into a gzip-compressed tarball.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/steveyegge/bbs-exporter/internal/debug"
	"github.com/steveyegge/bbs-exporter/internal/store"
	"github.com/steveyegge/bbs-exporter/internal/ui"
)

// SchemaVersion is the archive format version written to schema.json.
const SchemaVersion = "1.2.0"

// ModelTypes lists the record types in the order their manifests are
// written.
var ModelTypes = []string{
	"user",
	"team",
	"organization",
	"repository",
	"issue_comment",
	"issue_event",
	"pull_request",
	"pull_request_review",
	"pull_request_review_comment",
	"commit_comment",
	"release",
	"protected_branch",
	"attachment",
}

var plurals = map[string]string{
	"repository":       "repositories",
	"protected_branch": "protected_branches",
}

// Plural returns the manifest file prefix for a model type.
func Plural(modelType string) string {
	if p, ok := plurals[modelType]; ok {
		return p
	}
	return modelType + "s"
}

// Title returns the plural of a model type in title case, e.g.
// "Pull Request Review Comments".
func Title(modelType string) string {
	words := strings.Split(Plural(modelType), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Builder owns the staging directory of one export.
type Builder struct {
	stagingDir string
	store      *store.Store
}

// NewBuilder creates stagingDir and a fresh ledger inside it.
func NewBuilder(stagingDir string) (*Builder, error) {
	abs, err := filepath.Abs(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	s, err := store.New(filepath.Join(abs, store.FileName))
	if err != nil {
		return nil, err
	}
	return &Builder{stagingDir: abs, store: s}, nil
}

// StagingDir returns the absolute staging directory.
func (b *Builder) StagingDir() string { return b.stagingDir }

// Store returns the staging ledger.
func (b *Builder) Store() *store.Store { return b.store }

// Used reports whether any record was extracted.
func (b *Builder) Used(ctx context.Context) (bool, error) {
	return b.store.Used(ctx)
}

// RepoPath is where the git mirror of a repository is cloned.
func (b *Builder) RepoPath(projectKey, slug string) string {
	return filepath.Join(b.stagingDir, "repositories", projectKey, slug+".git")
}

// SaveAttachment copies r to attachments/<path...> in the staging
// directory and returns the file path.
func (b *Builder) SaveAttachment(r io.Reader, path ...string) (string, error) {
	target := filepath.Join(append([]string{b.stagingDir, "attachments"}, path...)...)
	if !strings.HasPrefix(target, filepath.Join(b.stagingDir, "attachments")+string(filepath.Separator)) {
		return "", fmt.Errorf("attachment path %q escapes the staging directory", filepath.Join(path...))
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create attachment dir: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return target, f.Close()
}

// WriteJSON writes contents as pretty JSON to name inside the staging
// directory.
func (b *Builder) WriteJSON(name string, contents any) error {
	return writeJSONFile(filepath.Join(b.stagingDir, name), contents)
}

// WriteFiles pages every model type out of the ledger into JSON manifests
// and returns the per-type counts.
func (b *Builder) WriteFiles(ctx context.Context) (map[string]int, error) {
	debug.PrintNormal("Creating archive manifests...\n")

	w := NewWriter(b.stagingDir, b.store)
	counts := make(map[string]int, len(ModelTypes))
	rows := make([]ui.SummaryRow, 0, len(ModelTypes))
	for _, modelType := range ModelTypes {
		n, err := w.Write(ctx, modelType)
		if err != nil {
			return counts, fmt.Errorf("write %s manifests: %w", modelType, err)
		}
		counts[modelType] = n
		rows = append(rows, ui.SummaryRow{Label: Title(modelType), Count: n})
		if n > 0 {
			debug.Log(debug.SeverityInfo, "", fmt.Sprintf("%s exported: %d", Title(modelType), n))
		}
	}
	if summary := ui.RenderSummary("exported", rows); summary != "" {
		debug.PrintlnNormal(summary)
	}
	return counts, nil
}

// CreateTar writes urls.json and schema.json, removes the ledger, packs the
// staging directory into dest and removes the staging directory.
func (b *Builder) CreateTar(dest string, urlTemplates any) error {
	if err := b.WriteJSON("urls.json", urlTemplates); err != nil {
		return err
	}
	if err := b.WriteJSON("schema.json", map[string]string{"version": SchemaVersion}); err != nil {
		return err
	}
	if err := b.store.Remove(); err != nil {
		return err
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolve archive path: %w", err)
	}
	if err := Pack(absDest, b.stagingDir); err != nil {
		return err
	}
	return b.Cleanup()
}

// Cleanup closes the ledger and removes the staging directory.
func (b *Builder) Cleanup() error {
	if err := b.store.Close(); err != nil {
		return err
	}
	return os.RemoveAll(b.stagingDir)
}
