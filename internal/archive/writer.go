package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/steveyegge/bbs-exporter/internal/store"
)

// PageSize is the number of records per JSON file.
const PageSize = 100

// Pager reads extracted records back in pages.
type Pager interface {
	Page(ctx context.Context, modelType string, page, size int) ([]store.Record, error)
}

// Writer writes the records of one model type to numbered JSON files.
type Writer struct {
	dir      string
	records  Pager
	pageSize int
}

// NewWriter returns a Writer that writes into dir.
func NewWriter(dir string, records Pager) *Writer {
	return &Writer{dir: dir, records: records, pageSize: PageSize}
}

// Filename returns the path of the given page file, e.g.
// "<dir>/pull_requests_000001.json".
func (w *Writer) Filename(modelType string, page int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%06d.json", Plural(modelType), page))
}

// Write pages through the records of modelType and writes each page as a
// pretty-printed JSON array. It stops at the first empty or short page and
// returns the number of records written.
func (w *Writer) Write(ctx context.Context, modelType string) (int, error) {
	total := 0

	for page := 1; ; page++ {
		records, err := w.records.Page(ctx, modelType, page, w.pageSize)
		if err != nil {
			return total, err
		}
		if len(records) == 0 {
			break
		}

		contents := make([]json.RawMessage, 0, len(records))
		for _, r := range records {
			contents = append(contents, json.RawMessage(r.Data))
		}
		if err := writeJSONFile(w.Filename(modelType, page), contents); err != nil {
			return total, err
		}
		total += len(records)

		if len(records) < w.pageSize {
			break
		}
	}

	return total, nil
}
