package diff

import (
	"fmt"
	"strings"
	"sync"
)

// HunkGenerator renders the unified diff hunk that GitHub shows above a
// review comment: every line of the activity diff up to and including the
// line carrying the comment.
type HunkGenerator struct {
	hunks     []Hunk
	commentID int64

	once sync.Once
	out  string
}

// NewHunkGenerator returns a generator for the comment with commentID in the
// activity diff item. item may be nil.
func NewHunkGenerator(item *Item, commentID int64) *HunkGenerator {
	g := &HunkGenerator{commentID: commentID}
	if item != nil {
		g.hunks = item.Hunks
	}
	return g
}

// Generate returns the hunk text. The result is cached.
//
// Output format:
//
//	@@ -6,10 +6,13 @@
//	 context line
//	+added line
func (g *HunkGenerator) Generate() string {
	g.once.Do(func() { g.out = g.render() })
	return g.out
}

func (g *HunkGenerator) render() string {
	var b strings.Builder

	for _, h := range g.hunks {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@",
			h.SourceLine, h.SourceSpan, h.DestinationLine, h.DestinationSpan)

		for _, seg := range h.Segments {
			indicator := seg.Type.Indicator()
			for i := range seg.Lines {
				b.WriteString("\n")
				b.WriteString(indicator)
				b.WriteString(seg.Lines[i].Line)
				if seg.Lines[i].HasComment(g.commentID) {
					return b.String()
				}
			}
		}
	}

	return b.String()
}
