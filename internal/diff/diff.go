// Package diff models Bitbucket Server diff responses and maps inline
// comment locations onto GitHub-style diff hunk positions.
package diff

// SegmentType is the kind of lines a segment holds.
type SegmentType string

// Segment types reported by Bitbucket Server.
const (
	Added   SegmentType = "ADDED"
	Removed SegmentType = "REMOVED"
	Context SegmentType = "CONTEXT"
)

// Indicator returns the unified diff prefix for lines of this segment type.
func (t SegmentType) Indicator() string {
	switch t {
	case Added:
		return "+"
	case Removed:
		return "-"
	default:
		return " "
	}
}

// Line is a single line of a diff segment.
type Line struct {
	Source         int     `json:"source"`
	Destination    int     `json:"destination"`
	Line           string  `json:"line"`
	Truncated      bool    `json:"truncated"`
	ConflictMarker *string `json:"conflictMarker,omitempty"`
	CommentIDs     []int64 `json:"commentIds,omitempty"`
}

// HasComment reports whether the line carries the given comment id.
func (l *Line) HasComment(id int64) bool {
	for _, c := range l.CommentIDs {
		if c == id {
			return true
		}
	}
	return false
}

// SameAs compares two lines ignoring their comment ids. A line from the
// activity payload and the same line from a freshly fetched diff differ only
// in which comments they list.
func (l *Line) SameAs(other *Line) bool {
	if l == nil || other == nil {
		return l == other
	}
	if l.Source != other.Source || l.Destination != other.Destination ||
		l.Line != other.Line || l.Truncated != other.Truncated {
		return false
	}
	switch {
	case l.ConflictMarker == nil && other.ConflictMarker == nil:
		return true
	case l.ConflictMarker == nil || other.ConflictMarker == nil:
		return false
	default:
		return *l.ConflictMarker == *other.ConflictMarker
	}
}

// Segment is a run of same-type lines within a hunk.
type Segment struct {
	Type      SegmentType `json:"type"`
	Lines     []Line      `json:"lines"`
	Truncated bool        `json:"truncated"`
}

// Hunk is one "@@ ... @@" region of a file diff.
type Hunk struct {
	SourceLine      int       `json:"sourceLine"`
	SourceSpan      int       `json:"sourceSpan"`
	DestinationLine int       `json:"destinationLine"`
	DestinationSpan int       `json:"destinationSpan"`
	Segments        []Segment `json:"segments"`
	Truncated       bool      `json:"truncated"`
}

// Path is Bitbucket's structured file path.
type Path struct {
	Components []string `json:"components,omitempty"`
	Parent     string   `json:"parent,omitempty"`
	Name       string   `json:"name,omitempty"`
	Extension  string   `json:"extension,omitempty"`
	ToString   string   `json:"toString"`
}

// Item is the diff of a single file.
type Item struct {
	Source      *Path  `json:"source,omitempty"`
	Destination *Path  `json:"destination,omitempty"`
	Binary      bool   `json:"binary,omitempty"`
	Hunks       []Hunk `json:"hunks,omitempty"`
	Truncated   bool   `json:"truncated"`
}

// Diff is the response of a diff endpoint: one item per changed file.
type Diff struct {
	FromHash     string `json:"fromHash,omitempty"`
	ToHash       string `json:"toHash,omitempty"`
	ContextLines int    `json:"contextLines,omitempty"`
	Whitespace   string `json:"whitespace,omitempty"`
	Diffs        []Item `json:"diffs"`
	Truncated    bool   `json:"truncated"`
}

// SourcePath returns the pre-change path, or "" when the file was added.
func (it *Item) SourcePath() string {
	if it == nil || it.Source == nil {
		return ""
	}
	return it.Source.ToString
}

// DestinationPath returns the post-change path, or "" when the file was
// deleted.
func (it *Item) DestinationPath() string {
	if it == nil || it.Destination == nil {
		return ""
	}
	return it.Destination.ToString
}

// Path returns the destination path, falling back to the source path.
func (it *Item) Path() string {
	if p := it.DestinationPath(); p != "" {
		return p
	}
	return it.SourcePath()
}

// Walk calls fn for every line in the item, in order, until fn returns
// false.
func (it *Item) Walk(fn func(h *Hunk, s *Segment, l *Line) bool) {
	if it == nil {
		return
	}
	for hi := range it.Hunks {
		h := &it.Hunks[hi]
		for si := range h.Segments {
			s := &h.Segments[si]
			for li := range s.Lines {
				if !fn(h, s, &s.Lines[li]) {
					return
				}
			}
		}
	}
}

// LineWithComment returns the first line carrying commentID. A nil
// commentID matches the first line carrying any comment.
func (it *Item) LineWithComment(commentID *int64) *Line {
	var found *Line
	it.Walk(func(_ *Hunk, _ *Segment, l *Line) bool {
		if len(l.CommentIDs) == 0 {
			return true
		}
		if commentID == nil || l.HasComment(*commentID) {
			found = l
			return false
		}
		return true
	})
	return found
}

// HasConflictMarker reports whether any line is part of a merge conflict.
func (it *Item) HasConflictMarker() bool {
	conflict := false
	it.Walk(func(_ *Hunk, _ *Segment, l *Line) bool {
		if l.ConflictMarker != nil {
			conflict = true
			return false
		}
		return true
	})
	return conflict
}

// LineWithComment searches every file of the diff for commentID.
func (d *Diff) LineWithComment(commentID int64) *Line {
	if d == nil {
		return nil
	}
	for i := range d.Diffs {
		if l := d.Diffs[i].LineWithComment(&commentID); l != nil {
			return l
		}
	}
	return nil
}

// HasConflictMarker reports whether any file of the diff has conflict lines.
func (d *Diff) HasConflictMarker() bool {
	if d == nil {
		return false
	}
	for i := range d.Diffs {
		if d.Diffs[i].HasConflictMarker() {
			return true
		}
	}
	return false
}

// Binary reports whether the first file of the diff is binary.
func (d *Diff) Binary() bool {
	if d == nil || len(d.Diffs) == 0 {
		return false
	}
	return d.Diffs[0].Binary
}
