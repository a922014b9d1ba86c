package diff

import "sync"

// ContextLines is the number of context lines GitHub renders on each side of
// a change. Bitbucket Server renders up to ten.
const ContextLines = 3

// Placement is where a comment lands in a GitHub diff hunk.
type Placement struct {
	// Position is the 1-based line offset into the hunk.
	Position int
	// Moved is set when the original line falls outside GitHub's narrower
	// context window and the comment was relocated to the nearest line.
	Moved bool
}

// Locate finds target within the hunk and translates its offset into the
// GitHub rendering of the same hunk. ok is false when no line of the hunk
// equals target (comment ids are ignored in the comparison).
//
// Adjacent Bitbucket contexts are merged, so a middle CONTEXT segment can be
// up to twenty lines long. GitHub keeps at most three lines on each side and
// splits anything longer than six lines into an upper and a lower block
// separated by a range line.
func (h *Hunk) Locate(target *Line) (Placement, bool) {
	last := len(h.Segments) - 1
	position := 1

	for si := range h.Segments {
		seg := &h.Segments[si]
		idx := -1
		for li := range seg.Lines {
			if seg.Lines[li].SameAs(target) {
				idx = li
				break
			}
		}

		if idx >= 0 {
			moved := false
			if seg.Type == Context {
				moved, idx = contextIndex(si, last, idx, len(seg.Lines))
			}
			return Placement{Position: position + idx, Moved: moved}, true
		}

		position += renderedLines(seg, si, last)
	}

	return Placement{}, false
}

// renderedLines is how many lines a segment contributes to the GitHub hunk.
// Leading and trailing contexts are cut to three lines; a middle context is
// kept whole up to six lines and otherwise becomes 3 + range line + 3.
func renderedLines(seg *Segment, index, last int) int {
	n := len(seg.Lines)
	if seg.Type != Context {
		return n
	}
	limit := ContextLines*2 + 1
	if index == 0 || index == last {
		limit = ContextLines
	}
	return min(n, limit)
}

// contextIndex maps a line index within a CONTEXT segment onto its index in
// the GitHub rendering of that segment.
func contextIndex(segment, last, idx, count int) (bool, int) {
	switch segment {
	case 0:
		return firstContextIndex(idx, count)
	case last:
		return lastContextIndex(idx)
	default:
		return middleContextIndex(idx, count)
	}
}

// firstContextIndex keeps the bottom three lines of a leading context.
// Anything above them moves to the first rendered line.
func firstContextIndex(idx, count int) (bool, int) {
	idx -= max(count-ContextLines, 0)
	if idx < 0 {
		return true, 0
	}
	return false, idx
}

// lastContextIndex keeps the top three lines of a trailing context.
// Anything below them moves to the last rendered line.
func lastContextIndex(idx int) (bool, int) {
	if idx > ContextLines-1 {
		return true, ContextLines - 1
	}
	return false, idx
}

func middleContextIndex(idx, count int) (bool, int) {
	if count <= ContextLines*2 {
		return false, idx
	}

	// The midpoint of an even split belongs to the upper block.
	if idx <= count/2 {
		if idx >= ContextLines {
			return true, ContextLines - 1
		}
		return false, idx
	}

	extra := count - ContextLines
	moved := idx < extra
	if moved {
		idx = 0
	} else {
		idx -= extra
	}
	// Skip the upper block and the range line between the blocks.
	return moved, idx + ContextLines + 1
}

// Positioner locates an inline comment in a full file diff. Results are
// computed once and memoized.
type Positioner struct {
	diff *Diff

	// Exactly one of commentID and anchor identifies the comment line.
	commentID *int64
	anchor    *Item

	once      sync.Once
	found     bool
	placement Placement
	path      string
}

// NewPositioner returns a Positioner for the comment identified either by
// commentID (looked up in d) or by the commented line of activityDiff.
// commentID takes precedence when both are given.
func NewPositioner(d *Diff, commentID *int64, activityDiff *Item) *Positioner {
	p := &Positioner{diff: d, commentID: commentID}
	if commentID == nil {
		p.anchor = activityDiff
	}
	return p
}

// NewCommentPositioner returns a Positioner that finds the line carrying
// commentID inside d. It is used for commit comments, where the diff itself
// lists comment ids.
func NewCommentPositioner(d *Diff, commentID int64) *Positioner {
	return NewPositioner(d, &commentID, nil)
}

// NewAnchorPositioner returns a Positioner that finds, inside d, the line
// that carries a comment in anchor. anchor is the (possibly truncated) diff
// attached to a pull request activity; d is the complete diff of the file.
func NewAnchorPositioner(d *Diff, anchor *Item) *Positioner {
	return NewPositioner(d, nil, anchor)
}

// Moved reports whether the comment was relocated. ok is false when the
// comment could not be located.
func (p *Positioner) Moved() (moved bool, ok bool) {
	p.once.Do(p.calculate)
	return p.placement.Moved, p.found
}

// Position returns the 1-based position of the comment in its hunk.
func (p *Positioner) Position() (position int, ok bool) {
	p.once.Do(p.calculate)
	return p.placement.Position, p.found
}

// Path returns the path of the file containing the comment.
func (p *Positioner) Path() (path string, ok bool) {
	p.once.Do(p.calculate)
	return p.path, p.found
}

// CommentLine returns the line the comment is attached to, or nil.
func (p *Positioner) CommentLine() *Line {
	if p.commentID != nil {
		return p.diff.LineWithComment(*p.commentID)
	}
	if p.anchor != nil {
		return p.anchor.LineWithComment(nil)
	}
	return nil
}

func (p *Positioner) calculate() {
	if p.diff == nil {
		return
	}
	target := p.CommentLine()
	if target == nil {
		return
	}

	for i := range p.diff.Diffs {
		item := &p.diff.Diffs[i]
		for hi := range item.Hunks {
			if placement, ok := item.Hunks[hi].Locate(target); ok {
				p.found = true
				p.placement = placement
				p.path = item.Path()
				return
			}
		}
	}
}
