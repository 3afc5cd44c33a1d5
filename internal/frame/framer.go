package frame

import "strings"

// Block is one delimited unit of monitor-tool output. The first line is
// always a direction-marker line.
type Block struct {
	Lines []string
}

func (b Block) Text() string {
	return strings.Join(b.Lines, "\n")
}

// Framer splits an unbounded line sequence into Blocks. A line starting
// with ">" (outbound) or "<" (inbound) opens a new block; every
// following non-marker line is appended to the open block. Lines seen
// before the first marker have no block to join and are discarded.
type Framer struct {
	flushTrailing bool
	current       []string
	open          bool
}

// New returns a Framer. With flushTrailing the open trailing block is
// returned by Flush at stream end instead of being dropped.
func New(flushTrailing bool) *Framer {
	return &Framer{flushTrailing: flushTrailing}
}

func IsMarker(line string) bool {
	return strings.HasPrefix(line, ">") || strings.HasPrefix(line, "<")
}

// Push feeds one line into the framer. When the line closes a
// previously open block, that block is returned.
func (f *Framer) Push(line string) (Block, bool) {
	if IsMarker(line) {
		var done Block
		emitted := false
		if f.open {
			done = Block{Lines: f.current}
			emitted = true
		}
		f.current = []string{line}
		f.open = true
		return done, emitted
	}
	if f.open {
		f.current = append(f.current, line)
	}
	return Block{}, false
}

// Flush signals stream end. It returns the open trailing block only
// when the framer was built with flushTrailing.
func (f *Framer) Flush() (Block, bool) {
	if !f.flushTrailing || !f.open {
		return Block{}, false
	}
	done := Block{Lines: f.current}
	f.current = nil
	f.open = false
	return done, true
}
