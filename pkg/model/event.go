package model

import (
	"fmt"
	"strings"
)

// Op is a set of filesystem change categories. It is used both as the mask a
// registration subscribes to and as the bits carried by a delivered event.
type Op uint32

const (
	Create Op = 1 << iota
	Write
	Remove
	Rename
	Chmod
	CloseWrite
	MovedTo
	Overflow
)

// All selects every change category.
const All = Create | Write | Remove | Rename | Chmod | CloseWrite | MovedTo

// Modified is the set of categories that mean "content may have changed".
const Modified = Write | CloseWrite | Create | MovedTo

// Event is the payload handed to a registration callback.
type Event struct {
	Op Op
	// Cookie pairs the two halves of a rename, zero otherwise.
	Cookie uint32
	// Name is the entry name relative to the watched path, or the base name
	// of the watched path when the change concerns the path itself.
	Name string
	// Path is the path the registration was made for.
	Path string
}

func (op Op) String() string {
	var b strings.Builder
	if op.Has(Create) {
		b.WriteString("|CREATE")
	}
	if op.Has(Remove) {
		b.WriteString("|REMOVE")
	}
	if op.Has(Write) {
		b.WriteString("|WRITE")
	}
	if op.Has(CloseWrite) {
		b.WriteString("|CLOSE_WRITE")
	}
	if op.Has(Rename) {
		b.WriteString("|RENAME")
	}
	if op.Has(MovedTo) {
		b.WriteString("|MOVED_TO")
	}
	if op.Has(Chmod) {
		b.WriteString("|CHMOD")
	}
	if op.Has(Overflow) {
		b.WriteString("|OVERFLOW")
	}
	if b.Len() == 0 {
		return "[no events]"
	}
	return b.String()[1:]
}

func (op Op) Has(h Op) bool { return op&h == h }

// Any reports whether op shares at least one bit with mask.
func (op Op) Any(mask Op) bool { return op&mask != 0 }

func (e Event) Has(op Op) bool { return e.Op.Has(op) }

func (e Event) String() string {
	return fmt.Sprintf("%-13s %q (cookie: %d, path: %s)", e.Op.String(), e.Name, e.Cookie, e.Path)
}
