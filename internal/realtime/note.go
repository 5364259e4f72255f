package realtime

import (
	"time"
)

// Note is the shared free-text document: a single scalar value, no
// history, last-write-wins.
type Note struct {
	doc *Document[string]
}

// NewNote creates the note replica. send flushes the full text.
func NewNote(localID string, window time.Duration, send func(content string)) *Note {
	return &Note{
		doc: NewDocument[string](
			localID,
			window,
			func(s string) string { return s },
			func(a, b string) bool { return a == b },
			send,
		),
	}
}

// OnChange registers the re-render notification for remote updates.
func (n *Note) OnChange(fn func()) { n.doc.OnChange(fn) }

// Synced reports whether the initial state has arrived.
func (n *Note) Synced() bool { return n.doc.Synced() }

// Init installs the server's initial note text.
func (n *Note) Init(content string) { n.doc.Init(content) }

// Text returns the current note text.
func (n *Note) Text() string { return n.doc.Value() }

// SetText applies a local edit and (re)arms the debounce window.
func (n *Note) SetText(content string) error {
	return n.doc.Edit(func(v *string) { *v = content })
}

// ApplyRemote reconciles a server-broadcast note snapshot.
func (n *Note) ApplyRemote(sender, content string) bool {
	return n.doc.ApplyRemote(sender, content, nil)
}

// Close cancels any pending flush.
func (n *Note) Close() { n.doc.Close() }
