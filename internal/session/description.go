package session

import "sync"

// Description is a fragment label that may still be computing when the
// fragment is created (summaries are produced asynchronously). It is
// either resolved to a string or pending on a channel.
type Description struct {
	mu       sync.Mutex
	resolved bool
	text     string
	pending  <-chan string
}

// ResolvedDescription returns an already-resolved description.
func ResolvedDescription(text string) *Description {
	return &Description{resolved: true, text: text}
}

// PendingDescription returns a description that resolves to the first
// value received from ch.
func PendingDescription(ch <-chan string) *Description {
	return &Description{pending: ch}
}

// Resolve returns the description text, blocking until a pending value
// arrives. The result is cached, so only the first call can block.
// Persistence is not latency-critical; the codec calls this before
// serializing and that wait is the intended synchronization point.
func (d *Description) Resolve() string {
	if d == nil {
		return ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.resolved {
		d.text = <-d.pending
		d.resolved = true
		d.pending = nil
	}
	return d.text
}

// IsResolved reports whether Resolve would return without blocking.
func (d *Description) IsResolved() bool {
	if d == nil {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolved
}

// descEqual compares descriptions structurally. Two resolved
// descriptions are equal when their texts match; a nil description
// equals a resolved empty one; a pending description equals only
// itself.
func descEqual(a, b *Description) bool {
	if a == b {
		return true
	}
	aText, aOK := descText(a)
	bText, bOK := descText(b)
	if !aOK || !bOK {
		return false
	}
	return aText == bText
}

func descText(d *Description) (string, bool) {
	if d == nil {
		return "", true
	}
	if !d.IsResolved() {
		return "", false
	}
	return d.Resolve(), true
}
