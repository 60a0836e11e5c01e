package chat

// History is the ordered, append-only record of exchanged turns used as
// generation context. It is owned exclusively by one active session and is
// not safe for concurrent use — the owning session serializes access.
type History struct {
	msgs []*Message
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{}
}

// Append adds a message to the end of the history.
func (h *History) Append(m *Message) {
	h.msgs = append(h.msgs, m)
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	return len(h.msgs)
}

// Messages returns the turns in order. The returned slice is a copy, so the
// caller may extend it without affecting the history, but the messages
// themselves are shared.
func (h *History) Messages() []*Message {
	out := make([]*Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Clear resets the history to empty. Called exactly once per session, when
// the collection window closes.
func (h *History) Clear() {
	h.msgs = nil
}
