package diag

import (
	"vais/internal/source"
)

// Note is a secondary span with its own message.
type Note struct {
	Span source.Span `msgpack:"span" json:"span"`
	Msg  string      `msgpack:"msg" json:"msg"`
}

type FixEdit struct {
	Span    source.Span `msgpack:"span" json:"span"`
	NewText string      `msgpack:"text" json:"new_text"`
}

// Fix is a suggested source change.
type Fix struct {
	Title string    `msgpack:"title" json:"title"`
	Edits []FixEdit `msgpack:"edits" json:"edits"`
}

type Diagnostic struct {
	Severity Severity    `msgpack:"sev"`
	Code     Code        `msgpack:"code"`
	Message  string      `msgpack:"msg"`
	Primary  source.Span `msgpack:"primary"`
	Notes    []Note      `msgpack:"notes,omitempty"`
	Fixes    []Fix       `msgpack:"fixes,omitempty"`
}
