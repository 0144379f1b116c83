// Package singer reads Singer protocol messages.
package singer

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// Message types.
const (
	TypeRecord          = "RECORD"
	TypeSchema          = "SCHEMA"
	TypeState           = "STATE"
	TypeActivateVersion = "ACTIVATE_VERSION"
	TypeBatch           = "BATCH"
)

// Type returns the message type of a line, or "" when the line is not a message.
func Type(line []byte) string {
	if !gjson.ValidBytes(line) {
		return ""
	}
	return gjson.GetBytes(line, "type").String()
}

// State extracts a state payload from a line a target printed.
//
// Targets either echo the STATE message or print its bare value; both are accepted.
// Other messages and non-JSON lines are ignored.
func State(line []byte) ([]byte, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !gjson.ValidBytes(line) {
		return nil, false
	}

	doc := gjson.ParseBytes(line)
	if !doc.IsObject() {
		return nil, false
	}

	switch doc.Get("type").String() {
	case TypeState:
		value := doc.Get("value")
		if !value.IsObject() {
			return nil, false
		}
		return []byte(value.Raw), true
	case "":
		return line, true
	default:
		return nil, false
	}
}

// IsState reports whether b is a JSON object usable as state.
func IsState(b []byte) bool {
	return gjson.ValidBytes(b) && gjson.ParseBytes(b).IsObject()
}

// Bookmarks returns the stream names with a bookmark in state.
func Bookmarks(state []byte) []string {
	var streams []string
	gjson.GetBytes(state, "bookmarks").ForEach(func(key, _ gjson.Result) bool {
		streams = append(streams, key.String())
		return true
	})
	return streams
}
