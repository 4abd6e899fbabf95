// Package postback decodes the delta responses of ASP.NET partial postbacks.
//
// A delta body is a pipe-delimited stream of |length|type|name|value| records. Only the
// hidden control fields that must be echoed back on the next request are kept.
package postback

import "strings"

// Control fields kept from a delta response.
const (
	EventTarget   = "__EVENTTARGET"
	EventArgument = "__EVENTARGUMENT"
	LastFocus     = "__LASTFOCUS"
	ViewState     = "__VIEWSTATE"
)

var whitelist = map[string]struct{}{
	EventTarget:   {},
	EventArgument: {},
	LastFocus:     {},
	ViewState:     {},
}

// Field is one decoded control field.
type Field struct {
	Name  string
	Value string
}

// State is the ordered set of control fields found in a delta response.
type State struct {
	fields []Field
}

// Parse scans body for whitelisted field names and takes the following token as the value.
// Framing noise is ignored; a field that appears more than once keeps its last value at its
// first position. Missing fields are simply absent.
func Parse(body string) State {
	var state State
	tokens := strings.Split(body, "|")
	for i := 0; i+1 < len(tokens); i++ {
		if _, ok := whitelist[tokens[i]]; !ok {
			continue
		}
		state.set(tokens[i], tokens[i+1])
		i++
	}
	return state
}

func (s *State) set(name, value string) {
	for i := range s.fields {
		if s.fields[i].Name == name {
			s.fields[i].Value = value
			return
		}
	}
	s.fields = append(s.fields, Field{Name: name, Value: value})
}

// Len returns the number of decoded fields.
func (s State) Len() int { return len(s.fields) }

// Get returns the value of name and whether it was present.
func (s State) Get(name string) (string, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Fields returns the decoded fields in order of first appearance.
func (s State) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Map returns the decoded fields as a map.
func (s State) Map() map[string]string {
	out := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		out[f.Name] = f.Value
	}
	return out
}
