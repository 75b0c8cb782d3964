// Package ami speaks the Asterisk Manager Interface: a line-oriented
// protocol of "Key: Value" blocks terminated by a blank line. It provides
// the wire codec, the authenticated session that owns the connection, and
// a client that correlates action responses by ActionID while handing every
// other inbound message to a bounded queue.
package ami

import "strings"

// Message is one decoded inbound block. Keys are stored lowercased so that
// lookups tolerate the switch's inconsistent casing (Uniqueid vs UniqueID).
type Message map[string]string

// NewMessage builds a message from alternating key/value pairs.
func NewMessage(kv ...string) Message {
	m := make(Message, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i], kv[i+1])
	}
	return m
}

// Get returns the value for key, or "" when absent.
func (m Message) Get(key string) string {
	return m[strings.ToLower(key)]
}

// Has reports whether key is present, even with an empty value.
func (m Message) Has(key string) bool {
	_, ok := m[strings.ToLower(key)]
	return ok
}

// Set stores value under key. A repeated key overwrites the earlier value.
func (m Message) Set(key, value string) {
	m[strings.ToLower(key)] = value
}

// Event returns the notification name, or "" for responses.
func (m Message) Event() string { return m.Get("Event") }

// IsEvent reports whether the message is an asynchronous notification.
func (m Message) IsEvent() bool { return m.Has("Event") }

// Response returns the response status ("Success", "Error", ...).
func (m Message) Response() string { return m.Get("Response") }

// ActionID returns the correlation token echoed by the switch.
func (m Message) ActionID() string { return m.Get("ActionID") }

// Succeeded reports whether a response message acknowledges its action.
// Logoff is answered with "Goodbye" and list actions with "Follows".
func (m Message) Succeeded() bool {
	switch strings.ToLower(m.Response()) {
	case "success", "follows", "goodbye":
		return true
	}
	return false
}

// Field is one outbound "Key: Value" line.
type Field struct {
	Key   string
	Value string
}

// Action is an outbound command. Fields are written in the order given,
// after the Action and ActionID lines.
type Action struct {
	Name   string
	ID     string
	Fields []Field
}

// NewAction builds an action from alternating key/value pairs.
func NewAction(name string, kv ...string) Action {
	a := Action{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		a.Fields = append(a.Fields, Field{Key: kv[i], Value: kv[i+1]})
	}
	return a
}

// Get returns the first value for key, or "".
func (a Action) Get(key string) string {
	for _, f := range a.Fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}
	return ""
}

func (a Action) lines() []Field {
	out := make([]Field, 0, len(a.Fields)+2)
	out = append(out, Field{Key: "Action", Value: a.Name})
	if a.ID != "" {
		out = append(out, Field{Key: "ActionID", Value: a.ID})
	}
	return append(out, a.Fields...)
}
