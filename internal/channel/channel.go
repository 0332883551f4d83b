// Package channel is the fixed registry of event categories the relay carries.
package channel

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Channel is one logical event category. The set is closed: adding a
// category means adding a constant and a row to registry.
type Channel int

const (
	Community Channel = iota + 1
	Chat
	TradeChat
	Execution
	Scan
	FakeScan
)

type entry struct {
	name string // symbolic name used in code and config
	wire string // pub/sub channel name and envelope type
}

var registry = [...]entry{
	Community: {name: "community", wire: "community_monitor"},
	Chat:      {name: "chat", wire: "chat_monitor"},
	TradeChat: {name: "trade_chat", wire: "trade_chat_monitor"},
	Execution: {name: "execution", wire: "exe_monitor"},
	Scan:      {name: "scan", wire: "scan_monitor"},
	FakeScan:  {name: "fake_scan", wire: "fake_scan_monitor"},
}

var byWire = func() map[string]Channel {
	m := make(map[string]Channel, len(registry))
	for _, c := range All() {
		m[registry[c].wire] = c
	}
	return m
}()

var byName = func() map[string]Channel {
	m := make(map[string]Channel, len(registry))
	for _, c := range All() {
		m[registry[c].name] = c
	}
	return m
}()

// All returns every registered channel in declaration order.
func All() []Channel {
	return []Channel{Community, Chat, TradeChat, Execution, Scan, FakeScan}
}

// Names returns the wire names of the given channels, or of all channels
// when none are given.
func Names(chs ...Channel) []string {
	if len(chs) == 0 {
		chs = All()
	}
	out := make([]string, 0, len(chs))
	for _, c := range chs {
		out = append(out, c.String())
	}
	return out
}

// Parse resolves a wire name such as "scan_monitor".
func Parse(wire string) (Channel, bool) {
	c, ok := byWire[wire]
	return c, ok
}

// Lookup resolves either a wire name or a symbolic name such as "scan",
// ignoring case and surrounding space.
func Lookup(s string) (Channel, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := byWire[s]; ok {
		return c, true
	}
	c, ok := byName[s]
	return c, ok
}

// Valid reports whether c is a registered channel.
func (c Channel) Valid() bool {
	return c >= Community && c <= FakeScan
}

// String returns the wire name.
func (c Channel) String() string {
	if !c.Valid() {
		return fmt.Sprintf("channel(%d)", int(c))
	}
	return registry[c].wire
}

// Name returns the symbolic name.
func (c Channel) Name() string {
	if !c.Valid() {
		return ""
	}
	return registry[c].name
}

// MarshalJSON encodes the channel as its wire name.
func (c Channel) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("channel: cannot marshal unregistered channel %d", int(c))
	}
	return json.Marshal(registry[c].wire)
}

// UnmarshalJSON decodes a wire name. Unknown names are an error so callers
// can tell a malformed envelope from a valid one.
func (c *Channel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	parsed, ok := Parse(s)
	if !ok {
		return &UnknownError{Wire: s}
	}
	*c = parsed
	return nil
}

// UnknownError reports a wire name that is not in the registry.
type UnknownError struct {
	Wire string
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("channel: unknown channel %q", e.Wire)
}
