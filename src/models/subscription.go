package models

import (
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------

// MSubscriptionMode defines how the server treats consecutive pushes of an item.
type MSubscriptionMode string

const (
	ModeMerge    MSubscriptionMode = "MERGE"
	ModeDistinct MSubscriptionMode = "DISTINCT"
	ModeRaw      MSubscriptionMode = "RAW"
	ModeCommand  MSubscriptionMode = "COMMAND"
)

// Valid reports whether the mode is one the transport understands.
func (m MSubscriptionMode) Valid() bool {
	switch m {
	case ModeMerge, ModeDistinct, ModeRaw, ModeCommand:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------

// MSubscriptionKey identifies one logical subscription.
type MSubscriptionKey struct {
	Mode MSubscriptionMode `json:"mode"`
	Item string            `json:"item"`
}

func (k MSubscriptionKey) String() string {
	return string(k.Mode) + ":" + k.Item
}

// -----------------------------------------------------------------------------

// MSubscriptionRequest is what gets handed to the channel to open an item.
type MSubscriptionRequest struct {
	MSubscriptionKey
	Fields   []string `json:"fields"`
	Snapshot bool     `json:"snapshot"`
}

// Validate checks the request before any transport call is made.
func (r MSubscriptionRequest) Validate() error {
	if !r.Mode.Valid() {
		return fmt.Errorf("invalid subscription mode %q", r.Mode)
	}
	if strings.TrimSpace(r.Item) == "" {
		return fmt.Errorf("item cannot be empty")
	}
	if strings.ContainsAny(r.Item, " \r\n") {
		return fmt.Errorf("item %q contains whitespace", r.Item)
	}
	if len(r.Fields) == 0 {
		return fmt.Errorf("field list for %s cannot be empty", r.Item)
	}
	seen := make(map[string]struct{}, len(r.Fields))
	for _, f := range r.Fields {
		if strings.TrimSpace(f) == "" || strings.ContainsAny(f, " \r\n") {
			return fmt.Errorf("invalid field name %q for %s", f, r.Item)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("duplicate field %q for %s", f, r.Item)
		}
		seen[f] = struct{}{}
	}
	return nil
}

// -----------------------------------------------------------------------------

// FieldUnion returns a followed by every field of b not already in a.
func FieldUnion(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, f := range list {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// FieldSubset reports whether every field of sub is in set.
func FieldSubset(sub, set []string) bool {
	idx := make(map[string]struct{}, len(set))
	for _, f := range set {
		idx[f] = struct{}{}
	}
	for _, f := range sub {
		if _, ok := idx[f]; !ok {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------

// MRawValueState tells what a pushed value means for the field.
type MRawValueState int

const (
	RawUnchanged MRawValueState = iota
	RawNull
	RawSet
)

// MRawValue is one field value as delivered by the transport.
type MRawValue struct {
	State MRawValueState
	Value string
}

// Unchanged returns the marker for a field that kept its previous value.
func Unchanged() MRawValue { return MRawValue{State: RawUnchanged} }

// Null returns the marker for a field the server explicitly cleared.
func Null() MRawValue { return MRawValue{State: RawNull} }

// Set returns a concrete value.
func Set(v string) MRawValue { return MRawValue{State: RawSet, Value: v} }

// -----------------------------------------------------------------------------

// MRawUpdate is one push for one item, keyed by field name.
type MRawUpdate struct {
	Item   string
	Fields map[string]MRawValue
	// Order keeps the schema order of the fields so merging is deterministic.
	Order []string
}

// MFieldSnapshot is the merged view of every field value seen so far.
type MFieldSnapshot map[string]string

// Clone returns an independent copy.
func (s MFieldSnapshot) Clone() MFieldSnapshot {
	out := make(MFieldSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// MItemUpdate is the input of a decoder: the merged snapshot plus the fields
// that were written by the latest push.
type MItemUpdate struct {
	Key      MSubscriptionKey
	Snapshot MFieldSnapshot
	Changed  []string
}

// -----------------------------------------------------------------------------

// MChannelEventKind lists the events a channel binding can deliver.
type MChannelEventKind int

const (
	ChannelSubscribed MChannelEventKind = iota
	ChannelUpdate
	ChannelFailed
	ChannelUnsubscribed
)

// MChannelEvent is one element of a channel subscription's event stream.
type MChannelEvent struct {
	Kind   MChannelEventKind
	Update MRawUpdate
	Err    error
}

// -----------------------------------------------------------------------------

// MSubscriptionInfo is a read-only view of a registry entry.
type MSubscriptionInfo struct {
	Key          MSubscriptionKey `json:"key"`
	Fields       []string         `json:"fields"`
	Snapshot     bool             `json:"snapshot"`
	Listeners    int              `json:"listeners"`
	Acknowledged bool             `json:"acknowledged"`
}
