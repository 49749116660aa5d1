package core

import (
	"fmt"
	"regexp"
	"strings"

	"bloodlink/internal/types"
)

// RecipientPath locates a recipient inside an event snapshot. Each field is
// a dotted snapshot path; Email and Name are optional.
type RecipientPath struct {
	UserID string
	Email  string
	Name   string
}

// BroadcastSpec describes the real-time message for an event kind. Channel
// is a pattern whose {path} placeholders are filled from the snapshot, for
// example "delivery.{id}". Fields selects the top-level snapshot fields that
// form the body; empty means all of them.
type BroadcastSpec struct {
	Channel string
	Event   string
	Fields  []string
}

// ActionTemplate is the call-to-action link of an email. Path is appended to
// the public application URL and may use template actions.
type ActionTemplate struct {
	Label string
	Path  string
}

// EmailTemplate holds the text/template sources of an email. Templates
// execute against the snapshot as plain maps, plus a "to" key
// describing the addressee.
//
// When StatusField is set, the value of that snapshot field selects a line
// from StatusLines, which is inserted after the fixed Lines. A value with no
// entry uses StatusFallback; an empty fallback renders nothing.
type EmailTemplate struct {
	Subject        string
	Greeting       string
	Lines          []string
	StatusField    string
	StatusLines    map[string]string
	StatusFallback string
	Action         *ActionTemplate
}

// RecordSpec describes the persisted in-app notification for an event kind.
// Fields selects the snapshot fields stored as record data; empty means all.
type RecordSpec struct {
	Kind   string
	Fields []string
}

// RoutingRule is one row of the routing table: what to snapshot for an event
// kind, who receives it, and over which transports.
type RoutingRule struct {
	Kind   types.EventKind
	Entity types.EntityKind
	Fields types.FieldSpec

	// Category is the preference key that silences the whole rule for a
	// recipient. Mandatory rules ignore it.
	Category  types.ChannelKind
	Mandatory bool

	Recipients []RecipientPath
	Transports []types.TransportKind

	Broadcast *BroadcastSpec
	Email     *EmailTemplate
	Record    *RecordSpec
}

// Declares reports whether the rule lists transport t.
func (r RoutingRule) Declares(t types.TransportKind) bool {
	for _, declared := range r.Transports {
		if declared == t {
			return true
		}
	}
	return false
}

// RoutingTable maps each event kind to its rule. It is built once at process
// start and only read afterwards.
type RoutingTable map[types.EventKind]RoutingRule

// Rule returns the rule registered for kind.
func (t RoutingTable) Rule(kind types.EventKind) (RoutingRule, bool) {
	r, ok := t[kind]
	return r, ok
}

// Validate checks that every kind in kinds has a rule and that every rule in
// the table can render each transport it declares. The first problem found
// is returned as a *ConfigurationError.
func (t RoutingTable) Validate(kinds []types.EventKind) error {
	for _, kind := range kinds {
		if _, ok := t[kind]; !ok {
			return &ConfigurationError{Kind: kind, Reason: "no routing rule registered"}
		}
	}
	for kind, rule := range t {
		if err := rule.validate(kind); err != nil {
			return err
		}
	}
	return nil
}

func (r RoutingRule) validate(key types.EventKind) error {
	if r.Kind != key {
		return &ConfigurationError{Kind: key, Reason: fmt.Sprintf("rule registered under %q declares kind %q", key, r.Kind)}
	}
	if r.Entity == "" {
		return &ConfigurationError{Kind: key, Reason: "rule has no entity kind"}
	}
	if len(r.Transports) == 0 {
		return &ConfigurationError{Kind: key, Reason: "rule declares no transports"}
	}
	if !r.Mandatory && r.Category == "" {
		return &ConfigurationError{Kind: key, Reason: "non-mandatory rule has no preference category"}
	}
	if len(r.Recipients) == 0 {
		return &ConfigurationError{Kind: key, Reason: "rule has no recipients"}
	}
	for _, rp := range r.Recipients {
		if rp.UserID == "" {
			return &ConfigurationError{Kind: key, Reason: "recipient path without user id"}
		}
	}

	seen := make(map[types.TransportKind]bool, len(r.Transports))
	for _, tr := range r.Transports {
		if seen[tr] {
			return &ConfigurationError{Kind: key, Transport: tr, Reason: "transport declared twice"}
		}
		seen[tr] = true

		switch tr {
		case types.TransportBroadcast:
			if r.Broadcast == nil || r.Broadcast.Channel == "" || r.Broadcast.Event == "" {
				return &ConfigurationError{Kind: key, Transport: tr, Reason: "no broadcast channel and event"}
			}
			for _, p := range placeholders(r.Broadcast.Channel) {
				if !r.captures(p) {
					return &ConfigurationError{Kind: key, Transport: tr, Reason: fmt.Sprintf("channel placeholder {%s} is not snapshotted", p)}
				}
			}
			if f, ok := r.uncaptured(r.Broadcast.Fields); !ok {
				return &ConfigurationError{Kind: key, Transport: tr, Reason: fmt.Sprintf("body field %q is not snapshotted", f)}
			}
		case types.TransportMail:
			if r.Email == nil || r.Email.Subject == "" {
				return &ConfigurationError{Kind: key, Transport: tr, Reason: "no email template"}
			}
			for _, rp := range r.Recipients {
				if rp.Email == "" {
					return &ConfigurationError{Kind: key, Transport: tr, Reason: "recipient path without email"}
				}
			}
		case types.TransportDatabase:
			if r.Record == nil || r.Record.Kind == "" {
				return &ConfigurationError{Kind: key, Transport: tr, Reason: "no record spec"}
			}
			if f, ok := r.uncaptured(r.Record.Fields); !ok {
				return &ConfigurationError{Kind: key, Transport: tr, Reason: fmt.Sprintf("record field %q is not snapshotted", f)}
			}
		default:
			return &ConfigurationError{Kind: key, Transport: tr, Reason: "unknown transport"}
		}
	}

	if r.Broadcast != nil && !seen[types.TransportBroadcast] {
		return &ConfigurationError{Kind: key, Transport: types.TransportBroadcast, Reason: "broadcast spec without broadcast transport"}
	}
	return nil
}

// captures reports whether a dotted path is covered by the rule's FieldSpec.
func (r RoutingRule) captures(path string) bool {
	spec := r.Fields
	parts := strings.Split(path, ".")
	for i, p := range parts {
		if i == len(parts)-1 {
			for _, f := range spec.Fields {
				if f == p {
					return true
				}
			}
			return false
		}
		next, ok := spec.Relations[p]
		if !ok {
			return false
		}
		spec = next
	}
	return false
}

// uncaptured returns the first top-level name the FieldSpec does not cover.
func (r RoutingRule) uncaptured(names []string) (string, bool) {
	for _, n := range names {
		if _, ok := r.Fields.Relations[n]; ok {
			continue
		}
		if !r.captures(n) {
			return n, false
		}
	}
	return "", true
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_.]+)\}`)

func placeholders(pattern string) []string {
	matches := placeholderRe.FindAllStringSubmatch(pattern, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// interpolate fills the {path} placeholders of pattern from s. It fails on
// the first placeholder whose value is absent.
func interpolate(pattern string, s types.Snapshot) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(pattern, func(m string) string {
		path := m[1 : len(m)-1]
		v, ok := s.Text(path)
		if !ok && missing == "" {
			missing = path
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("placeholder {%s} has no value", missing)
	}
	return out, nil
}
