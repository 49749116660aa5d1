package core

import (
	"context"

	"bloodlink/internal/types"
)

// Resolver turns an event and its routing rule into the ordered list of
// targets that should receive it. It is the single point where recipient
// preferences are applied, and it runs before any rendering.
type Resolver struct {
	prefs  types.PreferenceStore
	logger types.Logger
}

// NewResolver creates a Resolver. A nil store means every preference is
// treated as enabled.
func NewResolver(prefs types.PreferenceStore, logger types.Logger) *Resolver {
	return &Resolver{prefs: prefs, logger: logger}
}

// Resolve returns the targets for event in recipient order, and within a
// recipient in the rule's transport order. A recipient is dropped entirely
// when the rule's category is disabled for them, and a single transport is
// dropped when its own channel kind is disabled. Mandatory rules skip both
// checks. Broadcast targets are shared by every recipient, so they are kept
// once per channel.
//
// An empty result is not an error.
func (r *Resolver) Resolve(ctx context.Context, event types.DomainEvent, rule RoutingRule) []types.ChannelTarget {
	recipients := recipientsOf(event.Payload, rule)
	if len(recipients) == 0 {
		return nil
	}

	lookups := make(map[prefKey]bool)
	enabled := func(userID string, kind types.ChannelKind) bool {
		if rule.Mandatory {
			return true
		}
		k := prefKey{userID, kind}
		if v, ok := lookups[k]; ok {
			return v
		}
		v := r.enabled(ctx, userID, kind)
		lookups[k] = v
		return v
	}

	var targets []types.ChannelTarget
	seen := make(map[targetKey]bool)
	for _, rcpt := range recipients {
		if !enabled(rcpt.UserID, rule.Category) {
			continue
		}
		for _, tr := range rule.Transports {
			if !enabled(rcpt.UserID, types.ChannelKindFor(tr)) {
				continue
			}
			addr, ok := r.address(event, rule, tr, rcpt)
			if !ok {
				continue
			}
			key := targetKey{tr, addr}
			if seen[key] {
				continue
			}
			seen[key] = true
			targets = append(targets, types.ChannelTarget{
				Transport: tr,
				Address:   addr,
				Recipient: rcpt,
			})
		}
	}
	return targets
}

type prefKey struct {
	userID string
	kind   types.ChannelKind
}

type targetKey struct {
	transport types.TransportKind
	address   string
}

// enabled reads one preference. A store failure degrades to enabled.
func (r *Resolver) enabled(ctx context.Context, userID string, kind types.ChannelKind) bool {
	if r.prefs == nil {
		return true
	}
	pref, err := r.prefs.GetPreference(ctx, userID, kind)
	if err != nil {
		rerr := &RecipientResolutionError{UserID: userID, Channel: kind, Err: err}
		r.logger.Warn("preference lookup failed, defaulting to enabled",
			"user_id", userID,
			"channel_kind", string(kind),
			"error", rerr.Error(),
		)
		return true
	}
	if pref == nil {
		return true
	}
	return pref.Enabled
}

// address picks the destination for one transport. Mail needs a mailbox;
// a recipient without one gets no mail target.
func (r *Resolver) address(event types.DomainEvent, rule RoutingRule, tr types.TransportKind, rcpt types.Recipient) (string, bool) {
	switch tr {
	case types.TransportBroadcast:
		if rule.Broadcast == nil {
			return "", false
		}
		ch, err := interpolate(rule.Broadcast.Channel, event.Payload)
		if err != nil {
			// Keep the raw pattern; the renderer reports the missing field.
			return rule.Broadcast.Channel, true
		}
		return ch, true
	case types.TransportMail:
		if rcpt.Email == "" {
			r.logger.Warn("recipient has no email address, skipping mail",
				"event_id", event.ID,
				"event_kind", string(event.Kind),
				"user_id", rcpt.UserID,
			)
			return "", false
		}
		return rcpt.Email, true
	default:
		return rcpt.UserID, true
	}
}

// recipientsOf reads the candidate recipients out of the snapshot. Paths
// through an absent relation yield no recipient. Duplicates by user id are
// collapsed, keeping the first.
func recipientsOf(s types.Snapshot, rule RoutingRule) []types.Recipient {
	var out []types.Recipient
	seen := make(map[string]bool, len(rule.Recipients))
	for _, p := range rule.Recipients {
		id, ok := s.Text(p.UserID)
		if !ok || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		rcpt := types.Recipient{UserID: id}
		if p.Email != "" {
			rcpt.Email, _ = s.Text(p.Email)
		}
		if p.Name != "" {
			rcpt.Name, _ = s.Text(p.Name)
		}
		out = append(out, rcpt)
	}
	return out
}
