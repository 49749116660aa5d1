package core

import (
	"fmt"

	"bloodlink/internal/types"
)

// ConfigurationError reports a routing table that cannot serve an event kind:
// no rule is registered, or a declared transport has no renderer or no way
// to be sent. It is raised by validation at startup and, for kinds that were
// never validated, by Dispatch.
type ConfigurationError struct {
	Kind      types.EventKind
	Transport types.TransportKind
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Transport != "" {
		return fmt.Sprintf("routing configuration: %s/%s: %s", e.Kind, e.Transport, e.Reason)
	}
	return fmt.Sprintf("routing configuration: %s: %s", e.Kind, e.Reason)
}

// RecipientResolutionError wraps a preference store failure. The resolver
// logs it and treats the preference as enabled.
type RecipientResolutionError struct {
	UserID  string
	Channel types.ChannelKind
	Err     error
}

func (e *RecipientResolutionError) Error() string {
	return fmt.Sprintf("resolve preference %s for user %s: %v", e.Channel, e.UserID, e.Err)
}

func (e *RecipientResolutionError) Unwrap() error { return e.Err }

// RenderError is a snapshot that lacks a field a renderer needs. It fails
// only the target being rendered.
type RenderError struct {
	Kind      types.EventKind
	Transport types.TransportKind
	Field     string
	Err       error
}

func (e *RenderError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("render %s for %s: field %q: %v", e.Transport, e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("render %s for %s: %v", e.Transport, e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
