package core

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"bloodlink/internal/types"
)

// Renderer produces the transport-specific payload of an event. It performs
// no I/O: everything it needs is in the snapshot and the target. Email
// templates are compiled once, at construction.
type Renderer struct {
	publicURL string
	emails    map[types.EventKind]*compiledEmail
}

type compiledEmail struct {
	subject     *template.Template
	greeting    *template.Template
	lines       []*template.Template
	statusField string
	statusLines map[string]*template.Template
	fallback    *template.Template
	actionLabel string
	actionPath  *template.Template
}

var templateFuncs = template.FuncMap{
	"date": formatDate,
}

// NewRenderer compiles the email templates of every rule in table. A
// template that does not parse is a *ConfigurationError.
func NewRenderer(table RoutingTable, publicURL string) (*Renderer, error) {
	r := &Renderer{
		publicURL: strings.TrimRight(publicURL, "/"),
		emails:    make(map[types.EventKind]*compiledEmail),
	}
	for kind, rule := range table {
		if rule.Email == nil {
			continue
		}
		ce, err := compileEmail(kind, rule.Email)
		if err != nil {
			return nil, &ConfigurationError{Kind: kind, Transport: types.TransportMail, Reason: err.Error()}
		}
		r.emails[kind] = ce
	}
	return r, nil
}

func compileEmail(kind types.EventKind, t *EmailTemplate) (*compiledEmail, error) {
	parse := func(name, src string) (*template.Template, error) {
		return template.New(string(kind) + "/" + name).
			Option("missingkey=error").
			Funcs(templateFuncs).
			Parse(src)
	}

	ce := &compiledEmail{statusField: t.StatusField, statusLines: map[string]*template.Template{}}
	var err error
	if ce.subject, err = parse("subject", t.Subject); err != nil {
		return nil, err
	}
	if ce.greeting, err = parse("greeting", t.Greeting); err != nil {
		return nil, err
	}
	for i, src := range t.Lines {
		tmpl, err := parse(fmt.Sprintf("line%d", i), src)
		if err != nil {
			return nil, err
		}
		ce.lines = append(ce.lines, tmpl)
	}
	for status, src := range t.StatusLines {
		tmpl, err := parse("status/"+status, src)
		if err != nil {
			return nil, err
		}
		ce.statusLines[status] = tmpl
	}
	if t.StatusFallback != "" {
		if ce.fallback, err = parse("status/fallback", t.StatusFallback); err != nil {
			return nil, err
		}
	}
	if t.Action != nil {
		ce.actionLabel = t.Action.Label
		if ce.actionPath, err = parse("action", t.Action.Path); err != nil {
			return nil, err
		}
	}
	return ce, nil
}

// Render builds the payload for target. A field the payload needs that the
// snapshot lacks is a *RenderError.
func (r *Renderer) Render(event types.DomainEvent, target types.ChannelTarget, rule RoutingRule) (types.RenderedPayload, error) {
	switch target.Transport {
	case types.TransportBroadcast:
		return r.renderBroadcast(event, rule)
	case types.TransportMail:
		return r.renderEmail(event, target, rule)
	case types.TransportDatabase:
		return r.renderRecord(event, target, rule)
	default:
		return nil, &RenderError{Kind: event.Kind, Transport: target.Transport, Err: fmt.Errorf("no renderer for transport")}
	}
}

func (r *Renderer) renderBroadcast(event types.DomainEvent, rule RoutingRule) (*types.BroadcastPayload, error) {
	if rule.Broadcast == nil {
		return nil, &RenderError{Kind: event.Kind, Transport: types.TransportBroadcast, Err: fmt.Errorf("rule has no broadcast spec")}
	}
	channel, err := interpolate(rule.Broadcast.Channel, event.Payload)
	if err != nil {
		return nil, &RenderError{Kind: event.Kind, Transport: types.TransportBroadcast, Field: rule.Broadcast.Channel, Err: err}
	}
	body, err := selectFields(event.Payload, rule.Broadcast.Fields)
	if err != nil {
		return nil, &RenderError{Kind: event.Kind, Transport: types.TransportBroadcast, Err: err}
	}
	return &types.BroadcastPayload{
		Channel: channel,
		Event:   rule.Broadcast.Event,
		Body:    body,
	}, nil
}

func (r *Renderer) renderRecord(event types.DomainEvent, target types.ChannelTarget, rule RoutingRule) (*types.RecordPayload, error) {
	if rule.Record == nil {
		return nil, &RenderError{Kind: event.Kind, Transport: types.TransportDatabase, Err: fmt.Errorf("rule has no record spec")}
	}
	if target.Recipient.UserID == "" {
		return nil, &RenderError{Kind: event.Kind, Transport: types.TransportDatabase, Field: "user_id", Err: fmt.Errorf("target has no user")}
	}
	data, err := selectFields(event.Payload, rule.Record.Fields)
	if err != nil {
		return nil, &RenderError{Kind: event.Kind, Transport: types.TransportDatabase, Err: err}
	}
	return &types.RecordPayload{
		UserID: target.Recipient.UserID,
		Kind:   rule.Record.Kind,
		Data:   data,
	}, nil
}

func (r *Renderer) renderEmail(event types.DomainEvent, target types.ChannelTarget, rule RoutingRule) (*types.EmailPayload, error) {
	ce, ok := r.emails[event.Kind]
	if !ok {
		return nil, &RenderError{Kind: event.Kind, Transport: types.TransportMail, Err: fmt.Errorf("no email template compiled")}
	}
	data := templateData(event.Payload, target.Recipient)
	fail := func(err error) (*types.EmailPayload, error) {
		return nil, &RenderError{Kind: event.Kind, Transport: types.TransportMail, Err: err}
	}

	subject, err := execute(ce.subject, data)
	if err != nil {
		return fail(err)
	}
	greeting, err := execute(ce.greeting, data)
	if err != nil {
		return fail(err)
	}
	lines := make([]string, 0, len(ce.lines)+1)
	for _, tmpl := range ce.lines {
		line, err := execute(tmpl, data)
		if err != nil {
			return fail(err)
		}
		lines = append(lines, line)
	}

	if ce.statusField != "" {
		status, ok := event.Payload.Text(ce.statusField)
		if !ok {
			return nil, &RenderError{Kind: event.Kind, Transport: types.TransportMail, Field: ce.statusField, Err: fmt.Errorf("status is absent")}
		}
		tmpl, ok := ce.statusLines[status]
		if !ok {
			tmpl = ce.fallback
		}
		if tmpl != nil {
			line, err := execute(tmpl, data)
			if err != nil {
				return fail(err)
			}
			lines = append(lines, line)
		}
	}

	payload := &types.EmailPayload{
		To:       target.Address,
		ToName:   target.Recipient.Name,
		Subject:  subject,
		Greeting: greeting,
		Lines:    lines,
	}
	if ce.actionPath != nil {
		path, err := execute(ce.actionPath, data)
		if err != nil {
			return fail(err)
		}
		payload.Action = &types.Action{Label: ce.actionLabel, URL: r.publicURL + path}
	}
	return payload, nil
}

func execute(t *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// templateData exposes the snapshot to templates with absent values removed,
// so that a template touching one fails on missingkey instead of printing
// "<no value>". The addressee is available as "to".
func templateData(s types.Snapshot, rcpt types.Recipient) map[string]any {
	data := dropAbsent(s.Map())
	name := rcpt.Name
	if name == "" {
		name = "there"
	}
	data["to"] = map[string]any{"id": rcpt.UserID, "email": rcpt.Email, "name": name}
	return data
}

func dropAbsent(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch tv := v.(type) {
		case nil:
			continue
		case map[string]any:
			out[k] = dropAbsent(tv)
		default:
			out[k] = v
		}
	}
	return out
}

// selectFields copies the named top-level fields of s in wire form. Absent
// values are kept as nil; names the snapshot never captured are an error.
func selectFields(s types.Snapshot, names []string) (map[string]any, error) {
	all := s.JSONMap()
	if len(names) == 0 {
		return all, nil
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		v, ok := all[n]
		if !ok {
			return nil, fmt.Errorf("field %q was not snapshotted", n)
		}
		out[n] = v
	}
	return out, nil
}

func formatDate(v any) (string, error) {
	switch tv := v.(type) {
	case time.Time:
		return tv.UTC().Format("Monday, January 2, 2006 at 15:04 UTC"), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, tv)
		if err != nil {
			return tv, nil
		}
		return formatDate(t)
	default:
		return "", fmt.Errorf("date: unsupported value %T", v)
	}
}
