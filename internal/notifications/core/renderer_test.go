package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloodlink/internal/types"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(DefaultRoutingTable(), "https://app.bloodlink.test/")
	require.NoError(t, err)
	return r
}

var owner = types.Recipient{UserID: "17", Email: "owner@stmarys.org", Name: "Ada Owner"}

func TestRenderer_DeliveryBroadcast(t *testing.T) {
	r := newTestRenderer(t)
	rule := DefaultRoutingTable()[types.EventDeliveryStatusChanged]
	event := eventFor(types.EventDeliveryStatusChanged, deliveryEntity("In Transit"))

	p, err := r.Render(event, types.ChannelTarget{Transport: types.TransportBroadcast, Address: "delivery.42", Recipient: owner}, rule)
	require.NoError(t, err)

	b, ok := p.(*types.BroadcastPayload)
	require.True(t, ok)
	assert.Equal(t, "delivery.42", b.Channel)
	assert.Equal(t, "DeliveryStatusUpdated", b.Event)
	assert.Equal(t, int64(42), b.Body["id"])
	assert.Equal(t, "In Transit", b.Body["status"])
	assert.Equal(t, "TRK-42", b.Body["tracking_code"])
	assert.Nil(t, b.Body["estimated_arrival"])
	assert.Equal(t, "2026-03-01T09:30:00Z", b.Body["updated_at"])
	rider, ok := b.Body["rider"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1.0, rider["current_latitude"])
	assert.Equal(t, 2.0, rider["current_longitude"])
	assert.NotContains(t, b.Body, "organization", "owner contact details stay out of the public channel")
}

func TestRenderer_DeliveryEmailUsesStatusLine(t *testing.T) {
	r := newTestRenderer(t)
	rule := DefaultRoutingTable()[types.EventDeliveryStatusChanged]

	tests := []struct {
		status   string
		wantLine string
	}{
		{"In Transit", "The blood units are on their way to your facility."},
		{"Delivered", "The blood units have arrived. Please confirm receipt."},
		{"Cancelled", "The delivery has been cancelled. Contact the blood bank for details."},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			event := eventFor(types.EventDeliveryStatusChanged, deliveryEntity(tt.status))
			p, err := r.Render(event, types.ChannelTarget{Transport: types.TransportMail, Address: owner.Email, Recipient: owner}, rule)
			require.NoError(t, err)

			e := p.(*types.EmailPayload)
			assert.Equal(t, "owner@stmarys.org", e.To)
			assert.Equal(t, "Ada Owner", e.ToName)
			assert.Equal(t, "Delivery TRK-42 is now "+tt.status, e.Subject)
			assert.Equal(t, "Hello Ada Owner,", e.Greeting)
			require.Len(t, e.Lines, 2)
			assert.Equal(t, tt.wantLine, e.Lines[1])
			require.NotNil(t, e.Action)
			assert.Equal(t, "https://app.bloodlink.test/deliveries/42", e.Action.URL)
		})
	}
}

func TestRenderer_UnknownStatusWithoutFallbackAddsNoLine(t *testing.T) {
	r := newTestRenderer(t)
	rule := DefaultRoutingTable()[types.EventDeliveryStatusChanged]
	event := eventFor(types.EventDeliveryStatusChanged, deliveryEntity("Held At Depot"))

	p, err := r.Render(event, types.ChannelTarget{Transport: types.TransportMail, Address: owner.Email, Recipient: owner}, rule)
	require.NoError(t, err)
	assert.Len(t, p.(*types.EmailPayload).Lines, 1)
}

func TestRenderer_ComplianceFallbackAndNotes(t *testing.T) {
	r := newTestRenderer(t)
	rule := DefaultRoutingTable()[types.EventComplianceDecided]
	target := types.ChannelTarget{Transport: types.TransportMail, Address: owner.Email, Recipient: owner}

	p, err := r.Render(eventFor(types.EventComplianceDecided, complianceEntity("rejected")), target, rule)
	require.NoError(t, err)
	e := p.(*types.EmailPayload)
	assert.Equal(t, "Compliance review rejected for St Mary's Blood Bank", e.Subject)
	assert.Equal(t, "Your organization was not approved. Reviewer notes: Cold-chain logs incomplete.", e.Lines[1])

	p, err = r.Render(eventFor(types.EventComplianceDecided, complianceEntity("escalated")), target, rule)
	require.NoError(t, err)
	assert.Equal(t, "The review status is now escalated.", p.(*types.EmailPayload).Lines[1])
}

func TestRenderer_RecipientWithoutNameIsGreetedGenerically(t *testing.T) {
	r := newTestRenderer(t)
	rule := DefaultRoutingTable()[types.EventMessageSent]
	target := types.ChannelTarget{Transport: types.TransportMail, Address: "nurse@cityhospital.org", Recipient: types.Recipient{UserID: "11"}}

	p, err := r.Render(eventFor(types.EventMessageSent, messageEntity()), target, rule)
	require.NoError(t, err)
	e := p.(*types.EmailPayload)
	assert.Equal(t, "Hello there,", e.Greeting)
	assert.Equal(t, "New message from Dr. Sender", e.Subject)
}

func TestRenderer_AppointmentDate(t *testing.T) {
	r := newTestRenderer(t)
	rule := DefaultRoutingTable()[types.EventAppointmentScheduled]
	donor := types.NewRecord(types.EntityUser, map[string]any{"id": int64(30), "email": "donor@example.com", "name": "Dan Donor"})
	appt := types.NewRecord(types.EntityAppointment, map[string]any{
		"id": int64(8), "donor_id": int64(30), "location": "Central Donation Centre",
		"scheduled_at": time.Date(2026, 4, 6, 14, 0, 0, 0, time.UTC), "status": "scheduled",
	}).Attach("donor", donor)
	target := types.ChannelTarget{Transport: types.TransportMail, Address: "donor@example.com", Recipient: types.Recipient{UserID: "30", Name: "Dan Donor"}}

	p, err := r.Render(eventFor(types.EventAppointmentScheduled, appt), target, rule)
	require.NoError(t, err)
	e := p.(*types.EmailPayload)
	assert.Equal(t, "Your blood donation appointment is scheduled for Monday, April 6, 2026 at 14:00 UTC.", e.Lines[0])
	assert.Equal(t, "Location: Central Donation Centre", e.Lines[1])
}

func TestRenderer_MissingFieldIsRenderError(t *testing.T) {
	r := newTestRenderer(t)
	rule := DefaultRoutingTable()[types.EventMessageSent]
	// The sender relation is absent, but the subject needs the sender's name.
	msg := messageEntity().Attach("sender", nil)
	target := types.ChannelTarget{Transport: types.TransportMail, Address: "nurse@cityhospital.org", Recipient: types.Recipient{UserID: "11"}}

	_, err := r.Render(eventFor(types.EventMessageSent, msg), target, rule)

	var renderErr *RenderError
	require.True(t, errors.As(err, &renderErr), "got %v", err)
	assert.Equal(t, types.TransportMail, renderErr.Transport)
	assert.Equal(t, types.EventMessageSent, renderErr.Kind)
}

func TestRenderer_BroadcastChannelNeedsValue(t *testing.T) {
	r := newTestRenderer(t)
	rule := DefaultRoutingTable()[types.EventMessageSent]
	event := types.NewDomainEvent("evt-2", types.EventMessageSent, "9", fixedNow,
		BuildSnapshot(types.NewRecord(types.EntityMessage, map[string]any{"id": int64(9)}), rule.Fields))

	_, err := r.Render(event, types.ChannelTarget{Transport: types.TransportBroadcast, Address: "user.{recipient_id}"}, rule)

	var renderErr *RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, types.TransportBroadcast, renderErr.Transport)
}

func TestRenderer_RecordPayload(t *testing.T) {
	r := newTestRenderer(t)
	rule := DefaultRoutingTable()[types.EventDeliveryStatusChanged]
	event := eventFor(types.EventDeliveryStatusChanged, deliveryEntity("Delivered"))

	p, err := r.Render(event, types.ChannelTarget{Transport: types.TransportDatabase, Address: "17", Recipient: owner}, rule)
	require.NoError(t, err)

	rec := p.(*types.RecordPayload)
	assert.Equal(t, "17", rec.UserID)
	assert.Equal(t, "delivery_status", rec.Kind)
	assert.Equal(t, map[string]any{
		"id":            int64(42),
		"tracking_code": "TRK-42",
		"status":        "Delivered",
		"updated_at":    "2026-03-01T09:30:00Z",
	}, rec.Data)
}

func TestRenderer_IsPure(t *testing.T) {
	r := newTestRenderer(t)
	rule := DefaultRoutingTable()[types.EventDeliveryStatusChanged]
	event := eventFor(types.EventDeliveryStatusChanged, deliveryEntity("Pending"))
	target := types.ChannelTarget{Transport: types.TransportMail, Address: owner.Email, Recipient: owner}

	a, err := r.Render(event, target, rule)
	require.NoError(t, err)
	b, err := r.Render(event, target, rule)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewRenderer_BadTemplateIsConfigurationError(t *testing.T) {
	table := DefaultRoutingTable()
	rule := table[types.EventMessageSent]
	tmpl := *rule.Email
	tmpl.Subject = "New message from {{.sender.name"
	rule.Email = &tmpl
	table[types.EventMessageSent] = rule

	_, err := NewRenderer(table, "")

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, types.EventMessageSent, cfgErr.Kind)
	assert.Equal(t, types.TransportMail, cfgErr.Transport)
}
