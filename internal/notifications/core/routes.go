package core

import "bloodlink/internal/types"

var ownerSpec = types.FieldSpec{Fields: []string{"id", "email", "name"}}

// DefaultRoutingTable returns the routing table for every event kind the
// platform emits.
func DefaultRoutingTable() RoutingTable {
	return RoutingTable{
		types.EventDeliveryStatusChanged: {
			Kind:   types.EventDeliveryStatusChanged,
			Entity: types.EntityDelivery,
			Fields: types.FieldSpec{
				Fields: []string{"id", "tracking_code", "status", "organization_id", "estimated_arrival", "updated_at"},
				Relations: map[string]types.FieldSpec{
					"rider": {Fields: []string{"id", "name", "current_latitude", "current_longitude"}},
					"organization": {
						Fields:    []string{"id", "name"},
						Relations: map[string]types.FieldSpec{"owner": ownerSpec},
					},
				},
			},
			Category: types.CategoryDeliveries,
			Recipients: []RecipientPath{{
				UserID: "organization.owner.id",
				Email:  "organization.owner.email",
				Name:   "organization.owner.name",
			}},
			Transports: []types.TransportKind{types.TransportBroadcast, types.TransportMail, types.TransportDatabase},
			Broadcast: &BroadcastSpec{
				Channel: "delivery.{id}",
				Event:   "DeliveryStatusUpdated",
				Fields:  []string{"id", "status", "tracking_code", "estimated_arrival", "updated_at", "rider"},
			},
			Email: &EmailTemplate{
				Subject:     "Delivery {{.tracking_code}} is now {{.status}}",
				Greeting:    "Hello {{.to.name}},",
				Lines:       []string{"The delivery with tracking code {{.tracking_code}} has a new status: {{.status}}."},
				StatusField: "status",
				StatusLines: map[string]string{
					"Pending":    "The delivery is waiting to be picked up by a rider.",
					"Picked Up":  "A rider has collected the blood units and is preparing to depart.",
					"In Transit": "The blood units are on their way to your facility.",
					"Delivered":  "The blood units have arrived. Please confirm receipt.",
					"Cancelled":  "The delivery has been cancelled. Contact the blood bank for details.",
				},
				Action: &ActionTemplate{Label: "Track delivery", Path: "/deliveries/{{.id}}"},
			},
			Record: &RecordSpec{
				Kind:   "delivery_status",
				Fields: []string{"id", "tracking_code", "status", "updated_at"},
			},
		},

		types.EventMessageSent: {
			Kind:   types.EventMessageSent,
			Entity: types.EntityMessage,
			Fields: types.FieldSpec{
				Fields: []string{"id", "body", "sender_id", "recipient_id", "created_at"},
				Relations: map[string]types.FieldSpec{
					"sender":    {Fields: []string{"id", "name"}},
					"recipient": ownerSpec,
				},
			},
			Category: types.CategoryMessages,
			Recipients: []RecipientPath{{
				UserID: "recipient.id",
				Email:  "recipient.email",
				Name:   "recipient.name",
			}},
			Transports: []types.TransportKind{types.TransportBroadcast, types.TransportMail, types.TransportDatabase},
			Broadcast: &BroadcastSpec{
				Channel: "user.{recipient_id}",
				Event:   "NewMessage",
				Fields:  []string{"id", "body", "sender_id", "recipient_id", "created_at", "sender"},
			},
			Email: &EmailTemplate{
				Subject:  "New message from {{.sender.name}}",
				Greeting: "Hello {{.to.name}},",
				Lines: []string{
					"You have received a new message from {{.sender.name}}.",
					"\"{{.body}}\"",
				},
				Action: &ActionTemplate{Label: "Reply", Path: "/messages/{{.id}}"},
			},
			Record: &RecordSpec{
				Kind:   "new_message",
				Fields: []string{"id", "sender_id", "body", "created_at"},
			},
		},

		types.EventComplianceDecided: {
			Kind:   types.EventComplianceDecided,
			Entity: types.EntityComplianceReview,
			Fields: types.FieldSpec{
				Fields: []string{"id", "organization_id", "status", "notes", "decided_at"},
				Relations: map[string]types.FieldSpec{
					"organization": {
						Fields:    []string{"id", "name"},
						Relations: map[string]types.FieldSpec{"owner": ownerSpec},
					},
				},
			},
			Category:  types.CategoryCompliance,
			Mandatory: true,
			Recipients: []RecipientPath{{
				UserID: "organization.owner.id",
				Email:  "organization.owner.email",
				Name:   "organization.owner.name",
			}},
			Transports: []types.TransportKind{types.TransportBroadcast, types.TransportMail, types.TransportDatabase},
			Broadcast: &BroadcastSpec{
				Channel: "organization.{organization_id}",
				Event:   "ComplianceDecision",
				Fields:  []string{"id", "organization_id", "status", "notes", "decided_at"},
			},
			Email: &EmailTemplate{
				Subject:     "Compliance review {{.status}} for {{.organization.name}}",
				Greeting:    "Hello {{.to.name}},",
				Lines:       []string{"The compliance review for {{.organization.name}} has been decided."},
				StatusField: "status",
				StatusLines: map[string]string{
					"approved": "Your organization is approved and can now request and supply blood units.",
					"rejected": "Your organization was not approved. Reviewer notes: {{.notes}}",
				},
				StatusFallback: "The review status is now {{.status}}.",
				Action:         &ActionTemplate{Label: "View review", Path: "/organizations/{{.organization_id}}/compliance"},
			},
			Record: &RecordSpec{
				Kind:   "compliance_decision",
				Fields: []string{"id", "organization_id", "status", "notes", "decided_at"},
			},
		},

		types.EventAppointmentScheduled: {
			Kind:   types.EventAppointmentScheduled,
			Entity: types.EntityAppointment,
			Fields: types.FieldSpec{
				Fields: []string{"id", "donor_id", "scheduled_at", "location", "status"},
				Relations: map[string]types.FieldSpec{
					"donor": ownerSpec,
				},
			},
			Category: types.CategoryAppointments,
			Recipients: []RecipientPath{{
				UserID: "donor.id",
				Email:  "donor.email",
				Name:   "donor.name",
			}},
			Transports: []types.TransportKind{types.TransportMail, types.TransportDatabase},
			Email: &EmailTemplate{
				Subject:  "Your donation appointment is confirmed",
				Greeting: "Hello {{.to.name}},",
				Lines: []string{
					"Your blood donation appointment is scheduled for {{date .scheduled_at}}.",
					"Location: {{.location}}",
					"Please eat a meal and drink plenty of water before you arrive.",
				},
				Action: &ActionTemplate{Label: "Manage appointment", Path: "/appointments/{{.id}}"},
			},
			Record: &RecordSpec{
				Kind:   "appointment_scheduled",
				Fields: []string{"id", "scheduled_at", "location"},
			},
		},
	}
}
