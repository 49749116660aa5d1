package types

// EventKind identifies which domain occurrence triggered a dispatch.
type EventKind string

const (
	EventDeliveryStatusChanged EventKind = "delivery.status_changed"
	EventMessageSent           EventKind = "message.sent"
	EventComplianceDecided     EventKind = "compliance.decided"
	EventAppointmentScheduled  EventKind = "appointment.scheduled"
)

// KnownEventKinds lists every kind the service emits. The routing table must
// cover all of them.
var KnownEventKinds = []EventKind{
	EventDeliveryStatusChanged,
	EventMessageSent,
	EventComplianceDecided,
	EventAppointmentScheduled,
}

// EntityKind names a persisted domain entity the entity store can load.
type EntityKind string

const (
	EntityDelivery         EntityKind = "delivery"
	EntityRider            EntityKind = "rider"
	EntityOrganization     EntityKind = "organization"
	EntityUser             EntityKind = "user"
	EntityMessage          EntityKind = "message"
	EntityComplianceReview EntityKind = "compliance_review"
	EntityAppointment      EntityKind = "appointment"
)

// TransportKind is a delivery mechanism.
type TransportKind string

const (
	TransportMail      TransportKind = "mail"
	TransportDatabase  TransportKind = "database"
	TransportBroadcast TransportKind = "broadcast"
)

// DeliveryMode says whether a transport is sent inline or handed to a worker.
type DeliveryMode string

const (
	ModeImmediate DeliveryMode = "immediate"
	ModeDeferred  DeliveryMode = "deferred"
)

// Mode returns the delivery posture of the transport. Broadcast is sent
// inline; mail and persisted records go through the deferred queue.
func (t TransportKind) Mode() DeliveryMode {
	if t == TransportBroadcast {
		return ModeImmediate
	}
	return ModeDeferred
}

// ChannelKind is the key a recipient preference is stored under. It is
// either a notification category or a transport kind.
type ChannelKind string

const (
	CategoryMessages     ChannelKind = "messages"
	CategoryDeliveries   ChannelKind = "deliveries"
	CategoryCompliance   ChannelKind = "compliance"
	CategoryAppointments ChannelKind = "appointments"
)

// ChannelKindFor returns the preference key for a transport.
func ChannelKindFor(t TransportKind) ChannelKind {
	return ChannelKind(t)
}

// DeliveryStatus is the outcome of one target in one dispatch.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryQueued  DeliveryStatus = "queued"
	DeliverySkipped DeliveryStatus = "skipped"
	DeliveryFailed  DeliveryStatus = "failed"
)
