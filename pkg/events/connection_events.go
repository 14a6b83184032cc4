package events

// Connection lifecycle event codes. NATS subjects are "events.<code>".
const (
	ConnectionCreated   = "CONNECTION_CREATED"
	ConnectionAccepted  = "CONNECTION_ACCEPTED"
	ConnectionDeclined  = "CONNECTION_DECLINED"
	ConnectionWithdrawn = "CONNECTION_WITHDRAWN"
	ConnectionEnded     = "CONNECTION_ENDED"
	ConnectionExpired   = "CONNECTION_EXPIRED"
	ConnectionMessage   = "CONNECTION_MESSAGE"
	NextStepRequested   = "NEXT_STEP_REQUESTED"
	NextStepCancelled   = "NEXT_STEP_CANCELLED"
)

// ConnectionEventTypes lists every code, in lifecycle order.
var ConnectionEventTypes = []string{
	ConnectionCreated,
	ConnectionAccepted,
	ConnectionDeclined,
	ConnectionWithdrawn,
	ConnectionEnded,
	ConnectionExpired,
	ConnectionMessage,
	NextStepRequested,
	NextStepCancelled,
}
