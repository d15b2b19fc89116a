package ws

// Server frame types.
const (
	EventFrame          = "event"
	AckFrame            = "ack"
	ErrorFrame          = "error"
	ReadyFrame          = "ready"
	AuthenticationError = "error.auth"
)

// Client frame types.
const (
	AuthenticateFrame = "authenticate"
	JoinFrame         = "join"
	LeaveFrame        = "leave"
	HeartbeatFrame    = "heartbeat"
	ActionFrame       = "action"
)

// Actions carried by an action frame.
const (
	SendMessageAction = "send_message"
	SetPresenceAction = "set_presence"
	TypingAction      = "typing"
)

// Error codes in ErrorPayload.Code.
const (
	CodeMalformedFrame    = "malformed_frame"
	CodeInvalidRoom       = "invalid_room"
	CodeNotAMember        = "not_a_member"
	CodeMissingPermission = "missing_permission"
	CodeForbidden         = "forbidden"
	CodeRateLimited       = "rate_limited"
	CodeUnknownAction     = "unknown_action"
	CodeInternal          = "internal"
	CodeAuthFailed        = "auth_failed"
)

// Close codes in the private 4000-4999 range.
const (
	CloseAuthFailed   = 4001
	CloseSlowConsumer = 4008
)
