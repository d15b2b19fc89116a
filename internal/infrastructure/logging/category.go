package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	IO              Category = "IO"
	Internal        Category = "Internal"
	Redis           Category = "Redis"
	RabbitMQ        Category = "RabbitMQ"
	Nats            Category = "Nats"
	Postgres        Category = "Postgres"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
	Prometheus      Category = "Prometheus"
	Gateway         Category = "Gateway"
	EventBus        Category = "EventBus"
	Relay           Category = "Relay"
	Presence        Category = "Presence"
	Auth            Category = "Auth"
	Identifier      Category = "Identifier"
	Messaging       Category = "Messaging"
	Membership      Category = "Membership"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Gateway
	Handshake  SubCategory = "Handshake"
	Connection SubCategory = "Connection"
	Delivery   SubCategory = "Delivery"
	Frame      SubCategory = "Frame"

	// EventBus / Relay
	Publish      SubCategory = "Publish"
	Subscription SubCategory = "Subscription"
	Heartbeat    SubCategory = "Heartbeat"
	Migration    SubCategory = "Migration"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	HostIp       ExtraKey = "HostIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	RequestBody  ExtraKey = "RequestBody"
	ResponseBody ExtraKey = "ResponseBody"
	ErrorMessage ExtraKey = "ErrorMessage"
	ConnectionID ExtraKey = "ConnectionID"
	UserID       ExtraKey = "UserID"
	Room         ExtraKey = "Room"
	Event        ExtraKey = "Event"
	Subscriber   ExtraKey = "Subscriber"
	NodeID       ExtraKey = "NodeID"
	Driver       ExtraKey = "Driver"
	SpaceID      ExtraKey = "SpaceID"
	ChannelID    ExtraKey = "ChannelID"
	MessageID    ExtraKey = "MessageID"
)
