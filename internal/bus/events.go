package bus

// Event names emitted toward the UI layer.
const (
	EventConnectionChange   = "connection.change"
	EventConversationChange = "conversation.change"
	EventUserDataChange     = "userdata.change"
	EventSubscriptionError  = "subscription.error"
	EventMessageChange      = "message.change"
	EventTypingStatus       = "typing.status"
	EventSelectedUserChange = "selecteduser.change"
)

// Internal event names consumed by engine components.
const (
	EventIncomingMessage = "incoming.message"
)
