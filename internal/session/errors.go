package session

import "errors"

var (
	// ErrIncompatibleTopic is returned when the named topic cannot carry
	// a conversation.
	ErrIncompatibleTopic = errors.New("topic kind is not conversation-capable")
	// ErrEmptyTopicName is returned for a blank topic selection.
	ErrEmptyTopicName = errors.New("topic name is empty")
	// ErrQueueShutdown is returned by enqueue calls after ShutdownNow.
	ErrQueueShutdown = errors.New("sync queue is shut down")
)
