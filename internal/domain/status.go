package domain

// DeliveryBadge is the UI-facing delivery marker for an outbound message.
type DeliveryBadge string

const (
	BadgeNone     DeliveryBadge = "none"
	BadgePending  DeliveryBadge = "pending"
	BadgeWarn     DeliveryBadge = "warn"
	BadgeSent     DeliveryBadge = "sent"
	BadgeSentGot  DeliveryBadge = "sent_got"
	BadgeSentRead DeliveryBadge = "sent_read"
)

// DeriveDeliveryBadge computes the delivery marker for a message. Only
// the sender's own messages carry a badge.
func DeriveDeliveryBadge(isMine bool, status MessageStatus, readCount, recvCount int) DeliveryBadge {
	if !isMine {
		return BadgeNone
	}
	if status <= StatusSending {
		return BadgePending
	}
	if status == StatusFailed {
		return BadgeWarn
	}
	if readCount > 0 {
		return BadgeSentRead
	}
	if recvCount > 0 {
		return BadgeSentGot
	}

	return BadgeSent
}

// ShouldTransitionMessageStatus guards status updates: delivery progress
// only moves forward, except that a failed message may be re-queued.
func ShouldTransitionMessageStatus(current, next MessageStatus) bool {
	if current == next {
		return false
	}
	if current == StatusFailed {
		return next == StatusQueued || next == StatusSending
	}
	if current == StatusSent {
		return false
	}

	return next > current
}
