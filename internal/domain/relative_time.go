package domain

import (
	"fmt"
	"time"
)

// RelativeTimeString renders a last-seen timestamp the way the contact
// list shows it: "Never" for unknown, "Just now" within a minute, then a
// coarse relative span.
func RelativeTimeString(then, now time.Time) string {
	if then.IsZero() || then.Unix() == 0 {
		return "Never"
	}

	span := now.Sub(then)
	switch {
	case span < time.Minute:
		return "Just now"
	case span < time.Hour:
		return fmt.Sprintf("%d min. ago", int(span.Minutes()))
	case span < 24*time.Hour:
		return fmt.Sprintf("%d hr. ago", int(span.Hours()))
	case span < 48*time.Hour:
		return "Yesterday"
	case span < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(span.Hours()/24))
	default:
		return then.Format("Jan 2, 2006")
	}
}
