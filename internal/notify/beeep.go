package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// BeeepSender delivers notifications through the desktop's native
// notification facility.
type BeeepSender struct {
	logger  *slog.Logger
	appName string
}

func NewBeeepSender(logger *slog.Logger, appName string) *BeeepSender {
	beeep.AppName = appName

	return &BeeepSender{
		logger:  logger,
		appName: appName,
	}
}

func (s *BeeepSender) Send(payload Payload) {
	if err := beeep.Notify(payload.Title, payload.Content, ""); err != nil {
		s.logger.Warn("desktop notification failed", "error", err)
	}
}
