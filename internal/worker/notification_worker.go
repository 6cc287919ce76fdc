package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartEventForwarder relays committed events to the broker when one is
// configured.
func StartEventForwarder(dispatcher events.Dispatcher, publisher events.Publisher, logger *zap.Logger) {
	if dispatcher == nil || publisher == nil {
		return
	}
	events.Forward(dispatcher, publisher, logger)
}
