package bridge

import (
	"context"
	"time"

	"ispledger/internal/core"
	"ispledger/internal/log"
)

const notifyTimeout = 2 * time.Second

// SaveNotifier returns a store save hook that tells the host a new state was
// saved. Send failures are logged and never fail the save.
func SaveNotifier(t Transport, logger *log.Logger) func(ctx context.Context, op string, state core.GlobalState) {
	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentBridge)
	}
	return func(ctx context.Context, op string, _ core.GlobalState) {
		msg, err := NewAction(ActionSaveDB, SaveDB{
			Status:    "success",
			Message:   op,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			logger.Failure(ctx, "Failed to build save notification", err, log.FieldOperation, op)
			return
		}
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := t.Send(sendCtx, msg); err != nil {
			logger.WarnContext(ctx, "Failed to notify host of save", log.FieldOperation, op, log.FieldError, err)
		}
	}
}
