package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonit-dev/pixelperfect-sub009/pkg/messaging"
)

// CreditsChangedChannel carries notifications that a user's credit balance
// changed, so the frontend can refresh without polling.
const CreditsChangedChannel = "credits.changed"

// CreditsChangedEvent is the payload published on CreditsChangedChannel.
type CreditsChangedEvent struct {
	UserID    string    `json:"user_id"`
	Total     string    `json:"total"`
	ChangedAt time.Time `json:"changed_at"`
}

// publishCreditsChanged notifies subscribers of a balance change.
// Best-effort: the balance mutation has already committed, so a publish
// failure is logged and swallowed.
func publishCreditsChanged(ctx context.Context, publisher messaging.RedisClient, logger *zap.Logger, userID uuid.UUID, total string) {
	if publisher == nil {
		return
	}

	event := CreditsChangedEvent{
		UserID:    userID.String(),
		Total:     total,
		ChangedAt: time.Now(),
	}

	if err := publisher.Publish(ctx, CreditsChangedChannel, event); err != nil {
		logger.Warn("Failed to publish credits changed event",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}
