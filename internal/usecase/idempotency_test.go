package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/jonit-dev/pixelperfect-sub009/internal/domain/model"
	"github.com/jonit-dev/pixelperfect-sub009/internal/usecase"
)

func TestIdempotencyService_ClaimEvent(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()
	payload := json.RawMessage(`{"id":"evt_1"}`)

	t.Run("first delivery wins the claim", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		mockRepo.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", payload, (*time.Time)(nil)).
			Return(true, nil, nil)

		result, err := service.ClaimEvent(ctx, "evt_1", "invoice.paid", payload, nil)

		assert.NoError(t, err)
		assert.True(t, result.IsNew)
		assert.Equal(t, model.WebhookStatusProcessing, result.Status)
		mockRepo.AssertExpectations(t)
	})

	t.Run("duplicate delivery returns the stored status", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		existing := &model.WebhookEvent{
			StripeEventID: "evt_1",
			Status:        model.WebhookStatusCompleted,
		}
		mockRepo.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", payload, (*time.Time)(nil)).
			Return(false, existing, nil)

		result, err := service.ClaimEvent(ctx, "evt_1", "invoice.paid", payload, nil)

		assert.NoError(t, err)
		assert.False(t, result.IsNew)
		assert.Equal(t, model.WebhookStatusCompleted, result.Status)
		mockRepo.AssertExpectations(t)
	})

	t.Run("concurrent delivery sees the processing claim", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		existing := &model.WebhookEvent{
			StripeEventID: "evt_1",
			Status:        model.WebhookStatusProcessing,
		}
		mockRepo.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", payload, (*time.Time)(nil)).
			Return(false, existing, nil)
		// A fresh processing row belongs to a live worker: the takeover
		// must not match it.
		mockRepo.On("ReclaimEvent", ctx, "evt_1", mock.AnythingOfType("time.Time")).
			Return(false, nil)

		result, err := service.ClaimEvent(ctx, "evt_1", "invoice.paid", payload, nil)

		assert.NoError(t, err)
		assert.False(t, result.IsNew)
		assert.Equal(t, model.WebhookStatusProcessing, result.Status)
		mockRepo.AssertExpectations(t)
	})

	t.Run("redelivery reclaims a stale processing row", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		// A worker crashed after winning the claim; the row sat in
		// processing long past the staleness window. The redelivery must
		// take the event over, not ack it as a duplicate.
		existing := &model.WebhookEvent{
			StripeEventID: "evt_1",
			Status:        model.WebhookStatusProcessing,
		}
		mockRepo.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", payload, (*time.Time)(nil)).
			Return(false, existing, nil)
		mockRepo.On("ReclaimEvent", ctx, "evt_1", mock.MatchedBy(func(staleBefore time.Time) bool {
			return staleBefore.Before(time.Now())
		})).Return(true, nil)

		result, err := service.ClaimEvent(ctx, "evt_1", "invoice.paid", payload, nil)

		assert.NoError(t, err)
		assert.True(t, result.IsNew)
		assert.Equal(t, model.WebhookStatusProcessing, result.Status)
		mockRepo.AssertExpectations(t)
	})

	t.Run("redelivery reclaims a failed row", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		existing := &model.WebhookEvent{
			StripeEventID: "evt_1",
			Status:        model.WebhookStatusFailed,
		}
		mockRepo.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", payload, (*time.Time)(nil)).
			Return(false, existing, nil)
		mockRepo.On("ReclaimEvent", ctx, "evt_1", mock.AnythingOfType("time.Time")).
			Return(true, nil)

		result, err := service.ClaimEvent(ctx, "evt_1", "invoice.paid", payload, nil)

		assert.NoError(t, err)
		assert.True(t, result.IsNew)
		mockRepo.AssertExpectations(t)
	})

	t.Run("unrecoverable row is never reclaimed", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		existing := &model.WebhookEvent{
			StripeEventID: "evt_1",
			Status:        model.WebhookStatusUnrecoverable,
		}
		mockRepo.On("InsertIfAbsent", ctx, "evt_1", "product.created", payload, (*time.Time)(nil)).
			Return(false, existing, nil)

		result, err := service.ClaimEvent(ctx, "evt_1", "product.created", payload, nil)

		assert.NoError(t, err)
		assert.False(t, result.IsNew)
		assert.Equal(t, model.WebhookStatusUnrecoverable, result.Status)
		mockRepo.AssertNotCalled(t, "ReclaimEvent", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reclaim store error propagates", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		existing := &model.WebhookEvent{
			StripeEventID: "evt_1",
			Status:        model.WebhookStatusFailed,
		}
		mockRepo.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", payload, (*time.Time)(nil)).
			Return(false, existing, nil)
		mockRepo.On("ReclaimEvent", ctx, "evt_1", mock.AnythingOfType("time.Time")).
			Return(false, errors.New("connection refused"))

		_, err := service.ClaimEvent(ctx, "evt_1", "invoice.paid", payload, nil)

		assert.Error(t, err)
	})

	t.Run("store error propagates", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		mockRepo.On("InsertIfAbsent", ctx, "evt_1", "invoice.paid", payload, (*time.Time)(nil)).
			Return(false, nil, errors.New("connection refused"))

		_, err := service.ClaimEvent(ctx, "evt_1", "invoice.paid", payload, nil)

		assert.Error(t, err)
	})
}

func TestIdempotencyService_MarkCompleted(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("marks the event completed", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		mockRepo.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil)

		assert.NoError(t, service.MarkCompleted(ctx, "evt_1"))
		mockRepo.AssertExpectations(t)
	})

	t.Run("retries transient store errors", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		mockRepo.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
			Return(errors.New("deadlock detected")).Once()
		mockRepo.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
			Return(nil).Once()

		assert.NoError(t, service.MarkCompleted(ctx, "evt_1"))
		mockRepo.AssertExpectations(t)
	})

	t.Run("fails loudly after exhausting retries", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		mockRepo.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusCompleted, (*string)(nil)).
			Return(errors.New("connection refused")).Times(3)

		err := service.MarkCompleted(ctx, "evt_1")

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "evt_1")
		mockRepo.AssertExpectations(t)
	})
}

func TestIdempotencyService_MarkFailed(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	t.Run("stores the cause message", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		mockRepo.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusFailed,
			mock.MatchedBy(func(msg *string) bool {
				return msg != nil && *msg == "handler exploded"
			})).Return(nil)

		service.MarkFailed(ctx, "evt_1", errors.New("handler exploded"))
		mockRepo.AssertExpectations(t)
	})

	t.Run("swallows a status write failure", func(t *testing.T) {
		mockRepo := new(MockWebhookEventRepository)
		service := usecase.NewIdempotencyService(mockRepo, logger)

		mockRepo.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusFailed, mock.Anything).
			Return(errors.New("connection refused"))

		// Best-effort: no panic, no return value.
		service.MarkFailed(ctx, "evt_1", errors.New("handler exploded"))
	})
}

func TestIdempotencyService_MarkUnrecoverable(t *testing.T) {
	logger := zap.NewNop()
	ctx := context.Background()

	mockRepo := new(MockWebhookEventRepository)
	service := usecase.NewIdempotencyService(mockRepo, logger)

	mockRepo.On("UpdateStatus", ctx, "evt_1", model.WebhookStatusUnrecoverable,
		mock.MatchedBy(func(msg *string) bool {
			return msg != nil && *msg == "unhandled event type: product.created"
		})).Return(nil)

	service.MarkUnrecoverable(ctx, "evt_1", "product.created")
	mockRepo.AssertExpectations(t)
}
