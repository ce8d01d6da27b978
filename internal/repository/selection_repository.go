package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/courseloop/registration-api/internal/models"
)

// SelectionRepository holds the transient course selection made between the
// selection and confirmation steps. Selections are keyed per user, expire
// after the configured TTL and are cleared on successful confirmation or
// explicit restart. Nothing here is persisted in the relational store.
type SelectionRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSelectionRepository constructs a selection repository.
func NewSelectionRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SelectionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectionRepository{client: client, ttl: ttl, logger: logger}
}

func selectionKey(userID string) string {
	return "enroll:selection:" + userID
}

// Get returns the pending selection for the user, or nil when none exists.
func (r *SelectionRepository) Get(ctx context.Context, userID string) (*models.CourseSelection, error) {
	raw, err := r.client.Get(ctx, selectionKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get selection for %s: %w", userID, err)
	}

	var selection models.CourseSelection
	if err := json.Unmarshal(raw, &selection); err != nil {
		// Drop unreadable payloads rather than wedging the workflow.
		r.logger.Warn("discarding corrupt course selection", zap.String("user_id", userID), zap.Error(err))
		_ = r.client.Del(ctx, selectionKey(userID)).Err()
		return nil, nil
	}
	return &selection, nil
}

// Set stores the pending selection for the user with the configured TTL.
func (r *SelectionRepository) Set(ctx context.Context, userID string, selection models.CourseSelection) error {
	payload, err := json.Marshal(selection)
	if err != nil {
		return fmt.Errorf("marshal selection for %s: %w", userID, err)
	}
	if err := r.client.Set(ctx, selectionKey(userID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("set selection for %s: %w", userID, err)
	}
	return nil
}

// Clear removes the pending selection for the user.
func (r *SelectionRepository) Clear(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, selectionKey(userID)).Err(); err != nil {
		return fmt.Errorf("clear selection for %s: %w", userID, err)
	}
	return nil
}
