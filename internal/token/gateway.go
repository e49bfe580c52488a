package token

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sitefoundry.io/foreman/internal/pkg/logger"
)

// Gateway coordinates the validator and the repository. It is the only path
// the delivery pipeline uses to turn user ids into sendable device tokens.
type Gateway struct {
	repo      Repository
	validator *Validator
}

// NewGateway creates a token store gateway.
func NewGateway(repo Repository, validator *Validator) *Gateway {
	return &Gateway{repo: repo, validator: validator}
}

// ActiveTokensForUsers fetches all token records for the given user ids and
// partitions them into valid active tokens, invalid tokens, and users with no
// records at all.
//
// Never propagates a store failure: on any backing-store error the result is
// all-empty so callers degrade to "zero delivered" instead of erroring out.
func (g *Gateway) ActiveTokensForUsers(ctx context.Context, userIDs []string) BatchResult {
	result := BatchResult{Stats: BatchStats{Requested: len(userIDs)}}
	if len(userIDs) == 0 {
		return result
	}

	records, err := g.repo.FindByUserIDs(ctx, userIDs)
	if err != nil {
		logger.Error("token lookup failed, degrading to empty result",
			zap.Int("user_count", len(userIDs)),
			zap.Error(err),
		)
		result.MissingUsers = append(result.MissingUsers, userIDs...)
		result.Stats.Missing = len(userIDs)
		return result
	}

	seen := make(map[string]bool, len(userIDs))
	for _, rec := range records {
		seen[rec.UserID] = true

		if !rec.IsActive {
			continue
		}
		if res := g.validator.Validate(rec.Token); !res.Valid {
			result.InvalidTokens = append(result.InvalidTokens, rec)
			continue
		}
		result.Tokens = append(result.Tokens, rec)
	}

	for _, id := range userIDs {
		if !seen[id] {
			result.MissingUsers = append(result.MissingUsers, id)
		}
	}

	result.Stats.Found = len(records)
	result.Stats.Valid = len(result.Tokens)
	result.Stats.Invalid = len(result.InvalidTokens)
	result.Stats.Missing = len(result.MissingUsers)
	return result
}

// MarkInvalid deactivates a token and appends a timestamped reason to its
// audit trail. Best-effort cleanup: failures are logged, never returned.
func (g *Gateway) MarkInvalid(ctx context.Context, tokenValue, reason string) {
	if err := g.repo.DeactivateByToken(ctx, tokenValue, reason); err != nil {
		logger.Warn("mark token invalid failed",
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

// Register validates and upserts a device token, then deactivates prior
// active tokens for the same (userId, deviceId) pair.
func (g *Gateway) Register(ctx context.Context, reg Registration) (PushToken, error) {
	res := g.validator.Validate(reg.Token)
	if !res.Valid {
		return PushToken{}, fmt.Errorf("token rejected: %v", res.Errors)
	}

	now := time.Now().UTC()
	rec := PushToken{
		UserID:     reg.UserID,
		UserType:   reg.UserType,
		Token:      reg.Token,
		Platform:   reg.Platform,
		DeviceID:   reg.DeviceID,
		DeviceName: reg.DeviceName,
		AppVersion: reg.AppVersion,
		IsActive:   true,
		LastUsed:   now,
		CreatedAt:  now,
	}
	rec.HealthScore = g.validator.HealthScore(rec, now)

	if err := g.repo.Upsert(ctx, rec); err != nil {
		return PushToken{}, fmt.Errorf("register token: %w", err)
	}

	if err := g.repo.DeactivateDevice(ctx, reg.UserID, reg.DeviceID, reg.Token); err != nil {
		// The new token is already stored; a stale sibling only costs one
		// wasted send before the provider reports it.
		logger.Warn("deactivate prior device tokens failed",
			zap.String("user_id", reg.UserID),
			zap.String("device_id", reg.DeviceID),
			zap.Error(err),
		)
	}

	logger.Info("push token registered",
		zap.String("user_id", reg.UserID),
		zap.String("platform", string(reg.Platform)),
		zap.String("format", string(res.Format)),
		zap.Int("health_score", rec.HealthScore),
	)
	return rec, nil
}

// ListForUser returns a user's token records for the listing endpoint; the
// token value itself is withheld by the PushToken JSON shape.
func (g *Gateway) ListForUser(ctx context.Context, userID string) ([]PushToken, error) {
	records, err := g.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tokens for user %s: %w", userID, err)
	}
	return records, nil
}

// Deactivate disables all tokens matched by the filter.
func (g *Gateway) Deactivate(ctx context.Context, filter DeactivateFilter, reason string) (int64, error) {
	return g.repo.DeactivateMatching(ctx, filter, reason)
}

// TouchLastUsed stamps lastUsed for tokens confirmed sent. Best-effort.
func (g *Gateway) TouchLastUsed(ctx context.Context, tokens []string) {
	if err := g.repo.UpdateLastUsed(ctx, tokens, time.Now().UTC()); err != nil {
		logger.Warn("update lastUsed failed",
			zap.Int("token_count", len(tokens)),
			zap.Error(err),
		)
	}
}
