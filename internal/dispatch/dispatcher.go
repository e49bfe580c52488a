package dispatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sitefoundry.io/foreman/internal/composer"
	"sitefoundry.io/foreman/internal/pkg/logger"
	"sitefoundry.io/foreman/internal/token"
)

// TokenSource is the slice of the token store gateway the dispatcher needs.
type TokenSource interface {
	ActiveTokensForUsers(ctx context.Context, userIDs []string) token.BatchResult
	MarkInvalid(ctx context.Context, tokenValue, reason string)
	TouchLastUsed(ctx context.Context, tokens []string)
}

// Options carries per-send delivery knobs; zero values fall back to the
// dispatcher defaults.
type Options struct {
	Sound    string
	Priority string
	TTL      int
}

// Result is the outcome of one fan-out.
type Result struct {
	Success       bool     `json:"success"`
	MessagesSent  int      `json:"messagesSent"`
	InvalidTokens int      `json:"invalidTokens"`
	MissingUsers  int      `json:"missingUsers"`
	Errors        []string `json:"errors,omitempty"`
}

// Dispatcher fans a composed notification out to every valid device token of
// the target users, batching to the provider cap.
type Dispatcher struct {
	gateway    Gateway
	tokens     TokenSource
	batchSize  int
	batchDelay time.Duration
	defaults   Options
}

// Config tunes the dispatcher.
type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	Defaults   Options
}

// New creates a dispatcher. BatchSize is clamped to the provider cap of 100.
func New(gateway Gateway, tokens TokenSource, cfg Config) *Dispatcher {
	if cfg.BatchSize <= 0 || cfg.BatchSize > 100 {
		cfg.BatchSize = 100
	}
	return &Dispatcher{
		gateway:    gateway,
		tokens:     tokens,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
		defaults:   cfg.Defaults,
	}
}

// SendToUsers delivers the content to all active devices of the given users.
// Partial failure is not fatal: a failed batch records one error and the loop
// continues; per-message provider failures are appended individually with the
// offending token. Success means at least one message was accepted.
func (d *Dispatcher) SendToUsers(ctx context.Context, userIDs []string, content composer.Content, opts *Options) Result {
	result := Result{}

	batch := d.tokens.ActiveTokensForUsers(ctx, userIDs)
	result.InvalidTokens = len(batch.InvalidTokens)
	result.MissingUsers = len(batch.MissingUsers)

	if len(batch.Tokens) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"no active device tokens for %d requested users (%d invalid, %d missing)",
			len(userIDs), len(batch.InvalidTokens), len(batch.MissingUsers)))
		return result
	}

	messages := d.buildMessages(batch.Tokens, content, opts)

	var confirmed []string
	for start := 0; start < len(messages); start += d.batchSize {
		if start > 0 && d.batchDelay > 0 {
			if err := sleepCtx(ctx, d.batchDelay); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("dispatch aborted: %v", err))
				break
			}
		}

		end := start + d.batchSize
		if end > len(messages) {
			end = len(messages)
		}
		chunk := messages[start:end]

		receipts, err := d.gateway.SendBatch(ctx, chunk)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"batch %d (%d messages) failed: %v", start/d.batchSize+1, len(chunk), err))
			logger.Warn("push batch failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(chunk)),
				zap.Error(err),
			)
			continue
		}

		for i, receipt := range receipts {
			if receipt.OK() {
				result.MessagesSent++
				confirmed = append(confirmed, chunk[i].To)
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf(
				"token %s: %s (%s)", chunk[i].To, receipt.Message, receipt.Details.Error))
			if receipt.Details.Error == ErrDeviceNotRegistered {
				d.tokens.MarkInvalid(ctx, chunk[i].To, ErrDeviceNotRegistered)
			}
		}
	}

	if len(confirmed) > 0 {
		d.tokens.TouchLastUsed(ctx, confirmed)
	}

	result.Success = result.MessagesSent > 0
	logger.Info("dispatch complete",
		zap.Int("requested_users", len(userIDs)),
		zap.Int("messages_sent", result.MessagesSent),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

func (d *Dispatcher) buildMessages(records []token.PushToken, content composer.Content, opts *Options) []Message {
	effective := d.defaults
	if opts != nil {
		if opts.Sound != "" {
			effective.Sound = opts.Sound
		}
		if opts.Priority != "" {
			effective.Priority = opts.Priority
		}
		if opts.TTL > 0 {
			effective.TTL = opts.TTL
		}
	}

	messages := make([]Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, Message{
			To:       rec.Token,
			Title:    content.Title,
			Body:     content.Body,
			Data:     content.Data,
			Sound:    effective.Sound,
			Priority: effective.Priority,
			TTL:      effective.TTL,
		})
	}
	return messages
}

// sleepCtx waits for the delay or the context, whichever ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
