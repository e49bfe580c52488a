package token

import (
	"strings"
	"sync"
	"time"
)

// Format classifies a push token by wire family.
type Format string

const (
	FormatExpo       Format = "expo"
	FormatExpoLegacy Format = "expo-legacy"
	FormatFCM        Format = "fcm"
	FormatFCMWeb     Format = "fcm-web"
	FormatAPNS       Format = "apns"
	FormatUnknown    Format = "unknown"
)

const (
	minTokenLength = 10
	maxTokenLength = 4096

	// fcmMinLength is the shortest credible FCM registration token.
	fcmMinLength = 140
	// fcmWebLength and above implies the web sub-platform.
	fcmWebLength = 152

	apnsLength = 64

	// placeholder some clients send after the provider revoked the token.
	placeholderUnregistered = "UNREGISTERED"
)

// ValidationResult is the deterministic outcome of validating one token string.
type ValidationResult struct {
	Valid  bool     `json:"isValid"`
	Format Format   `json:"format"`
	Errors []string `json:"errors,omitempty"`
}

// Validator classifies raw token strings and scores token health.
// Validation is pure per input, so results are cached for the process lifetime.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]ValidationResult
}

// NewValidator creates a validator with an empty result cache.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]ValidationResult)}
}

// Validate classifies a raw token string. Calling it twice on the same input
// yields an identical result.
func (v *Validator) Validate(raw string) ValidationResult {
	v.mu.RLock()
	cached, ok := v.cache[raw]
	v.mu.RUnlock()
	if ok {
		return cached
	}

	res := classify(raw)

	v.mu.Lock()
	v.cache[raw] = res
	v.mu.Unlock()
	return res
}

// CacheSize reports the number of cached validation results.
func (v *Validator) CacheSize() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.cache)
}

func classify(raw string) ValidationResult {
	if raw == "" {
		return invalid("token is empty")
	}
	if raw == placeholderUnregistered {
		return invalid("token is the UNREGISTERED placeholder")
	}
	if len(raw) < minTokenLength {
		return invalid("token is shorter than 10 characters")
	}
	if len(raw) > maxTokenLength {
		return invalid("token exceeds 4096 characters")
	}
	if !allowedCharset(raw) {
		return invalid("token contains characters outside the allowed set")
	}

	switch {
	case strings.HasPrefix(raw, "ExpoPushToken[") && strings.HasSuffix(raw, "]"):
		return ValidationResult{Valid: true, Format: FormatExpo}
	case strings.HasPrefix(raw, "ExponentPushToken[") && strings.HasSuffix(raw, "]"):
		return ValidationResult{Valid: true, Format: FormatExpoLegacy}
	case len(raw) == apnsLength && isLowerHex(raw):
		return ValidationResult{Valid: true, Format: FormatAPNS}
	case len(raw) >= fcmWebLength && fcmCharset(raw):
		return ValidationResult{Valid: true, Format: FormatFCMWeb}
	case len(raw) >= fcmMinLength && fcmCharset(raw):
		return ValidationResult{Valid: true, Format: FormatFCM}
	}

	return invalid("unrecognized token format")
}

func invalid(reason string) ValidationResult {
	return ValidationResult{Valid: false, Format: FormatUnknown, Errors: []string{reason}}
}

// allowedCharset admits the union of the three token families' alphabets.
func allowedCharset(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '[' || r == ']' || r == '-' || r == '_' || r == ':' || r == '.' || r == '+' || r == '/' || r == '=':
		default:
			return false
		}
	}
	return true
}

func isLowerHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// fcmCharset is the restricted alphabet of FCM registration tokens.
func fcmCharset(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == ':':
		default:
			return false
		}
	}
	return true
}

// HealthScore computes a 0-100 health score for a token record.
//
// +40 base when the token string validates, +5..+20 by token age (newer is
// higher), +5..+20 by recency of last use, +5/+10 for a non-legacy format,
// +5/+10 for device metadata presence. Clamped to [0,100].
func (v *Validator) HealthScore(rec PushToken, now time.Time) int {
	res := v.Validate(rec.Token)
	if !res.Valid {
		return 0
	}

	score := 40

	age := now.Sub(rec.CreatedAt)
	switch {
	case age <= 7*24*time.Hour:
		score += 20
	case age <= 30*24*time.Hour:
		score += 15
	case age <= 90*24*time.Hour:
		score += 10
	default:
		score += 5
	}

	sinceUse := now.Sub(rec.LastUsed)
	switch {
	case sinceUse <= 24*time.Hour:
		score += 20
	case sinceUse <= 7*24*time.Hour:
		score += 15
	case sinceUse <= 30*24*time.Hour:
		score += 10
	default:
		score += 5
	}

	switch res.Format {
	case FormatExpo, FormatFCM, FormatFCMWeb:
		score += 10
	case FormatAPNS:
		score += 5
	}

	meta := 0
	if rec.DeviceID != "" {
		meta += 5
	}
	if rec.DeviceName != "" || rec.AppVersion != "" {
		meta += 5
	}
	score += meta

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
