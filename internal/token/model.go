// Package token implements device push token validation, persistence and the
// store gateway the delivery pipeline resolves recipients through.
package token

import (
	"time"

	"sitefoundry.io/foreman/internal/domain"
)

// Platform identifies the device platform a token addresses.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// AuditEntry is one timestamped note on a token's audit trail.
type AuditEntry struct {
	Reason string    `bson:"reason" json:"reason"`
	At     time.Time `bson:"at" json:"at"`
}

// PushToken is the persisted device token document.
//
// Invariant: at most one active token per physical (userId, deviceId) pair;
// registration deactivates prior tokens for the same device.
type PushToken struct {
	UserID      string          `bson:"userId" json:"userId"`
	UserType    domain.UserType `bson:"userType" json:"userType"`
	Token       string          `bson:"token" json:"-"`
	Platform    Platform        `bson:"platform" json:"platform"`
	DeviceID    string          `bson:"deviceId,omitempty" json:"deviceId,omitempty"`
	DeviceName  string          `bson:"deviceName,omitempty" json:"deviceName,omitempty"`
	AppVersion  string          `bson:"appVersion,omitempty" json:"appVersion,omitempty"`
	IsActive    bool            `bson:"isActive" json:"isActive"`
	HealthScore int             `bson:"healthScore" json:"healthScore"`
	LastUsed    time.Time       `bson:"lastUsed" json:"lastUsed"`
	CreatedAt   time.Time       `bson:"createdAt" json:"createdAt"`
	AuditTrail  []AuditEntry    `bson:"auditTrail,omitempty" json:"-"`
}

// Registration is the payload accepted by the push-token endpoint.
type Registration struct {
	UserID     string          `json:"userId"`
	UserType   domain.UserType `json:"userType"`
	Token      string          `json:"token"`
	Platform   Platform        `json:"platform"`
	DeviceID   string          `json:"deviceId,omitempty"`
	DeviceName string          `json:"deviceName,omitempty"`
	AppVersion string          `json:"appVersion,omitempty"`
}

// BatchStats summarizes a getActiveTokensForUsers call.
type BatchStats struct {
	Requested int `json:"requested"`
	Found     int `json:"found"`
	Valid     int `json:"valid"`
	Invalid   int `json:"invalid"`
	Missing   int `json:"missing"`
}

// BatchResult is the partitioned outcome of a token lookup for a user id set.
// Tokens, InvalidTokens and MissingUsers partition the requested ids without
// overlap.
type BatchResult struct {
	Tokens        []PushToken `json:"tokens"`
	InvalidTokens []PushToken `json:"invalidTokens"`
	MissingUsers  []string    `json:"missingUsers"`
	Stats         BatchStats  `json:"stats"`
}
