package domain

import "time"

type PresenceStatus string

const (
	PresenceStatusOnline  PresenceStatus = "online"
	PresenceStatusOffline PresenceStatus = "offline"
)

type ConnectionState string

const (
	ConnectionActive       ConnectionState = "active"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionError        ConnectionState = "error"
)

// Disconnect reasons recorded on offline transitions for diagnostics
const (
	DisconnectManual         = "manual"
	DisconnectPageHidden     = "page_hidden"
	DisconnectWindowBlur     = "window_blur"
	DisconnectNetworkOffline = "network_offline"
	DisconnectConnectionLost = "connection_lost"
	DisconnectIdleCleanup    = "idle_cleanup"
)

// PresenceRecord describes one entity's last-known location and liveness
// as stored in the presence store. Records arrive from many independent
// publishers with optional fields, so nullable fields use pointers:
// an absent IsOnline is not the same as IsOnline=false, and an entity
// with an absent IsOnline is never considered live.
type PresenceRecord struct {
	EntityID         string          `json:"entityId"`
	Lat              *float64        `json:"lat,omitempty"`
	Lng              *float64        `json:"lng,omitempty"`
	Status           PresenceStatus  `json:"status,omitempty"`
	IsOnline         *bool           `json:"isOnline,omitempty"`
	ConnectionState  ConnectionState `json:"connectionState,omitempty"`
	LastUpdate       *int64          `json:"lastUpdate,omitempty"` // unix millis, server-assigned
	Heartbeat        *int64          `json:"heartbeat,omitempty"`  // unix millis, server-assigned
	SessionID        string          `json:"sessionId,omitempty"`
	DisplayName      string          `json:"displayName,omitempty"`
	DeviceName       string          `json:"deviceName,omitempty"`
	DisconnectReason string          `json:"disconnectReason,omitempty"`
}

// HasLocation reports whether both coordinates are present and numeric.
// Records without a usable location are excluded from tracking.
func (r *PresenceRecord) HasLocation() bool {
	if r.Lat == nil || r.Lng == nil {
		return false
	}
	return isFinite(*r.Lat) && isFinite(*r.Lng)
}

// IsLive reports whether both liveness fields agree on "online".
// The double-field check guards against partial writes.
func (r *PresenceRecord) IsLive() bool {
	return r.Status == PresenceStatusOnline && r.IsOnline != nil && *r.IsOnline
}

// LastActivity returns the most recent of LastUpdate and Heartbeat.
// The second return value is false when neither timestamp is present.
func (r *PresenceRecord) LastActivity() (time.Time, bool) {
	var ms int64
	ok := false
	if r.LastUpdate != nil {
		ms = *r.LastUpdate
		ok = true
	}
	if r.Heartbeat != nil && *r.Heartbeat > ms {
		ms = *r.Heartbeat
		ok = true
	}
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func isFinite(f float64) bool {
	return f == f && f < 1e308 && f > -1e308
}

// Helpers for building records with optional fields

func Float64Ptr(f float64) *float64 { return &f }
func BoolPtr(b bool) *bool          { return &b }
func Int64Ptr(i int64) *int64       { return &i }
