package domain

import (
	"time"

	"gorm.io/datatypes"
)

// LatLng is a coordinate snapshot embedded in SOS sessions and assignments
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GuardAssignment is the one-time assignment result embedded in an SOS
// session at activation. It is a snapshot and is not refreshed while the
// session stays active.
type GuardAssignment struct {
	GuardID       string    `json:"guardId"`
	GuardName     string    `json:"guardName,omitempty"`
	Distance      float64   `json:"distance"` // meters
	GuardLocation LatLng    `json:"guardLocation"`
	IsOnline      bool      `json:"isOnline"`
	Status        string    `json:"status,omitempty"`
	AssignedAt    time.Time `json:"assignedAt"`
}

// SOSSession represents an active emergency for a user. The user id is the
// primary key, so at most one session can exist per user. Sessions are
// hard-deleted when the emergency is cancelled or resolved.
type SOSSession struct {
	UserID        string         `gorm:"type:varchar(64);primaryKey" json:"userId"`
	IsActive      bool           `gorm:"not null;default:true" json:"isActive"`
	RequesterName string         `gorm:"type:varchar(255)" json:"requesterName,omitempty"`
	Message       string         `gorm:"type:text" json:"message,omitempty"`
	StartTime     time.Time      `gorm:"type:timestamp;not null" json:"startTime"`
	Location      datatypes.JSON `gorm:"type:jsonb" json:"location,omitempty"`
	GuardAssigned datatypes.JSON `gorm:"type:jsonb" json:"guardAssigned,omitempty"`
}

// TableName specifies the table name for SOSSession
func (SOSSession) TableName() string {
	return "sos_sessions"
}
