package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"campus-nav-api/internal/domain"
)

// EnableSOSRequest activates an emergency for the authenticated user.
// Location is optional: when absent the requester's live presence record
// is consulted, and activation proceeds with a null location if neither
// is available.
type EnableSOSRequest struct {
	Location    *domain.LatLng `json:"location,omitempty"`
	Message     string         `json:"message,omitempty"`
	DisplayName string         `json:"displayName,omitempty"`
}

// SOSResponse is the API view of an SOS session with the JSON columns
// expanded into typed values
type SOSResponse struct {
	UserID        string                  `json:"userId"`
	IsActive      bool                    `json:"isActive"`
	RequesterName string                  `json:"requesterName,omitempty"`
	Message       string                  `json:"message,omitempty"`
	StartTime     time.Time               `json:"startTime"`
	Location      *domain.LatLng          `json:"location"`
	GuardAssigned *domain.GuardAssignment `json:"guardAssigned"`
}

// FromSOSSession converts the stored session into its API view
func FromSOSSession(s *domain.SOSSession) (*SOSResponse, error) {
	resp := &SOSResponse{
		UserID:        s.UserID,
		IsActive:      s.IsActive,
		RequesterName: s.RequesterName,
		Message:       s.Message,
		StartTime:     s.StartTime,
	}

	if len(s.Location) > 0 && string(s.Location) != "null" {
		var loc domain.LatLng
		if err := json.Unmarshal(s.Location, &loc); err != nil {
			return nil, fmt.Errorf("failed to decode session location: %w", err)
		}
		resp.Location = &loc
	}

	if len(s.GuardAssigned) > 0 && string(s.GuardAssigned) != "null" {
		var assignment domain.GuardAssignment
		if err := json.Unmarshal(s.GuardAssigned, &assignment); err != nil {
			return nil, fmt.Errorf("failed to decode guard assignment: %w", err)
		}
		resp.GuardAssigned = &assignment
	}

	return resp, nil
}
