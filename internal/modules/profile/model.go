// README: Driver profile flags (availability, location sharing, verification).
package profile

import (
	"time"

	"foodtrack/internal/types"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

func (v VerificationStatus) Valid() bool {
	switch v {
	case VerificationPending, VerificationApproved, VerificationRejected:
		return true
	}
	return false
}

type Profile struct {
	DriverID           types.ID           `json:"driverId"`
	IsAvailable        bool               `json:"isAvailable"`
	ShareLocation      bool               `json:"shareLocation"`
	HasSharedLocation  bool               `json:"hasSharedLocation"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	VerificationNote   string             `json:"verificationNote,omitempty"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

func defaultProfile(id types.ID) Profile {
	return Profile{DriverID: id, VerificationStatus: VerificationPending}
}
