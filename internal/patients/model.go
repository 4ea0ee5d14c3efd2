package patients

import (
	"strings"
	"time"
)

// Collection is the document collection holding patients.
const Collection = "patients"

// UnknownName is shown when a referenced patient record is missing.
const UnknownName = "Unknown"

// Type classifies how the practice knows a patient.
type Type string

const (
	TypeNew      Type = "new"
	TypeExisting Type = "existing"
	TypeColdLead Type = "cold_lead"
)

// Channel is a way of contacting a patient.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelPhone    Channel = "phone"
	ChannelWhatsApp Channel = "whatsapp"
)

// ParseChannel validates a channel name. An empty name yields email.
func ParseChannel(s string) (Channel, bool) {
	switch c := Channel(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ChannelEmail, true
	case ChannelEmail, ChannelSMS, ChannelPhone, ChannelWhatsApp:
		return c, true
	default:
		return "", false
	}
}

// Patient is a person the practice engages with.
type Patient struct {
	ID               string     `json:"id,omitempty"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone"`
	PatientType      Type       `json:"patient_type"`
	PreferredChannel []Channel  `json:"preferred_channel"`
	NextFollowUpDate *time.Time `json:"next_follow_up_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DisplayName returns the patient's name, or UnknownName when blank.
func (p Patient) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return UnknownName
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
