package campaigns

import (
	"strings"
	"time"
)

const (
	// Collection holds campaign documents.
	Collection = "campaigns"
	// InteractionsCollection holds the append-only interaction log.
	InteractionsCollection = "interactions"
)

// Status is the position of a campaign in its workflow.
type Status string

const (
	StatusAttemptingRecovery Status = "attempting_recovery"
	StatusReEngaged          Status = "re_engaged"
	StatusBookingInitiated   Status = "booking_initiated"
	StatusRecovered          Status = "recovered"
	StatusHandoffRequired    Status = "handoff_required"
)

// Statuses lists every campaign status.
var Statuses = []Status{
	StatusAttemptingRecovery,
	StatusReEngaged,
	StatusBookingInitiated,
	StatusRecovered,
	StatusHandoffRequired,
}

// ParseStatus returns the status named by s.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.TrimSpace(s))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Type distinguishes recovery outreach from recall outreach.
type Type string

const (
	TypeRecovery Type = "recovery"
	TypeRecall   Type = "recall"
)

// Direction says who authored an interaction.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Campaign is an outreach effort aimed at one patient.
type Campaign struct {
	ID                string    `json:"id,omitempty"`
	PatientID         string    `json:"patient_id"`
	CampaignType      Type      `json:"campaign_type"`
	Status            Status    `json:"status"`
	EngagementSummary string    `json:"engagement_summary"`
	EstimatedValue    *float64  `json:"estimated_value,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Interaction is one message exchanged within a campaign.
type Interaction struct {
	ID         string    `json:"id,omitempty"`
	CampaignID string    `json:"campaign_id"`
	Direction  Direction `json:"direction"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// RecoveryRequest opens a recovery campaign for a new cold lead.
type RecoveryRequest struct {
	PatientName    string   `json:"patient_name"`
	PatientEmail   string   `json:"patient_email"`
	InitialInquiry string   `json:"initial_inquiry"`
	EstimatedValue *float64 `json:"estimated_value"`
}

// RecallRequest opens a recall campaign for a patient already on file.
type RecallRequest struct {
	PatientID         string `json:"patient_id"`
	EngagementSummary string `json:"engagement_summary"`
}

// RespondRequest is an admin reply plus the status to move the campaign to.
type RespondRequest struct {
	Message   string `json:"message"`
	NewStatus string `json:"new_status"`
}

// ListRequest selects a page of campaigns.
type ListRequest struct {
	Status string
	Page   int
	Limit  int
}

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// ListItem is a campaign row in the admin list.
type ListItem struct {
	CampaignID   string    `json:"campaign_id"`
	PatientName  string    `json:"patient_name"`
	CampaignType Type      `json:"campaign_type"`
	Status       Status    `json:"status"`
	LastUpdated  time.Time `json:"last_updated"`
}

type Pagination struct {
	TotalItems  int `json:"total_items"`
	TotalPages  int `json:"total_pages"`
	CurrentPage int `json:"current_page"`
}

type ListResult struct {
	Campaigns  []ListItem `json:"campaigns"`
	Pagination Pagination `json:"pagination"`
}

type Summary struct {
	CampaignID        string `json:"campaign_id"`
	PatientName       string `json:"patient_name"`
	Status            Status `json:"status"`
	EngagementSummary string `json:"engagement_summary"`
}

type HistoryEntry struct {
	Direction Direction `json:"direction"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Details is a campaign summary with its full conversation history.
type Details struct {
	Campaign Summary        `json:"campaign_details"`
	History  []HistoryEntry `json:"conversation_history"`
}
