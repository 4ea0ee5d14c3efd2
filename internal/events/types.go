package events

import "time"

type CampaignCreatedV1 struct {
	CampaignID   string    `json:"campaign_id"`
	PatientID    string    `json:"patient_id"`
	CampaignType string    `json:"campaign_type"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func (CampaignCreatedV1) EventType() string { return "campaign.created.v1" }

type CampaignRespondedV1 struct {
	CampaignID     string    `json:"campaign_id"`
	InteractionID  string    `json:"interaction_id"`
	PreviousStatus string    `json:"previous_status"`
	Status         string    `json:"status"`
	RespondedAt    time.Time `json:"responded_at"`
}

func (CampaignRespondedV1) EventType() string { return "campaign.responded.v1" }

type AppointmentBookedV1 struct {
	AppointmentID   string    `json:"appointment_id"`
	PatientID       string    `json:"patient_id"`
	CampaignID      string    `json:"campaign_id,omitempty"`
	ServiceName     string    `json:"service_name"`
	AppointmentDate time.Time `json:"appointment_date"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedFrom     string    `json:"created_from"`
}

func (AppointmentBookedV1) EventType() string { return "appointment.booked.v1" }

type AppointmentCompletedV1 struct {
	AppointmentID    string     `json:"appointment_id"`
	PatientID        string     `json:"patient_id"`
	CampaignID       string     `json:"campaign_id,omitempty"`
	NextFollowUpDate *time.Time `json:"next_follow_up_date,omitempty"`
	CompletedAt      time.Time  `json:"completed_at"`
}

func (AppointmentCompletedV1) EventType() string { return "appointment.completed.v1" }

type AppointmentDeletedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	DeletedAt     time.Time `json:"deleted_at"`
}

func (AppointmentDeletedV1) EventType() string { return "appointment.deleted.v1" }
