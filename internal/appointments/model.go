package appointments

import (
	"time"
)

// Collection holds appointment documents.
const Collection = "appointments"

// DefaultDurationMinutes applies when a booking names no duration.
const DefaultDurationMinutes = 45

// Status is the lifecycle position of an appointment.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusCompleted Status = "completed"
)

// Source records which flow created an appointment.
type Source string

const (
	SourceManualAdmin Source = "manual_admin"
	SourceAIAgentForm Source = "ai_agent_form"
)

// Appointment is a scheduled visit.
type Appointment struct {
	ID              string    `json:"id,omitempty"`
	PatientID       string    `json:"patient_id"`
	CampaignID      *string   `json:"campaign_id"`
	AppointmentDate time.Time `json:"appointment_date"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          Status    `json:"status"`
	ServiceName     string    `json:"service_name"`
	Notes           *string   `json:"notes"`
	CreatedFrom     Source    `json:"created_from"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// stored reads an appointment document without trusting its date. The outer
// field shadows the embedded one so a malformed date never fails decoding.
type stored struct {
	Appointment
	AppointmentDate string `json:"appointment_date"`
}

// BookRequest is a public booking for a patient with an active re-engagement.
// Times without a zone are read in the practice timezone.
type BookRequest struct {
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	AppointmentDate string `json:"appointment_date"`
	DurationMinutes *int   `json:"duration_minutes"`
	ServiceName     string `json:"service_name"`
}

// AdminRequest is an appointment entered by practice staff.
type AdminRequest struct {
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	PreferredChannel string  `json:"preferred_channel"`
	AppointmentDate  string  `json:"appointment_date"`
	DurationMinutes  int     `json:"duration_minutes"`
	ServiceName      string  `json:"service_name"`
	Notes            *string `json:"notes"`
}

// CompleteRequest optionally schedules the patient's next follow-up.
type CompleteRequest struct {
	NextFollowUpDate *string `json:"next_follow_up_date"`
}

// ListRequest bounds the appointment list by an inclusive date range.
type ListRequest struct {
	StartDate string
	EndDate   string
}

// ListItem is an appointment row in the admin calendar and export.
type ListItem struct {
	AppointmentID   string  `json:"appointment_id"`
	PatientID       string  `json:"patient_id"`
	PatientName     string  `json:"patient_name"`
	CampaignID      *string `json:"campaign_id"`
	AppointmentDate string  `json:"appointment_date"`
	DurationMinutes int     `json:"duration_minutes"`
	ServiceName     string  `json:"service_name"`
	Status          Status  `json:"status"`
	CreatedFrom     Source  `json:"created_from"`
}
