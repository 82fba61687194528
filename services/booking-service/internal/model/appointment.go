package model

import "time"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Appointment occupies [AppointmentDate, EndTime) on the employee's calendar
// until it is cancelled.
type Appointment struct {
	ID               string    `json:"id"`
	CustomerID       string    `json:"customerId"`
	BusinessID       string    `json:"businessId"`
	ServiceID        string    `json:"serviceId"`
	EmployeeID       string    `json:"employeeId"`
	AppointmentDate  time.Time `json:"appointmentDate"`
	EndTime          time.Time `json:"endTime"`
	DurationMinutes  int       `json:"durationMinutes"`
	Status           Status    `json:"status"`
	OwnerApproved    *bool     `json:"ownerApproved"`
	EmployeeApproved *bool     `json:"employeeApproved"`
	Notes            string    `json:"notes,omitempty"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// Blocking reports whether the appointment still holds its interval.
func (a Appointment) Blocking() bool {
	return a.Status != StatusCancelled
}

// AppointmentFilter selects appointments visible to one caller.
type AppointmentFilter struct {
	CustomerID string
	BusinessID string
	EmployeeID string
	Status     Status
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
