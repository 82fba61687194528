package model

import "time"

type Business struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	BusinessType string    `json:"businessType"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type BusinessFilter struct {
	Name         string
	City         string
	Category     string
	BusinessType string
	Limit        int
	Offset       int
}

type Service struct {
	ID              string    `json:"id"`
	BusinessID      string    `json:"businessId"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration"`
	Price           float64   `json:"price"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Employee is bookable once created; UserID is set when the staff member
// accepts the invitation and links their account.
type Employee struct {
	ID              string    `json:"id"`
	BusinessID      string    `json:"businessId"`
	UserID          string    `json:"userId,omitempty"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone,omitempty"`
	Specialization  string    `json:"specialization,omitempty"`
	InvitationToken string    `json:"-"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// WorkingHours is the weekly record for one weekday. Minutes are counted from
// local midnight in the schedule timezone; the window is [StartMinute, EndMinute).
type WorkingHours struct {
	EmployeeID  string
	DayOfWeek   time.Weekday
	StartMinute int
	EndMinute   int
	IsAvailable bool
}

func (h WorkingHours) Valid() bool {
	if h.DayOfWeek < time.Sunday || h.DayOfWeek > time.Saturday {
		return false
	}
	if !h.IsAvailable {
		return true
	}
	return h.StartMinute >= 0 && h.EndMinute <= 24*60 && h.StartMinute < h.EndMinute
}

// DefaultWeek is the schedule a new employee starts with: Mon-Fri 09:00-17:00.
func DefaultWeek(employeeID string) []WorkingHours {
	week := make([]WorkingHours, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		working := d != time.Saturday && d != time.Sunday
		week = append(week, WorkingHours{
			EmployeeID:  employeeID,
			DayOfWeek:   d,
			StartMinute: 9 * 60,
			EndMinute:   17 * 60,
			IsAvailable: working,
		})
	}
	return week
}

type Review struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointmentId"`
	CustomerID    string    `json:"customerId"`
	BusinessID    string    `json:"businessId"`
	EmployeeID    string    `json:"employeeId,omitempty"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Favorite struct {
	CustomerID string    `json:"customerId"`
	BusinessID string    `json:"businessId"`
	CreatedAt  time.Time `json:"createdAt"`
}
