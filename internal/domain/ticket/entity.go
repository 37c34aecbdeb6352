package ticket

import (
	"time"

	"mnetifi-service/internal/pkg/validate"
)

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusClosed},
	StatusInProgress: {StatusResolved},
	StatusResolved:   {StatusClosed, StatusOpen},
	StatusClosed:     {StatusOpen},
}

func (s Status) CanTransition(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Ticket struct {
	ID              int64      `json:"id" db:"id"`
	TenantID        int64      `json:"tenant_id" db:"tenant_id"`
	Subject         string     `json:"subject" db:"subject"`
	IssueDetails    string     `json:"issue_details" db:"issue_details"`
	Status          Status     `json:"status" db:"status"`
	Priority        Priority   `json:"priority" db:"priority"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty" db:"resolution_notes"`
	WifiUserID      *int64     `json:"wifi_user_id,omitempty" db:"wifi_user_id"`
	CreatedBy       *int64     `json:"created_by,omitempty" db:"created_by"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

type CreateTicketRequest struct {
	Subject      string   `json:"subject"`
	IssueDetails string   `json:"issue_details"`
	Priority     Priority `json:"priority"`
	WifiUserID   *int64   `json:"wifi_user_id,omitempty"`
}

func (r CreateTicketRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.Length(r.Subject, 3, 200), "subject", "subject must be 3-200 characters")
	fe.Check(validate.Required(r.IssueDetails), "issue_details", "describe the issue")
	fe.Check(r.Priority == "" || r.Priority.Valid(), "priority", "priority must be LOW, MEDIUM, HIGH or URGENT")
	return fe.Err()
}

type UpdateTicketRequest struct {
	Subject      *string   `json:"subject,omitempty"`
	IssueDetails *string   `json:"issue_details,omitempty"`
	Priority     *Priority `json:"priority,omitempty"`
}

func (r UpdateTicketRequest) Validate() error {
	fe := validate.FieldErrors{}
	if r.Subject != nil {
		fe.Check(validate.Length(*r.Subject, 3, 200), "subject", "subject must be 3-200 characters")
	}
	if r.IssueDetails != nil {
		fe.Check(validate.Required(*r.IssueDetails), "issue_details", "describe the issue")
	}
	if r.Priority != nil {
		fe.Check(r.Priority.Valid(), "priority", "priority must be LOW, MEDIUM, HIGH or URGENT")
	}
	return fe.Err()
}

type ResolveTicketRequest struct {
	ResolutionNotes string `json:"resolution_notes"`
}

func (r ResolveTicketRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.Required(r.ResolutionNotes), "resolution_notes", "resolution notes are required")
	return fe.Err()
}

type TicketListFilters struct {
	Status   *Status   `form:"status"`
	Priority *Priority `form:"priority"`
	Search   string    `form:"search"`
	Page     int       `form:"page"`
	PageSize int       `form:"page_size"`
}
