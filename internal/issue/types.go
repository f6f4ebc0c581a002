package issue

import (
	"errors"
	"time"
)

// Status is the issue workflow state.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Priority is the issue urgency level.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Issue is the stored record. AssignedTo and Label are "" when unset.
// An issue belongs to its creator's organization transitively; the
// record itself carries no organization column.
type Issue struct {
	ID          string
	Title       string
	Description string
	Label       string
	Status      Status
	Priority    Priority
	AssignedTo  string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Participant is the embedded user projection in issue responses.
type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
}

// View is an issue with its creator and assignee resolved for
// responses.
type View struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Label       *string      `json:"label"`
	Status      Status       `json:"status"`
	Priority    Priority     `json:"priority"`
	CreatedBy   Participant  `json:"created_by"`
	AssignedTo  *Participant `json:"assigned_to"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Sort orders for list queries.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// Filter narrows a list query. CreatorIDs is filled by the service
// with the caller's organization members; stores must apply it in the
// query itself, never by post-filtering fetched rows.
type Filter struct {
	CreatorIDs []string
	Status     Status
	Priority   Priority
	Label      string
	Query      string
	Page       int
	Limit      int
	Sort       string
}

// PageMeta describes a result page.
type PageMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"has_next"`
}

// Stats summarizes an organization's issues.
type Stats struct {
	ByStatus   map[Status]int   `json:"by_status"`
	ByPriority map[Priority]int `json:"by_priority"`
	Recent     []View           `json:"recent"`
}

var (
	ErrNotFound     = errors.New("issue: not found")
	ErrForbidden    = errors.New("issue: forbidden")
	ErrInvalidInput = errors.New("issue: invalid input")
)
