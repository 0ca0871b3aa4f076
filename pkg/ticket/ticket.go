// Package ticket records support tickets raised when the assistant cannot
// resolve an issue.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no ticket has the requested id.
	ErrNotFound = errors.New("ticket not found")
	// ErrInvalidEmail is returned for a missing or malformed email address.
	ErrInvalidEmail = errors.New("a valid email address is required")
	// ErrEmptyIssue is returned when the issue description is blank.
	ErrEmptyIssue = errors.New("an issue description is required")
)

// Status is the lifecycle state of a ticket.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// Ticket is a support request.
type Ticket struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Issue     string    `json:"issue"`
	Status    Status    `json:"status"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store creates and looks up tickets.
type Store interface {
	Create(ctx context.Context, email, issue string) (*Ticket, error)
	Get(ctx context.Context, id string) (*Ticket, error)
}

// Validate checks a ticket request and returns the normalized email and issue.
func Validate(email, issue string) (string, string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", "", ErrInvalidEmail
	}
	issue = strings.TrimSpace(issue)
	if issue == "" {
		return "", "", ErrEmptyIssue
	}
	return email, issue, nil
}

// IsValidation reports whether err was caused by a bad ticket request.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidEmail) || errors.Is(err, ErrEmptyIssue)
}

func summarize(issue string, max int) string {
	line, _, _ := strings.Cut(issue, "\n")
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) <= max {
		return line
	}
	return fmt.Sprintf("%s...", strings.TrimSpace(string(runes[:max])))
}
