package lead

import (
	"fmt"
	"strings"
	"time"
)

// Status is the position of a lead in the bidding lifecycle.
type Status string

const (
	StatusNew          Status = "new"
	StatusAnswered     Status = "answered"
	StatusRejected     Status = "rejected"
	StatusPending      Status = "pending"
	StatusNotAvailable Status = "not_available"
)

// Statuses lists every known status.
var Statuses = []Status{StatusNew, StatusAnswered, StatusRejected, StatusPending, StatusNotAvailable}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, status := range Statuses {
		if status == candidate {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown lead status %q", s)
}

// DefaultBudget is used when the project page shows no indicative budget.
var DefaultBudget = []int{1000, 1000}

// Lead is a qualified project, unique by its reference.
type Lead struct {
	Reference   string    `bson:"reference" json:"reference"`
	Title       string    `bson:"title" json:"title"`
	Description string    `bson:"description" json:"description"`
	Tags        []string  `bson:"tags" json:"tags"`
	Budget      []int     `bson:"budget" json:"budget"`
	Status      Status    `bson:"status" json:"status"`
	Score       *float64  `bson:"score,omitempty" json:"score,omitempty"`
	Reasons     []string  `bson:"reasons,omitempty" json:"reasons,omitempty"`
	Note        string    `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
	// UpsertedAt only moves when the lead is written by ingestion. Listings sort on it.
	UpsertedAt  time.Time `bson:"upserted_at" json:"upserted_at"`
}

// MinBudget returns the lower budget bound, or the default when unknown.
func (l *Lead) MinBudget() int {
	if len(l.Budget) == 0 {
		return DefaultBudget[0]
	}
	return l.Budget[0]
}
