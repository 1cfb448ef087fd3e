// Package status classifies a learner's progress on a single course into an
// urgency category. Classification is pure: the caller always supplies now.
package status

import (
	"fmt"
	"math"
	"time"

	"github.com/jinzhu/now"

	"certtrack-backend/internal/models"
)

type Category string

const (
	NotAssigned Category = "not_assigned"
	NotStarted  Category = "not_started"
	Completed   Category = "completed"
	Overdue     Category = "overdue"
	DueSoon     Category = "due_soon"
	InProgress  Category = "in_progress"
)

// Priority orders categories by urgency; lower is more urgent.
type Priority int

const (
	PriorityOverdue     Priority = 1
	PriorityDueSoon     Priority = 2
	PriorityOnTrack     Priority = 3
	PriorityNotAssigned Priority = 4
	// PriorityDone marks completed work, which never takes part in urgency
	// comparisons.
	PriorityDone Priority = 5
)

// DueSoonDays is the inclusive window in which an unfinished course is flagged.
const DueSoonDays = 7

const dueDateLayout = "2006-01-02"

type Result struct {
	Category      Category   `json:"category"`
	Priority      Priority   `json:"priority"`
	Text          string     `json:"text"`
	DaysRemaining *int       `json:"days_remaining,omitempty"`
	CompletedOn   *time.Time `json:"completed_on,omitempty"`
}

// Urgent reports whether the result should be surfaced as at risk.
func (r Result) Urgent() bool {
	return r.Priority < PriorityOnTrack
}

// Classify maps a progress record to a status at the instant now. A nil
// record means the course is not assigned. The due date is read as the end
// of that calendar day in now's location, which is the viewer's frame.
func Classify(p *models.ProgressRecord, at time.Time) Result {
	if p == nil {
		return Result{Category: NotAssigned, Priority: PriorityNotAssigned, Text: "Not Assigned"}
	}

	if p.Status == models.ProgressCompleted {
		r := Result{Category: Completed, Priority: PriorityDone, Text: "Completed"}
		if p.CompletedDate != nil {
			done := *p.CompletedDate
			r.CompletedOn = &done
			r.Text = fmt.Sprintf("Completed: %s", done.In(at.Location()).Format(dueDateLayout))
		}
		return r
	}

	notStarted := Result{Category: NotStarted, Priority: PriorityNotAssigned, Text: "Not Started"}
	if p.DueDate == nil || *p.DueDate == "" {
		return notStarted
	}

	due, err := time.ParseInLocation(dueDateLayout, *p.DueDate, at.Location())
	if err != nil {
		return notStarted
	}

	remaining := now.With(due).EndOfDay().Sub(at)
	if remaining < 0 {
		days := int(math.Floor(remaining.Hours() / 24))
		return Result{Category: Overdue, Priority: PriorityOverdue, Text: "Overdue", DaysRemaining: &days}
	}

	days := int(math.Ceil(remaining.Hours() / 24))
	if days <= DueSoonDays {
		return Result{Category: DueSoon, Priority: PriorityDueSoon, Text: "Due Soon", DaysRemaining: &days}
	}
	return Result{Category: InProgress, Priority: PriorityOnTrack, Text: "In Progress", DaysRemaining: &days}
}

// PriorityText is the label shown for a rolled-up priority.
func PriorityText(p Priority) string {
	switch p {
	case PriorityOverdue:
		return "Overdue"
	case PriorityDueSoon:
		return "Warning"
	case PriorityOnTrack:
		return "On Track"
	default:
		return "N/A"
	}
}
