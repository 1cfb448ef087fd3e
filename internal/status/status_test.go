package status

import (
	"testing"
	"time"

	"certtrack-backend/internal/models"
)

func strPtr(s string) *string { return &s }

func dueRecord(due string) *models.ProgressRecord {
	return &models.ProgressRecord{Status: models.ProgressInProgress, DueDate: strPtr(due)}
}

func TestClassify_DueDateExamples(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		category Category
		priority Priority
	}{
		{"five days out", time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC), DueSoon, PriorityDueSoon},
		{"nine days out", time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), InProgress, PriorityOnTrack},
		{"day after", time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), Overdue, PriorityOverdue},
		{"due today late evening", time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC), DueSoon, PriorityDueSoon},
		{"seven days left", time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), DueSoon, PriorityDueSoon},
		{"seven and a half days left", time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC), InProgress, PriorityOnTrack},
		{"just over seven days", time.Date(2025, 3, 2, 23, 0, 0, 0, time.UTC), InProgress, PriorityOnTrack},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(dueRecord("2025-03-10"), tc.now)
			if got.Category != tc.category {
				t.Fatalf("expected %s, got %s", tc.category, got.Category)
			}
			if got.Priority != tc.priority {
				t.Fatalf("expected priority %d, got %d", tc.priority, got.Priority)
			}
		})
	}
}

func TestClassify_EndOfDayUsesViewerZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 2025-03-10 20:00 in Tokyo is still 2025-03-10 for the viewer.
	at := time.Date(2025, 3, 10, 20, 0, 0, 0, tokyo)

	got := Classify(dueRecord("2025-03-10"), at)
	if got.Category != DueSoon {
		t.Fatalf("expected due-today course to be DueSoon, got %s", got.Category)
	}
	if got.DaysRemaining == nil || *got.DaysRemaining != 1 {
		t.Fatalf("expected 1 day remaining, got %v", got.DaysRemaining)
	}
}

func TestClassify_OverdueOnceDueDayEnds(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)

	tests := []struct {
		name     string
		at       time.Time
		category Category
		days     int
	}{
		{"last second of the due day", time.Date(2025, 3, 10, 23, 59, 59, 0, tokyo), DueSoon, 1},
		{"first moment of the next day", time.Date(2025, 3, 11, 0, 0, 0, 0, tokyo), Overdue, -1},
		{"late on the next day", time.Date(2025, 3, 11, 22, 0, 0, 0, tokyo), Overdue, -1},
		{"two days later", time.Date(2025, 3, 12, 0, 0, 1, 0, tokyo), Overdue, -2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(dueRecord("2025-03-10"), tc.at)
			if got.Category != tc.category {
				t.Fatalf("expected %s, got %s", tc.category, got.Category)
			}
			if got.DaysRemaining == nil || *got.DaysRemaining != tc.days {
				t.Fatalf("expected %d days, got %v", tc.days, got.DaysRemaining)
			}
		})
	}
}

func TestClassify_NonDueStates(t *testing.T) {
	at := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	done := time.Date(2025, 2, 20, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		record   *models.ProgressRecord
		category Category
		priority Priority
		text     string
	}{
		{"absent record", nil, NotAssigned, PriorityNotAssigned, "Not Assigned"},
		{"no due date", &models.ProgressRecord{Status: models.ProgressNotStarted}, NotStarted, PriorityNotAssigned, "Not Started"},
		{"empty due date", &models.ProgressRecord{Status: models.ProgressInProgress, DueDate: strPtr("")}, NotStarted, PriorityNotAssigned, "Not Started"},
		{"unparsable due date", dueRecord("next tuesday"), NotStarted, PriorityNotAssigned, "Not Started"},
		{"completed with date", &models.ProgressRecord{Status: models.ProgressCompleted, DueDate: strPtr("2025-01-01"), CompletedDate: &done}, Completed, PriorityDone, "Completed: 2025-02-20"},
		{"completed without date", &models.ProgressRecord{Status: models.ProgressCompleted}, Completed, PriorityDone, "Completed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.record, at)
			if got.Category != tc.category || got.Priority != tc.priority {
				t.Fatalf("expected %s/%d, got %s/%d", tc.category, tc.priority, got.Category, got.Priority)
			}
			if got.Text != tc.text {
				t.Fatalf("expected text %q, got %q", tc.text, got.Text)
			}
			if got.Urgent() {
				t.Fatalf("expected %s not to be urgent", got.Category)
			}
		})
	}
}

func TestClassify_MonotonicAsTimeAdvances(t *testing.T) {
	record := dueRecord("2025-03-10")
	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	last := Classify(record, start).Priority
	for at := start; at.Before(end); at = at.Add(time.Hour) {
		p := Classify(record, at).Priority
		if p > last {
			t.Fatalf("priority regressed from %d to %d at %s", last, p, at)
		}
		last = p
	}
	if last != PriorityOverdue {
		t.Fatalf("expected to end Overdue, got %d", last)
	}
}

func TestPriorityText(t *testing.T) {
	tests := map[Priority]string{
		PriorityOverdue:     "Overdue",
		PriorityDueSoon:     "Warning",
		PriorityOnTrack:     "On Track",
		PriorityNotAssigned: "N/A",
	}
	for p, want := range tests {
		if got := PriorityText(p); got != want {
			t.Errorf("PriorityText(%d) = %q, want %q", p, got, want)
		}
	}
}
