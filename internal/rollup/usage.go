package rollup

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"certtrack-backend/internal/models"
)

// FormatDuration renders seconds as HH:MM:SS. Hours are not capped at 24.
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return "00:00:00"
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

type UsageSortKey string

const (
	UsageByName         UsageSortKey = "name"
	UsageByLogins       UsageSortKey = "logins"
	UsageByLastLogin    UsageSortKey = "last_login"
	UsageByAttempts     UsageSortKey = "attempts"
	UsageByPasses       UsageSortKey = "passes"
	UsageByFails        UsageSortKey = "fails"
	UsageByPassRate     UsageSortKey = "pass_rate"
	UsageByTrainingTime UsageSortKey = "total_training_time"
)

func (k UsageSortKey) Valid() bool {
	switch k {
	case UsageByName, UsageByLogins, UsageByLastLogin, UsageByAttempts,
		UsageByPasses, UsageByFails, UsageByPassRate, UsageByTrainingTime:
		return true
	}
	return false
}

type UsageRow struct {
	UserID               uuid.UUID  `json:"user_id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	Logins               int        `json:"logins"`
	LastLogin            *time.Time `json:"last_login"`
	Attempts             int        `json:"attempts"`
	Passes               int        `json:"passes"`
	Fails                int        `json:"fails"`
	PassRate             *float64   `json:"pass_rate"`
	TotalTrainingSeconds int64      `json:"total_training_seconds"`
	TotalTrainingTime    string     `json:"total_training_time"`
}

type UsageTotals struct {
	TotalTrainingSeconds int64  `json:"total_training_seconds"`
	TotalTrainingTime    string `json:"total_training_time"`
	AvgTrainingSeconds   int64  `json:"avg_training_seconds"`
	AvgTrainingTime      string `json:"avg_training_time"`
	TotalAttempts        int    `json:"total_attempts"`
	TotalPasses          int    `json:"total_passes"`
	TotalFails           int    `json:"total_fails"`
}

type UsageReport struct {
	Totals    UsageTotals `json:"totals"`
	TopByTime []UsageRow  `json:"top_by_time"`
	Activity  []UsageRow  `json:"activity"`
}

const topUsersLimit = 3

// BuildUsage joins users with their activity logs. Users without a log show
// zeros.
func BuildUsage(users Snapshot[models.User], logs Snapshot[models.ActivityLog], key UsageSortKey, dir Direction) (UsageReport, error) {
	if err := users.check("users"); err != nil {
		return UsageReport{}, err
	}
	if err := logs.check("activity logs"); err != nil {
		return UsageReport{}, err
	}

	byUser := make(map[uuid.UUID]models.ActivityLog, len(logs.Items))
	var totals UsageTotals
	for _, l := range logs.Items {
		byUser[l.UserID] = l
		totals.TotalTrainingSeconds += l.TotalTrainingSeconds
		totals.TotalAttempts += l.QuizAttempts
		totals.TotalPasses += l.QuizPasses
		totals.TotalFails += l.QuizFails
	}
	if len(logs.Items) > 0 {
		totals.AvgTrainingSeconds = totals.TotalTrainingSeconds / int64(len(logs.Items))
	}
	totals.TotalTrainingTime = FormatDuration(totals.TotalTrainingSeconds)
	totals.AvgTrainingTime = FormatDuration(totals.AvgTrainingSeconds)

	rows := make([]UsageRow, 0, len(users.Items))
	for _, u := range users.Items {
		l := byUser[u.ID]
		rows = append(rows, UsageRow{
			UserID:               u.ID,
			Name:                 u.Name,
			Email:                u.Email,
			Logins:               l.LoginCount,
			LastLogin:            l.LastLogin,
			Attempts:             l.QuizAttempts,
			Passes:               l.QuizPasses,
			Fails:                l.QuizFails,
			PassRate:             l.PassRate(),
			TotalTrainingSeconds: l.TotalTrainingSeconds,
			TotalTrainingTime:    FormatDuration(l.TotalTrainingSeconds),
		})
	}

	top := SortUsage(rows, UsageByTrainingTime, Descending)
	if len(top) > topUsersLimit {
		top = top[:topUsersLimit]
	}

	return UsageReport{
		Totals:    totals,
		TopByTime: top,
		Activity:  SortUsage(rows, key, dir),
	}, nil
}

func passRateOrZero(r *float64) float64 {
	if r == nil {
		return 0
	}
	return *r
}

func lastLoginOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// SortUsage returns a stably sorted copy. Missing values count as zero.
func SortUsage(rows []UsageRow, key UsageSortKey, dir Direction) []UsageRow {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b UsageRow) int {
		var c int
		switch key {
		case UsageByLogins:
			c = cmp.Compare(a.Logins, b.Logins)
		case UsageByLastLogin:
			c = lastLoginOrZero(a.LastLogin).Compare(lastLoginOrZero(b.LastLogin))
		case UsageByAttempts:
			c = cmp.Compare(a.Attempts, b.Attempts)
		case UsageByPasses:
			c = cmp.Compare(a.Passes, b.Passes)
		case UsageByFails:
			c = cmp.Compare(a.Fails, b.Fails)
		case UsageByPassRate:
			c = cmp.Compare(passRateOrZero(a.PassRate), passRateOrZero(b.PassRate))
		case UsageByTrainingTime:
			c = cmp.Compare(a.TotalTrainingSeconds, b.TotalTrainingSeconds)
		default:
			c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
		return directed(c, dir)
	})
	return out
}
