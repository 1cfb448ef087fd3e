package rollup

import (
	"cmp"
	"slices"
	"strings"
)

type SortKey string

const (
	SortByName           SortKey = "name"
	SortByAvgCompletion  SortKey = "avg_completion"
	SortByCoursesPassed  SortKey = "courses_passed"
	SortByStatusPriority SortKey = "status_priority"
)

func (k SortKey) Valid() bool {
	switch k {
	case SortByName, SortByAvgCompletion, SortByCoursesPassed, SortByStatusPriority:
		return true
	}
	return false
}

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection accepts the long and short spellings; anything else is
// ascending.
func ParseDirection(s string) Direction {
	switch strings.ToLower(s) {
	case "desc", "descending":
		return Descending
	}
	return Ascending
}

func directed(c int, dir Direction) int {
	if dir == Descending {
		return -c
	}
	return c
}

// compareOptional orders missing values after present ones in both
// directions.
func compareOptional(a, b *int, dir Direction) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return directed(cmp.Compare(*a, *b), dir)
}

// SortRollups returns a stably sorted copy of rollups.
func SortRollups(rollups []UserRollup, key SortKey, dir Direction) []UserRollup {
	out := slices.Clone(rollups)
	slices.SortStableFunc(out, func(a, b UserRollup) int {
		switch key {
		case SortByAvgCompletion:
			return compareOptional(a.AvgCompletion, b.AvgCompletion, dir)
		case SortByCoursesPassed:
			return directed(cmp.Compare(a.CoursesPassed, b.CoursesPassed), dir)
		case SortByStatusPriority:
			return directed(cmp.Compare(a.StatusPriority, b.StatusPriority), dir)
		default:
			return directed(strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)), dir)
		}
	})
	return out
}
