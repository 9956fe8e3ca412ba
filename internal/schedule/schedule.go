package schedule

import (
	"sort"
	"time"

	"github.com/example/rewatch/pkg/models"
)

// Fixed review curve: a video is reviewed on days 1, 2, 5, 12 and 42 after
// it was added, then optionally once a month.
var (
	// ReviewDays are the ordinal day markers shown to the user
	ReviewDays = []int{1, 2, 5, 12, 42}
	// reviewOffsets are the day offsets from dateAdded for each checkpoint
	reviewOffsets = []int{0, 1, 4, 11, 41}
)

const (
	// ReminderHour is the local hour checkpoints are anchored at. The hour is
	// informational only; due-date comparisons are day-granular.
	ReminderHour = 9

	// MonthlyIndex is the reserved checkpoint index for the monthly recurrence
	MonthlyIndex = -1
)

// DayStart normalizes an instant to local midnight for day-granularity
// comparisons
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two instants fall on the same calendar day
func SameDay(a, b time.Time) bool {
	return DayStart(a).Equal(DayStart(b))
}

// BuildCheckpoints computes the fixed five-checkpoint schedule for a video
// added at dateAdded. The day-1 checkpoint is pre-completed, since adding a
// video implies a first viewing.
func BuildCheckpoints(dateAdded time.Time) []models.Checkpoint {
	checkpoints := make([]models.Checkpoint, 0, len(ReviewDays))
	for i, day := range ReviewDays {
		d := dateAdded.AddDate(0, 0, reviewOffsets[i])
		date := time.Date(d.Year(), d.Month(), d.Day(), ReminderHour, 0, 0, 0, d.Location())
		checkpoints = append(checkpoints, models.Checkpoint{
			Day:       day,
			Date:      date,
			Completed: i == 0,
		})
	}
	return checkpoints
}

// NextMonthlyDue returns the next due date of a monthly recurrence,
// normalized to midnight: lastDate plus one calendar month.
func NextMonthlyDue(m models.MonthlyRepeat) time.Time {
	return DayStart(m.LastDate.AddDate(0, 1, 0))
}

// IsDueToday reports whether a video has any checkpoint or monthly
// recurrence falling on the calendar day of today. Inactive videos are
// never due.
func IsDueToday(video models.Video, today time.Time) bool {
	if !video.IsActive {
		return false
	}
	for _, c := range video.Reminders {
		if SameDay(c.Date, today) {
			return true
		}
	}
	if video.RepeatMonthly != nil && SameDay(NextMonthlyDue(*video.RepeatMonthly), today) {
		return true
	}
	return false
}

// DueToday returns the reminders due on the calendar day of today, across
// all videos. Completed checkpoints are included: this is the display rule,
// the "Today" list shows finished reviews as checked-off entries.
func DueToday(videos []models.Video, today time.Time) []models.ReminderItem {
	var items []models.ReminderItem

	for _, video := range videos {
		if !video.IsActive {
			continue
		}
		for i, c := range video.Reminders {
			if SameDay(c.Date, today) {
				items = append(items, models.ReminderItem{Video: video, Current: c, Index: i})
			}
		}
		if video.RepeatMonthly != nil {
			next := NextMonthlyDue(*video.RepeatMonthly)
			if SameDay(next, today) {
				// Месячное повторение всегда считается незавершённым,
				// пока пользователь его не отметит
				items = append(items, models.ReminderItem{
					Video:   video,
					Current: models.Checkpoint{Day: 0, Date: next, Completed: false},
					Index:   MonthlyIndex,
				})
			}
		}
	}
	return items
}

// PendingToday returns only the not-yet-completed reminders due today. This
// is the notification rule: delivered counts never include reviews the user
// already finished.
func PendingToday(videos []models.Video, today time.Time) []models.ReminderItem {
	var pending []models.ReminderItem
	for _, item := range DueToday(videos, today) {
		if !item.Current.Completed {
			pending = append(pending, item)
		}
	}
	return pending
}

// Upcoming returns checkpoints strictly after today for videos that are
// still active or on monthly repeat
func Upcoming(videos []models.Video, today time.Time) []models.ReminderItem {
	day := DayStart(today)
	var items []models.ReminderItem

	for _, video := range videos {
		if !video.IsActive && video.RepeatMonthly == nil {
			continue
		}
		for i, c := range video.Reminders {
			if DayStart(c.Date).After(day) {
				items = append(items, models.ReminderItem{Video: video, Current: c, Index: i})
			}
		}
	}
	return items
}

// Overdue returns incomplete checkpoints strictly before today
func Overdue(videos []models.Video, today time.Time) []models.ReminderItem {
	day := DayStart(today)
	var items []models.ReminderItem

	for _, video := range videos {
		if !video.IsActive && video.RepeatMonthly == nil {
			continue
		}
		for i, c := range video.Reminders {
			if DayStart(c.Date).Before(day) && !c.Completed {
				items = append(items, models.ReminderItem{Video: video, Current: c, Index: i})
			}
		}
	}
	return items
}

// Sort orders reminder items for display: incomplete items before completed
// ones, otherwise insertion order is preserved.
func Sort(items []models.ReminderItem) []models.ReminderItem {
	sort.SliceStable(items, func(i, j int) bool {
		return !items[i].Current.Completed && items[j].Current.Completed
	})
	return items
}
