package models

import "time"

// Video is a unit of learning material under spaced repetition
type Video struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Notes string `json:"notes,omitempty"`

	// File upload properties
	IsFileUpload bool   `json:"isFileUpload,omitempty"`
	FileName     string `json:"fileName,omitempty"`
	FileSize     int64  `json:"fileSize,omitempty"`
	FileType     string `json:"fileType,omitempty"`
	HasFile      bool   `json:"hasFile,omitempty"`

	DateAdded time.Time `json:"dateAdded"`

	// Reminders is the fixed review curve, computed once at creation
	Reminders     []Checkpoint   `json:"reminders"`
	RepeatMonthly *MonthlyRepeat `json:"repeatMonthly,omitempty"`
	IsActive      bool           `json:"isActive"`
}

// Checkpoint is one scheduled review point in the curve.
// Only Completed mutates after creation.
type Checkpoint struct {
	Day       int       `json:"day"`
	Date      time.Time `json:"date"`
	Completed bool      `json:"completed"`
}

// MonthlyRepeat is the recurring monthly review after the day-42 checkpoint.
// The next due date is LastDate plus one calendar month.
type MonthlyRepeat struct {
	StartDate time.Time `json:"startDate"`
	LastDate  time.Time `json:"lastDate"`
}

// ReminderItem pairs a video with the checkpoint that made it show up in a
// reminder listing. Index is the checkpoint position in Video.Reminders, or
// -1 for the monthly recurrence.
type ReminderItem struct {
	Video   Video      `json:"video"`
	Current Checkpoint `json:"currentReminder"`
	Index   int        `json:"reminderIndex"`
}
