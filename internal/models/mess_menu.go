package models

import "time"

// Weekdays lists menu days in display order
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// MessMenu is the mess menu for one day of the week
type MessMenu struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Day       string `gorm:"type:varchar(10);uniqueIndex;not null" json:"day"`
	DayOrder  int    `gorm:"not null" json:"-"`
	Breakfast string `gorm:"type:varchar(255)" json:"breakfast"`
	Lunch     string `gorm:"type:varchar(255)" json:"lunch"`
	Dinner    string `gorm:"type:varchar(255)" json:"dinner"`
}

// WeekdayOrder returns the 1-based position of day in Weekdays, or 0 if unknown
func WeekdayOrder(day string) int {
	for i, d := range Weekdays {
		if d == day {
			return i + 1
		}
	}
	return 0
}
