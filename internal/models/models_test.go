package models

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestRoomOccupancy(t *testing.T) {
	c := qt.New(t)

	room := Room{RoomNumber: 101, Capacity: 2, Status: RoomStatusAvailable}
	c.Assert(room.Occupy(), qt.IsNil)
	c.Assert(room.Status, qt.Equals, RoomStatusAvailable)
	c.Assert(room.Occupy(), qt.IsNil)
	c.Assert(room.Status, qt.Equals, RoomStatusOccupied)
	c.Assert(room.Occupy(), qt.Equals, ErrRoomFull)

	c.Assert(room.Release(), qt.IsNil)
	c.Assert(room.CurrentOccupancy, qt.Equals, 1)
	c.Assert(room.Status, qt.Equals, RoomStatusAvailable)
	c.Assert(room.Release(), qt.IsNil)
	c.Assert(room.Release(), qt.Equals, ErrRoomEmpty)
}

func TestRoomMaintenanceRefusesOccupants(t *testing.T) {
	c := qt.New(t)

	room := Room{RoomNumber: 102, Capacity: 3, CurrentOccupancy: 1, Status: RoomStatusMaintenance}
	c.Assert(room.Occupy(), qt.Equals, ErrRoomInMaintenance)
	c.Assert(room.Release(), qt.IsNil)
	c.Assert(room.Status, qt.Equals, RoomStatusMaintenance)
}

func TestFirstOfMonth(t *testing.T) {
	c := qt.New(t)

	d, err := FirstOfMonth("2024-03")
	c.Assert(err, qt.IsNil)
	c.Assert(FormatDate(d), qt.Equals, "2024-03-01")

	_, err = FirstOfMonth("March 2024")
	c.Assert(err, qt.Not(qt.IsNil))
	_, err = FirstOfMonth("2024-13")
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestFeeOverdue(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	due, _ := FirstOfMonth("2024-03")
	fee := Fee{Status: FeeStatusPending, DueDate: due}
	c.Assert(fee.IsOverdue(now), qt.IsTrue)

	fee.DueDate = DateOf(now)
	c.Assert(fee.IsOverdue(now), qt.IsFalse)

	fee.DueDate = due
	fee.MarkPaid(now)
	c.Assert(fee.IsOverdue(now), qt.IsFalse)
	c.Assert(FormatDate(*fee.PaidDate), qt.Equals, "2024-03-15")
}

func TestScheduledTaskNextDue(t *testing.T) {
	c := qt.New(t)
	due := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	monthly := "FREQ=MONTHLY;BYMONTHDAY=1"

	tests := []struct {
		name     string
		task     ScheduledTask
		now      time.Time
		expected time.Time
	}{
		{
			name:     "one-time keeps due",
			task:     ScheduledTask{TaskType: ScheduledTaskTypeOneTime, Due: due},
			now:      due.Add(time.Hour),
			expected: due,
		},
		{
			name:     "monthly advances to next first of month",
			task:     ScheduledTask{TaskType: ScheduledTaskTypeRecurring, Due: due, RecurringInterval: &monthly},
			now:      due.Add(time.Hour),
			expected: time.Date(2024, 2, 1, 6, 0, 0, 0, time.UTC),
		},
		{
			name:     "monthly skips missed months",
			task:     ScheduledTask{TaskType: ScheduledTaskTypeRecurring, Due: due, RecurringInterval: &monthly},
			now:      time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			c.Assert(tt.task.NextDue(tt.now), qt.Equals, tt.expected)
		})
	}
}

func TestComplaintStatus(t *testing.T) {
	c := qt.New(t)
	now := time.Now()

	var complaint Complaint
	complaint.SetStatus(ComplaintStatusResolved, now)
	c.Assert(complaint.ResolvedAt, qt.Not(qt.IsNil))
	complaint.SetStatus(ComplaintStatusInProgress, now)
	c.Assert(complaint.ResolvedAt, qt.IsNil)
}

func TestWeekdayOrder(t *testing.T) {
	c := qt.New(t)
	c.Assert(WeekdayOrder("monday"), qt.Equals, 1)
	c.Assert(WeekdayOrder("sunday"), qt.Equals, 7)
	c.Assert(WeekdayOrder("funday"), qt.Equals, 0)
}
