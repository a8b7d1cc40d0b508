package windows

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pufftown/delivery-backend/internal/models"
	"github.com/pufftown/delivery-backend/internal/testutil"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in     string
		hour   int
		minute int
	}{
		{"17:00", 17, 0},
		{"5:00 PM", 17, 0},
		{"5:00PM", 17, 0},
		{"5:30 pm", 17, 30},
		{"12:00 PM", 12, 0},
		{"12:00 AM", 0, 0},
		{"00:15", 0, 15},
		{"9:05 AM", 9, 5},
		{"23:59", 23, 59},
	}
	for _, tc := range cases {
		h, m, err := ParseClock(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.hour, h, tc.in)
		require.Equal(t, tc.minute, m, tc.in)
	}

	for _, bad := range []string{"", "25:00", "13:00 PM", "0:00 AM", "12:60", "noon"} {
		_, _, err := ParseClock(bad)
		require.Error(t, err, bad)
	}
}

func TestGenerateFromTemplatesIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := &Service{DB: db, Loc: time.UTC}

	now := time.Now().UTC()
	require.NoError(t, db.Create(&models.WeeklyDeliveryTemplate{
		DayOfWeek: int(now.Weekday()),
		StartTime: "17:00",
		EndTime:   "22:00",
		Capacity:  10,
		Enabled:   true,
	}).Error)
	require.NoError(t, db.Create(&models.WeeklyDeliveryTemplate{
		DayOfWeek: int(now.AddDate(0, 0, 1).Weekday()),
		StartTime: "12:00",
		EndTime:   "15:00",
		Capacity:  5,
		Enabled:   false, // disabled templates are never expanded
	}).Error)

	res, err := svc.GenerateFromTemplates(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created) // one enabled template, one matching day in 7
	require.Equal(t, 0, res.Skipped)

	res, err = svc.GenerateFromTemplates(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, 0, res.Created)
	require.Equal(t, 1, res.Skipped)

	var count int64
	require.NoError(t, db.Model(&models.DeliveryWindow{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestGenerateCreatesUpcomingWeekday(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := &Service{DB: db, Loc: time.UTC}

	// Template two days out; daysAhead=4 must cover it exactly once.
	target := time.Now().UTC().AddDate(0, 0, 2)
	require.NoError(t, db.Create(&models.WeeklyDeliveryTemplate{
		DayOfWeek: int(target.Weekday()),
		StartTime: "17:00",
		EndTime:   "22:00",
		Capacity:  10,
		Enabled:   true,
	}).Error)

	res, err := svc.GenerateFromTemplates(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)

	var w models.DeliveryWindow
	require.NoError(t, db.First(&w).Error)
	require.Equal(t, target.Format("2006-01-02"), w.Date)
	require.Equal(t, "17:00", w.StartTime)
	require.Equal(t, "22:00", w.EndTime)
	require.Equal(t, 10, w.Capacity)
	require.Equal(t, 0, w.CurrentBookings)
}

func TestIsClosedLeadTime(t *testing.T) {
	svc := &Service{Loc: time.UTC}
	now := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)

	w := &models.DeliveryWindow{Date: "2026-08-28", StartTime: "17:00", EndTime: "22:00"}
	require.False(t, svc.IsClosed(w, now)) // 1.5h out, still open

	require.True(t, svc.IsClosed(w, now.Add(31*time.Minute))) // 59m out
	require.True(t, svc.IsClosed(w, now.Add(30*time.Minute))) // exactly 1h out closes

	// 12-hour start times parse the same way.
	w12 := &models.DeliveryWindow{Date: "2026-08-28", StartTime: "5:00 PM", EndTime: "10:00 PM"}
	require.False(t, svc.IsClosed(w12, now))
	require.True(t, svc.IsClosed(w12, now.Add(time.Hour)))

	// Garbage time data never offers the slot.
	bad := &models.DeliveryWindow{Date: "2026-08-28", StartTime: "late", EndTime: "later"}
	require.True(t, svc.IsClosed(bad, now))
}

func TestBookable(t *testing.T) {
	svc := &Service{Loc: time.UTC}
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	w := &models.DeliveryWindow{
		Date: "2026-08-28", StartTime: "17:00", EndTime: "22:00",
		Capacity: 2, CurrentBookings: 1, Enabled: true,
	}
	require.True(t, svc.Bookable(w, now))

	w.CurrentBookings = 2
	require.False(t, svc.Bookable(w, now))

	w.CurrentBookings = 0
	w.Enabled = false
	require.False(t, svc.Bookable(w, now))
}
