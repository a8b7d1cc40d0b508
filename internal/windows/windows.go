// Package windows expands weekly delivery templates into concrete bookable
// delivery windows and derives per-read availability.
package windows

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pufftown/delivery-backend/internal/logging"
	"github.com/pufftown/delivery-backend/internal/models"
)

const dateLayout = "2006-01-02"

// Lead time before a window's start after which it can no longer be booked.
const closeLeadTime = time.Hour

type Service struct {
	DB  *gorm.DB
	Loc *time.Location
}

func (s *Service) location() *time.Location {
	if s.Loc != nil {
		return s.Loc
	}
	return time.Local
}

type GenerateResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// GenerateFromTemplates creates windows for today plus daysAhead further
// days. Idempotent: a window with the same date, start and end time is
// counted as skipped, never duplicated, so this runs safely on every
// startup.
func (s *Service) GenerateFromTemplates(ctx context.Context, daysAhead int) (GenerateResult, error) {
	l := logging.FromContext(ctx).With("job", "generate_windows")

	var templates []models.WeeklyDeliveryTemplate
	if err := s.DB.WithContext(ctx).Where("enabled = ?", true).Find(&templates).Error; err != nil {
		return GenerateResult{}, err
	}

	byWeekday := make(map[int][]models.WeeklyDeliveryTemplate)
	for _, t := range templates {
		byWeekday[t.DayOfWeek] = append(byWeekday[t.DayOfWeek], t)
	}

	var res GenerateResult
	today := time.Now().In(s.location())
	for d := 0; d <= daysAhead; d++ {
		day := today.AddDate(0, 0, d)
		date := day.Format(dateLayout)

		for _, tpl := range byWeekday[int(day.Weekday())] {
			var count int64
			err := s.DB.WithContext(ctx).
				Model(&models.DeliveryWindow{}).
				Where("date = ? AND start_time = ? AND end_time = ?", date, tpl.StartTime, tpl.EndTime).
				Count(&count).Error
			if err != nil {
				return res, err
			}
			if count > 0 {
				res.Skipped++
				continue
			}

			w := models.DeliveryWindow{
				Date:      date,
				StartTime: tpl.StartTime,
				EndTime:   tpl.EndTime,
				Capacity:  tpl.Capacity,
				Enabled:   true,
			}
			if err := s.DB.WithContext(ctx).Create(&w).Error; err != nil {
				return res, err
			}
			res.Created++
		}
	}

	l.Info("windows_generated", "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

// StartInstant combines a window's date and start time into a concrete
// instant in the service location.
func (s *Service) StartInstant(w *models.DeliveryWindow) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, w.Date, s.location())
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ParseClock(w.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute), nil
}

// IsClosed reports whether the window can no longer be booked: closed once
// now plus the lead time reaches the window's start. Derived per read, never
// stored.
func (s *Service) IsClosed(w *models.DeliveryWindow, now time.Time) bool {
	start, err := s.StartInstant(w)
	if err != nil {
		// Unparseable window data closes the window rather than
		// offering a slot nobody can deliver in.
		return true
	}
	return !now.Add(closeLeadTime).Before(start)
}

// Bookable reports whether the window accepts a new booking right now.
func (s *Service) Bookable(w *models.DeliveryWindow, now time.Time) bool {
	return w.Enabled && w.CurrentBookings < w.Capacity && !s.IsClosed(w, now)
}

// WindowView is a DeliveryWindow with the derived closed flag attached for
// API responses.
type WindowView struct {
	models.DeliveryWindow
	Closed bool `json:"closed"`
}

// ListUpcoming returns enabled windows from today forward with the derived
// closed flag.
func (s *Service) ListUpcoming(ctx context.Context) ([]WindowView, error) {
	now := time.Now().In(s.location())
	today := now.Format(dateLayout)

	var ws []models.DeliveryWindow
	err := s.DB.WithContext(ctx).
		Where("enabled = ? AND date >= ?", true, today).
		Order("date ASC, start_time ASC").
		Find(&ws).Error
	if err != nil {
		return nil, err
	}

	views := make([]WindowView, len(ws))
	for i := range ws {
		views[i] = WindowView{DeliveryWindow: ws[i], Closed: s.IsClosed(&ws[i], now)}
	}
	return views, nil
}
