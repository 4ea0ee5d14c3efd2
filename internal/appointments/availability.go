package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/mundos-engagement/internal/apperr"
	"github.com/wolfman30/mundos-engagement/internal/docstore"
)

const (
	firstSlotMinute = 9 * 60
	lastSlotMinute  = 16*60 + 30
	slotLength      = 30 * time.Minute
)

type interval struct {
	start, end time.Time
}

func (i interval) overlaps(o interval) bool {
	return i.start.Before(o.end) && o.start.Before(i.end)
}

// Availability returns the open slot start times ("15:04") for every weekday
// of the month, keyed by date. Slots overlapping a booked appointment are
// left out. serviceID is accepted for API compatibility; all services share
// one calendar.
func (s *Service) Availability(ctx context.Context, month, year int, serviceID string) (map[string][]string, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.availability")
	defer span.End()

	if month < 1 || month > 12 {
		return nil, apperr.InvalidArgument("month must be between 1 and 12")
	}
	if year < 2000 {
		return nil, apperr.InvalidArgument("year must be 2000 or later")
	}

	monthStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, s.loc)
	monthEnd := monthStart.AddDate(0, 1, 0)
	busy, err := s.bookedIntervals(ctx, interval{start: monthStart, end: monthEnd})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	days := make(map[string][]string)
	for day := monthStart; day.Before(monthEnd); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		slots := []string{}
		for minute := firstSlotMinute; minute <= lastSlotMinute; minute += int(slotLength / time.Minute) {
			start := time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, s.loc)
			slot := interval{start: start, end: start.Add(slotLength)}
			if !overlapsAny(slot, busy) {
				slots = append(slots, start.Format("15:04"))
			}
		}
		days[day.Format(dateOnly)] = slots
	}
	return days, nil
}

func (s *Service) bookedIntervals(ctx context.Context, window interval) ([]interval, error) {
	docs, err := s.store.Find(ctx, Collection, docstore.Where(docstore.Eq("status", string(StatusBooked))))
	if err != nil {
		return nil, fmt.Errorf("appointments: load bookings: %w", err)
	}
	var busy []interval
	for _, doc := range docs {
		var rec stored
		if err := docstore.Decode(doc, &rec); err != nil {
			continue
		}
		at, _, err := parseTime(rec.AppointmentDate, s.loc)
		if err != nil {
			continue
		}
		duration := rec.DurationMinutes
		if duration < 1 {
			duration = DefaultDurationMinutes
		}
		appt := interval{start: at, end: at.Add(time.Duration(duration) * time.Minute)}
		if appt.overlaps(window) {
			busy = append(busy, appt)
		}
	}
	return busy, nil
}

func overlapsAny(slot interval, busy []interval) bool {
	for _, b := range busy {
		if slot.overlaps(b) {
			return true
		}
	}
	return false
}
