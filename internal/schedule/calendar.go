// Package schedule holds the booking-calendar policy: per-day availability
// classification and the generation of bookable time slots. Everything here is
// a pure function of its inputs so the rules can be exercised without a
// database.
package schedule

import "time"

type DayStatus string

const (
	// DayPast marks dates strictly before today.
	DayPast DayStatus = "past"
	// DayUnavailable marks weekends and admin-blocked dates.
	DayUnavailable DayStatus = "unavailable"
	DayFull        DayStatus = "full"
	DayLimited     DayStatus = "limited"
	DayAvailable   DayStatus = "available"
)

// limitedSlotsThreshold is the fixed low-water mark: a day with this many or
// fewer remaining slots (but at least one) is flagged DayLimited.
const limitedSlotsThreshold = 3

// Settings is the schedule policy in effect: the working-hours window, the
// slot interval, and the default per-day booking capacity. It is loaded from
// the settings table (falling back to config defaults) and passed in
// explicitly wherever availability is computed.
type Settings struct {
	WorkdayStart    TimeOfDay
	WorkdayEnd      TimeOfDay
	SlotInterval    int // minutes between consecutive slots
	DefaultCapacity int
}

// DayInput carries everything needed to classify a single calendar day for
// one health worker.
type DayInput struct {
	Date    time.Time
	Today   time.Time
	Blocked bool // admin block-out of this date
	// Override is the per-date capacity override, nil when none is set.
	Override *int
	// Booked is the count of non-cancelled appointments on this date.
	Booked int
}

// DayAvailability is the classification result for one day.
type DayAvailability struct {
	Date      time.Time
	Status    DayStatus
	Capacity  int
	Remaining int
}

// ClassifyDay classifies one calendar day. Precedence: past, then weekend,
// then explicit block-out, then capacity accounting. A capacity override
// never reopens a weekend or blocked date.
func ClassifyDay(in DayInput, s Settings) DayAvailability {
	out := DayAvailability{Date: in.Date}

	// Date and Today may carry different locations (dates are parsed as UTC
	// midnights, Today is wall-clock time), so compare calendar days, not
	// instants.
	if beforeDay(in.Date, in.Today) {
		out.Status = DayPast
		return out
	}

	if wd := in.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		out.Status = DayUnavailable
		return out
	}

	if in.Blocked {
		out.Status = DayUnavailable
		return out
	}

	capacity := s.DefaultCapacity
	if in.Override != nil {
		capacity = *in.Override
	}

	remaining := capacity - in.Booked
	if remaining < 0 {
		// An admin can shrink capacity below the existing booking count;
		// the day simply reads as full.
		remaining = 0
	}

	out.Capacity = capacity
	out.Remaining = remaining

	switch {
	case remaining == 0:
		out.Status = DayFull
	case remaining <= limitedSlotsThreshold:
		out.Status = DayLimited
	default:
		out.Status = DayAvailable
	}

	return out
}

// SlotTimes generates the full ordered slot sequence for a working day,
// inclusive of the end boundary when it lands exactly on a step.
func (s Settings) SlotTimes() []TimeOfDay {
	if s.SlotInterval <= 0 || s.WorkdayEnd < s.WorkdayStart {
		return nil
	}

	var slots []TimeOfDay
	for t := s.WorkdayStart; t <= s.WorkdayEnd; t += TimeOfDay(s.SlotInterval) {
		slots = append(slots, t)
	}
	return slots
}

// FreeSlots returns the slot sequence minus any time already taken by a
// non-cancelled appointment, preserving ascending order.
func FreeSlots(s Settings, booked []TimeOfDay) []TimeOfDay {
	taken := make(map[TimeOfDay]struct{}, len(booked))
	for _, t := range booked {
		taken[t] = struct{}{}
	}

	var free []TimeOfDay
	for _, t := range s.SlotTimes() {
		if _, ok := taken[t]; !ok {
			free = append(free, t)
		}
	}
	return free
}

// beforeDay reports whether a's calendar date is strictly before b's, each
// read in its own location.
func beforeDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
