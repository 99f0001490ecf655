package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseSlotStart reads the start of a slot such as "7:00-8:00" or "7:30 PM - 8:30 PM".
func ParseSlotStart(slot string) (hour, minute int, err error) {
	start := strings.TrimSpace(strings.SplitN(slot, "-", 2)[0])
	if start == "" {
		return 0, 0, fmt.Errorf("empty time slot")
	}

	upper := strings.ToUpper(start)
	meridiem := ""
	switch {
	case strings.HasSuffix(upper, "AM"):
		meridiem = "AM"
	case strings.HasSuffix(upper, "PM"):
		meridiem = "PM"
	}
	if meridiem != "" {
		start = strings.TrimSpace(start[:len(start)-2])
	}

	parts := strings.SplitN(start, ":", 2)
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid slot hour %q: %w", slot, err)
	}
	if len(parts) == 2 {
		minute, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid slot minute %q: %w", slot, err)
		}
	}

	switch meridiem {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour < 12 {
			hour += 12
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("slot start out of range: %q", slot)
	}
	return hour, minute, nil
}

// NormalizeSlotStart renders the slot start as "HH:MM".
func NormalizeSlotStart(slot string) (string, error) {
	h, m, err := ParseSlotStart(slot)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// ParseDate parses a YYYY-MM-DD civil date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d.UTC(), nil
}

// DateOf truncates t to its civil date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a civil date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// SlotInstant combines a civil date and slot into the UTC instant the slot starts,
// reading the wall clock in loc.
func SlotInstant(date time.Time, slot string, loc *time.Location) (time.Time, error) {
	h, m, err := ParseSlotStart(slot)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, 0, 0, loc).UTC(), nil
}
