// Package timeutil provides UTC-based day/week/month boundary helpers and
// streak calculations used by the scheduler's digest jobs and the
// time-based/streak achievement evaluators.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// Now returns the current time in UTC. Every helper in this package treats
// its inputs as UTC-normalized first, so callers never need to carry a
// timezone through the achievement engine.
func Now() time.Time {
	return time.Now().UTC()
}

// StartOfDay returns 00:00:00 UTC on t's calendar day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59.999999999 UTC on t's calendar day.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999999999, time.UTC)
}

// StartOfWeek returns Monday 00:00:00 UTC of t's week.
func StartOfWeek(t time.Time) time.Time {
	u := t.UTC()
	weekday := int(u.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	daysToSubtract := weekday - 1 // Monday = 1
	return StartOfDay(u.AddDate(0, 0, -daysToSubtract))
}

// EndOfWeek returns Sunday 23:59:59 UTC of t's week.
func EndOfWeek(t time.Time) time.Time {
	start := StartOfWeek(t)
	return EndOfDay(start.AddDate(0, 0, 6))
}

// StartOfMonth returns the first instant of t's calendar month, UTC.
func StartOfMonth(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last instant of t's calendar month, UTC.
func EndOfMonth(t time.Time) time.Time {
	start := StartOfMonth(t)
	return EndOfDay(start.AddDate(0, 1, -1))
}

// IsToday reports whether t falls on today's UTC calendar day.
func IsToday(t time.Time) bool {
	return IsSameDay(t, Now())
}

// IsYesterday reports whether t falls on yesterday's UTC calendar day.
func IsYesterday(t time.Time) bool {
	return IsSameDay(t, Now().AddDate(0, 0, -1))
}

// IsThisWeek reports whether t falls within the current UTC week.
func IsThisWeek(t time.Time) bool {
	now := Now()
	weekStart := StartOfWeek(now)
	weekEnd := EndOfWeek(now)
	u := t.UTC()
	return !u.Before(weekStart) && !u.After(weekEnd)
}

// DaysSince returns the number of whole calendar days between t and now.
func DaysSince(t time.Time) int {
	now := StartOfDay(Now())
	then := StartOfDay(t)
	return int(now.Sub(then).Hours() / 24)
}

// Common timestamp formats used across logs and digest rendering.
const (
	FormatDate            = "2006-01-02"
	FormatTime            = "15:04"
	FormatDateTime        = "2006-01-02 15:04"
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
	FormatHumanDate       = "2 January 2006"
	FormatShortDate       = "Jan 2"
)

// FormatDateStr formats t as a UTC date string (YYYY-MM-DD).
func FormatDateStr(t time.Time) string {
	return t.UTC().Format(FormatDate)
}

// FormatTimeStr formats t as a UTC time string (HH:MM).
func FormatTimeStr(t time.Time) string {
	return t.UTC().Format(FormatTime)
}

// FormatDateTimeStr formats t as a UTC datetime string.
func FormatDateTimeStr(t time.Time) string {
	return t.UTC().Format(FormatDateTime)
}

// FormatRelative returns a short human-readable relative time string, e.g.
// "3h ago" or "in 2d", used for notification timestamps and digest entries.
func FormatRelative(t time.Time) string {
	now := Now()
	u := t.UTC()
	duration := now.Sub(u)

	if duration < 0 {
		return formatFutureDuration(-duration)
	}
	return formatPastDuration(duration)
}

func formatPastDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "yesterday"
		}
		return fmt.Sprintf("%dd ago", days)
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	default:
		months := int(d.Hours() / 24 / 30)
		if months < 12 {
			return fmt.Sprintf("%dmo ago", months)
		}
		return fmt.Sprintf("%dy ago", months/12)
	}
}

func formatFutureDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %dh", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "tomorrow"
		}
		return fmt.Sprintf("in %dd", days)
	}
}

// ParseDate parses a UTC date string (YYYY-MM-DD).
func ParseDate(value string) (time.Time, error) {
	return time.Parse(FormatDate, value)
}

// ParseDateTime parses a UTC datetime string.
func ParseDateTime(value string) (time.Time, error) {
	return time.Parse(FormatDateTime, value)
}

// Streak helpers, used by the time-based/conditional evaluators to decide
// whether a run of qualifying events is still consecutive.

// IsSameDay reports whether t1 and t2 fall on the same UTC calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := t1.UTC(), t2.UTC()
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// IsConsecutiveDay reports whether t2 is the UTC calendar day after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	nextDay := t1.UTC().AddDate(0, 0, 1)
	return IsSameDay(nextDay, t2)
}

// DaysBetween returns the absolute number of calendar days between t1 and t2.
func DaysBetween(t1, t2 time.Time) int {
	a1 := StartOfDay(t1)
	a2 := StartOfDay(t2)
	days := int(a2.Sub(a1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// Quiet-hours helpers for the notification router: a guild's
// GlobalNotificationSettings carries a quiet-hours window, and these
// helpers compare a candidate send time against it.

// IsWithinHourRange reports whether t's UTC hour falls in [startHour, endHour).
// endHour may be less than startHour to express a window that wraps past
// midnight (e.g. 22-6 for quiet hours overnight).
func IsWithinHourRange(t time.Time, startHour, endHour int) bool {
	hour := t.UTC().Hour()
	if startHour <= endHour {
		return hour >= startHour && hour < endHour
	}
	return hour >= startHour || hour < endHour
}

// NextHour returns the next time t's UTC clock reaches targetHour:00,
// advancing to the following day if t is already past that hour today.
func NextHour(t time.Time, targetHour int) time.Time {
	u := t.UTC()
	candidate := time.Date(u.Year(), u.Month(), u.Day(), targetHour, 0, 0, 0, time.UTC)
	if !candidate.After(u) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
