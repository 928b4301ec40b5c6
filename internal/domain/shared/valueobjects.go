// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// snowflakeRegex matches a Discord snowflake: a string of 17-20 decimal digits.
var snowflakeRegex = regexp.MustCompile(`^[0-9]{17,20}$`)

// UserID represents a unique Discord user identifier (snowflake).
type UserID string

// IsValid checks if the user ID is a well-formed snowflake.
func (u UserID) IsValid() bool {
	return snowflakeRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	u := UserID(strings.TrimSpace(id))
	if !u.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidInput, "invalid discord user id")
	}
	return u, nil
}

// GuildID represents a unique Discord guild (server) identifier.
type GuildID string

// IsValid checks if the guild ID is a well-formed snowflake.
func (g GuildID) IsValid() bool {
	return snowflakeRegex.MatchString(string(g))
}

// String returns the string representation.
func (g GuildID) String() string {
	return string(g)
}

// NewGuildID creates a new GuildID with validation.
func NewGuildID(id string) (GuildID, error) {
	g := GuildID(strings.TrimSpace(id))
	if !g.IsValid() {
		return "", NewDomainError("shared", "NewGuildID", ErrInvalidInput, "invalid discord guild id")
	}
	return g, nil
}

// CategoryID is a surrogate primary key for an achievement category.
// Zero is never a valid persisted ID; it is used as the sentinel for "no
// parent" (a root category).
type CategoryID int64

// IsValid checks that the ID is positive.
func (c CategoryID) IsValid() bool {
	return c > 0
}

// String returns the decimal string representation.
func (c CategoryID) String() string {
	return fmt.Sprintf("%d", int64(c))
}

// IsRoot reports whether this ID represents "no parent" (a root category).
func (c CategoryID) IsRoot() bool {
	return c == 0
}

// Int64 returns the underlying int64 value.
func (c CategoryID) Int64() int64 {
	return int64(c)
}

// AchievementID is a surrogate primary key for a catalog achievement.
type AchievementID int64

// IsValid checks that the ID is positive.
func (a AchievementID) IsValid() bool {
	return a > 0
}

// String returns the decimal string representation.
func (a AchievementID) String() string {
	return fmt.Sprintf("%d", int64(a))
}

// Int64 returns the underlying int64 value.
func (a AchievementID) Int64() int64 {
	return int64(a)
}

// ═══════════════════════════════════════════════════════════════════════════
// Points Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Points represents the reward value attached to an achievement.
type Points int

const (
	MinPoints Points = 0
	MaxPoints Points = 1_000_000
)

// IsValid checks if the point value is within the allowed range.
func (p Points) IsValid() bool {
	return p >= MinPoints && p <= MaxPoints
}

// Int returns the underlying int value.
func (p Points) Int() int {
	return int(p)
}

// Add adds points and returns the result, capped at MaxPoints.
func (p Points) Add(amount int) Points {
	result := Points(int(p) + amount)
	if result > MaxPoints {
		return MaxPoints
	}
	if result < MinPoints {
		return MinPoints
	}
	return result
}

// NewPoints creates a new Points value with validation.
func NewPoints(amount int) (Points, error) {
	if amount < int(MinPoints) {
		return 0, NewDomainError("shared", "NewPoints", ErrNegativeValue, "points cannot be negative")
	}
	if amount > int(MaxPoints) {
		return MaxPoints, nil
	}
	return Points(amount), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// CategoryDepth Value Object
// ═══════════════════════════════════════════════════════════════════════════

// CategoryDepth represents a category's nesting level within the catalog
// hierarchy. The root level is 0; MaxCategoryDepth bounds how deep a tree of
// nested categories is allowed to grow.
type CategoryDepth int

const (
	RootDepth        CategoryDepth = 0
	MaxCategoryDepth CategoryDepth = 9
)

// IsValid checks if the depth is within the allowed range.
func (d CategoryDepth) IsValid() bool {
	return d >= RootDepth && d <= MaxCategoryDepth
}

// Int returns the underlying int value.
func (d CategoryDepth) Int() int {
	return int(d)
}

// Child returns the depth one level below this one, along with whether doing
// so would exceed MaxCategoryDepth.
func (d CategoryDepth) Child() (CategoryDepth, error) {
	next := d + 1
	if next > MaxCategoryDepth {
		return d, NewDomainError("shared", "CategoryDepth.Child", ErrDepthExceeded, fmt.Sprintf("category depth cannot exceed %d", MaxCategoryDepth))
	}
	return next, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// ProgressValue Value Object
// ═══════════════════════════════════════════════════════════════════════════

// ProgressValue represents a tracked achievement counter or measurement. It is
// a float64 under the hood so TIME_BASED achievements can track fractional
// units (e.g. hours) alongside integer counters.
type ProgressValue float64

// IsValid checks that the value is non-negative.
func (v ProgressValue) IsValid() bool {
	return v >= 0
}

// Float64 returns the underlying float64 value.
func (v ProgressValue) Float64() float64 {
	return float64(v)
}

// ReachesTarget reports whether this value meets or exceeds target.
func (v ProgressValue) ReachesTarget(target ProgressValue) bool {
	return v >= target
}

// PercentOf returns the completion percentage toward target, capped at 100.
func (v ProgressValue) PercentOf(target ProgressValue) int {
	if target <= 0 {
		return 100
	}
	pct := int((float64(v) / float64(target)) * 100)
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// NewProgressValue creates a new ProgressValue with validation.
func NewProgressValue(value float64) (ProgressValue, error) {
	if value < 0 {
		return 0, NewDomainError("shared", "NewProgressValue", ErrNegativeValue, "progress value cannot be negative")
	}
	return ProgressValue(value), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a time period.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && !t.From.After(t.To)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Contains checks if a time is within the range.
func (t TimeRange) Contains(tm time.Time) bool {
	return (tm.Equal(t.From) || tm.After(t.From)) && (tm.Equal(t.To) || tm.Before(t.To))
}

// NewTimeRange creates a new TimeRange with validation.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	tr := TimeRange{From: from, To: to}
	if !tr.IsValid() {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrInvalidInput, "'from' must be before 'to'")
	}
	return tr, nil
}

// Today returns a TimeRange for today (local time).
func Today() TimeRange {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.Add(24 * time.Hour).Add(-time.Nanosecond)
	return TimeRange{From: start, To: end}
}

// Last24Hours returns a TimeRange for the last 24 hours.
func Last24Hours() TimeRange {
	now := time.Now()
	return TimeRange{
		From: now.Add(-24 * time.Hour),
		To:   now,
	}
}

// LastNDays returns a TimeRange for the last N days.
func LastNDays(n int) TimeRange {
	now := time.Now()
	return TimeRange{
		From: now.AddDate(0, 0, -n),
		To:   now,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(1, DefaultPageSize)
}
