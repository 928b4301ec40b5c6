package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression_RejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCronExpression("* * *")
	assert.Error(t, err)
}

func TestParseCronExpression_Wildcard(t *testing.T) {
	expr, err := ParseCronExpression(EveryMinute)
	require.NoError(t, err)
	assert.Len(t, expr.minutes, 60)
	assert.Len(t, expr.hours, 24)
}

func TestParseCronExpression_Step(t *testing.T) {
	expr, err := ParseCronExpression(Every15Minutes)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 15, 30, 45}, expr.minutes)
}

func TestParseCronExpression_SingleValueAndRange(t *testing.T) {
	expr, err := ParseCronExpression(EveryDay9AM)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, expr.minutes)
	assert.Equal(t, []int{9}, expr.hours)

	expr, err = ParseCronExpression("0 9-11 * * *")
	require.NoError(t, err)
	assert.Equal(t, []int{9, 10, 11}, expr.hours)
}

func TestParseCronExpression_List(t *testing.T) {
	expr, err := ParseCronExpression("0 9,12,18 * * *")
	require.NoError(t, err)
	assert.Equal(t, []int{9, 12, 18}, expr.hours)
}

func TestParseCronExpression_RejectsOutOfRangeValue(t *testing.T) {
	_, err := ParseCronExpression("0 25 * * *")
	assert.Error(t, err)
}

func TestCronExpression_Next_FindsExactMinuteMatch(t *testing.T) {
	expr, err := ParseCronExpression(EveryDayMidnight)
	require.NoError(t, err)

	from := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	next := expr.Next(from)

	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 0, next.Minute())
	assert.True(t, next.After(from))
}

func TestCronExpression_Next_SkipsToNextMatchingHour(t *testing.T) {
	expr, err := ParseCronExpression(EveryHour)
	require.NoError(t, err)

	from := time.Date(2026, 7, 30, 10, 30, 0, 0, time.UTC)
	next := expr.Next(from)

	assert.Equal(t, 11, next.Hour())
	assert.Equal(t, 0, next.Minute())
}

func TestMustParseCronExpression_PanicsOnInvalidExpression(t *testing.T) {
	assert.Panics(t, func() {
		MustParseCronExpression("not a cron expression")
	})
}

func TestIntervalSchedule_Next(t *testing.T) {
	sched := NewIntervalSchedule(time.Hour)
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(time.Hour), sched.Next(now))
	assert.Equal(t, "@every 1h0m0s", sched.String())
}
