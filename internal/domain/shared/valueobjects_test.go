package shared

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid snowflake", input: "123456789012345678", wantErr: false},
		{name: "too short", input: "12345", wantErr: true},
		{name: "non-numeric", input: "not-a-snowflake", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUserID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCategoryID_IsRootAndIsValid(t *testing.T) {
	assert.True(t, CategoryID(0).IsRoot())
	assert.False(t, CategoryID(0).IsValid())
	assert.False(t, CategoryID(5).IsRoot())
	assert.True(t, CategoryID(5).IsValid())
}

func TestPoints_Add_CapsAtMax(t *testing.T) {
	p := Points(MaxPoints - 1)
	result := p.Add(10)
	assert.Equal(t, MaxPoints, result)
}

func TestNewPoints(t *testing.T) {
	_, err := NewPoints(-1)
	assert.Error(t, err)

	capped, err := NewPoints(int(MaxPoints) + 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxPoints, capped)
}

func TestCategoryDepth_Child_RejectsBeyondMax(t *testing.T) {
	_, err := MaxCategoryDepth.Child()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDepthExceeded))

	next, err := CategoryDepth(0).Child()
	require.NoError(t, err)
	assert.Equal(t, CategoryDepth(1), next)
}

func TestProgressValue_ReachesTargetAndPercentOf(t *testing.T) {
	tests := []struct {
		name    string
		value   ProgressValue
		target  ProgressValue
		reaches bool
		percent int
	}{
		{name: "below target", value: 5, target: 10, reaches: false, percent: 50},
		{name: "exact target", value: 10, target: 10, reaches: true, percent: 100},
		{name: "above target capped at 100", value: 20, target: 10, reaches: true, percent: 100},
		{name: "zero target is always complete", value: 0, target: 0, reaches: true, percent: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reaches, tt.value.ReachesTarget(tt.target))
			assert.Equal(t, tt.percent, tt.value.PercentOf(tt.target))
		})
	}
}

func TestNewProgressValue_RejectsNegative(t *testing.T) {
	_, err := NewProgressValue(-1)
	assert.Error(t, err)

	v, err := NewProgressValue(3.5)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v.Float64())
}

func TestTimeRange_Contains(t *testing.T) {
	now := time.Now()
	tr, err := NewTimeRange(now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	assert.True(t, tr.Contains(now))
	assert.False(t, tr.Contains(now.Add(2*time.Hour)))
}

func TestNewTimeRange_RejectsFromAfterTo(t *testing.T) {
	now := time.Now()
	_, err := NewTimeRange(now, now.Add(-time.Hour))
	assert.Error(t, err)
}

func TestPagination_OffsetAndLimit(t *testing.T) {
	tests := []struct {
		name       string
		page       int
		pageSize   int
		wantOffset int
		wantLimit  int
	}{
		{name: "first page defaults", page: 1, pageSize: 0, wantOffset: 0, wantLimit: DefaultPageSize},
		{name: "second page", page: 2, pageSize: 10, wantOffset: 10, wantLimit: 10},
		{name: "page size capped at max", page: 1, pageSize: MaxPageSize + 50, wantOffset: 0, wantLimit: MaxPageSize},
		{name: "non-positive page treated as zero offset", page: 0, pageSize: 10, wantOffset: 0, wantLimit: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination(tt.page, tt.pageSize)
			assert.Equal(t, tt.wantOffset, p.Offset())
			assert.Equal(t, tt.wantLimit, p.Limit())
		})
	}
}
