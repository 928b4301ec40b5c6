package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBaseline_ParsesDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"operations": {"storage_read": "25ms", "award": "100ms"}}`), 0o644))

	baseline, err := LoadBaseline(path)
	require.NoError(t, err)
	assert.Equal(t, 25*time.Millisecond, baseline.Operations[OperationStorageRead])
	assert.Equal(t, 100*time.Millisecond, baseline.Operations[OperationAward])
}

func TestLoadBaseline_RejectsMalformedDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"operations": {"storage_read": "not-a-duration"}}`), 0o644))

	_, err := LoadBaseline(path)
	assert.Error(t, err)
}

func TestLoadBaseline_MissingFile(t *testing.T) {
	_, err := LoadBaseline(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDetector_EmitsRegressionWhenP95ExceedsThreshold(t *testing.T) {
	monitor := NewMonitor()
	monitor.Record(OperationStorageRead, 100*time.Millisecond, true)

	baseline := &Baseline{Operations: map[Operation]time.Duration{
		OperationStorageRead: 10 * time.Millisecond,
	}}

	detector := NewDetector(monitor, baseline, 2.0, 10*time.Millisecond)
	detector.Start()
	defer detector.Stop()

	select {
	case regression := <-detector.Regressions():
		assert.Equal(t, OperationStorageRead, regression.Operation)
		assert.Greater(t, regression.FactorOver, 2.0)
	case <-time.After(time.Second):
		t.Fatal("expected a regression to be detected")
	}
}

func TestDetector_NoRegressionWithinThreshold(t *testing.T) {
	monitor := NewMonitor()
	monitor.Record(OperationAward, 5*time.Millisecond, true)

	baseline := &Baseline{Operations: map[Operation]time.Duration{
		OperationAward: 10 * time.Millisecond,
	}}

	detector := NewDetector(monitor, baseline, 2.0, 10*time.Millisecond)
	detector.Start()
	defer detector.Stop()

	select {
	case regression := <-detector.Regressions():
		t.Fatalf("unexpected regression: %+v", regression)
	case <-time.After(50 * time.Millisecond):
	}
}

