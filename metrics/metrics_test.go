package metrics

import (
	"errors"
	"regexp"
	"testing"

	"github.com/ethereum-optimism/infra/op-recorder/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordCase(t *testing.T) {
	before := testutil.ToFloat64(casesTotal.WithLabelValues(string(types.StatusBroken)))
	RecordCase(types.StatusBroken)
	assert.Equal(t, before+1, testutil.ToFloat64(casesTotal.WithLabelValues(string(types.StatusBroken))))

	// Invalid statuses are rejected rather than creating a new series.
	RecordCase(types.Status("pass"))
	assert.Equal(t, 0.0, testutil.ToFloat64(casesTotal.WithLabelValues("pass")))
}

func TestRecordCounters(t *testing.T) {
	before := testutil.ToFloat64(eventsTotal.WithLabelValues("test-start"))
	RecordEvent("test-start")
	RecordEvent("test-start")
	assert.Equal(t, before+2, testutil.ToFloat64(eventsTotal.WithLabelValues("test-start")))

	before = testutil.ToFloat64(containersTotal.WithLabelValues(ContainerFixture))
	RecordContainer(ContainerFixture)
	assert.Equal(t, before+1, testutil.ToFloat64(containersTotal.WithLabelValues(ContainerFixture)))

	before = testutil.ToFloat64(contextRefreshesTotal.WithLabelValues("test-start"))
	RecordContextRefresh("test-start")
	assert.Equal(t, before+1, testutil.ToFloat64(contextRefreshesTotal.WithLabelValues("test-start")))
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
	RecordErrorDetails("pairing", errors.New("no container"))
	RecordErrorDetails("pairing", nil)
}
