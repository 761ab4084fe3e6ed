package icinga

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serviceBody(states ...any) string {
	result := make([]map[string]any, 0, len(states))
	for _, s := range states {
		result = append(result, map[string]any{
			"SERVICE_NAME":          "check",
			"SERVICE_CURRENT_STATE": s,
		})
	}
	b, _ := json.Marshal(map[string]any{"result": result})
	return string(b)
}

func counts(s Summary) map[string]int {
	out := make(map[string]int)
	for _, l := range s.Labels() {
		out[l] = s.Count(l)
	}
	return out
}

func TestSummarize_EmptyResult(t *testing.T) {
	for _, states := range []StateSet{ServiceStates, HostStates} {
		sum, err := Summarize(`{"result": []}`, states)
		require.NoError(t, err)

		for _, l := range states.Labels {
			assert.Equal(t, 0, sum.Count(l), l)
		}
		assert.Equal(t, "0 / 0", sum.TotalValue())
	}
}

func TestSummarize_EmptyBodyIsZeroCounts(t *testing.T) {
	empty, err := Summarize(`{"result": []}`, ServiceStates)
	require.NoError(t, err)

	for _, body := range []string{"", "  \n"} {
		sum, err := Summarize(body, ServiceStates)
		require.NoError(t, err)
		assert.Equal(t, counts(empty), counts(sum))
		assert.Equal(t, empty.TotalValue(), sum.TotalValue())
	}
}

func TestSummarize_AllHealthy(t *testing.T) {
	sum, err := Summarize(serviceBody(0, 0, 0, 0), ServiceStates)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Count("OK"))
	assert.Equal(t, "0 / 4", sum.TotalValue())
}

func TestSummarize_MixedServiceStates(t *testing.T) {
	sum, err := Summarize(serviceBody(2, 0, 2, 0, 2), ServiceStates)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		"OK":       2,
		"WARNING":  0,
		"CRITICAL": 3,
		"UNKNOWN":  0,
	}, counts(sum))
	assert.Equal(t, 3, sum.Errors())
	assert.Equal(t, 5, sum.Total())
	assert.Equal(t, "3 / 5", sum.TotalValue())
}

func TestSummarize_PermutationInvariant(t *testing.T) {
	a, err := Summarize(serviceBody(0, 1, 2, 3, 2, 1), ServiceStates)
	require.NoError(t, err)
	b, err := Summarize(serviceBody(1, 2, 3, 0, 1, 2), ServiceStates)
	require.NoError(t, err)

	assert.Equal(t, counts(a), counts(b))
	assert.Equal(t, a.TotalValue(), b.TotalValue())
}

func TestSummarize_StringStateValues(t *testing.T) {
	sum, err := Summarize(serviceBody("1", "3", "0"), ServiceStates)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Count("WARNING"))
	assert.Equal(t, 1, sum.Count("UNKNOWN"))
	assert.Equal(t, "2 / 3", sum.TotalValue())
}

func TestSummarize_HostStatesUseHostField(t *testing.T) {
	body := `{"result": [
		{"HOST_NAME": "a", "HOST_CURRENT_STATE": "0"},
		{"HOST_NAME": "b", "HOST_CURRENT_STATE": "1"},
		{"HOST_NAME": "c", "HOST_CURRENT_STATE": 2}
	]}`

	sum, err := Summarize(body, HostStates)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"UP": 1, "DOWN": 1, "UNREACHABLE": 1, "PENDING": 0}, counts(sum))
	assert.Equal(t, "2 / 3", sum.TotalValue())
}

func TestSummarize_HealthyLabelNotPositional(t *testing.T) {
	states := StateSet{
		Labels:  []string{"BAD", "GOOD"},
		Healthy: "GOOD",
		Field:   "S",
	}
	sum, err := Summarize(`{"result":[{"S":0},{"S":1},{"S":1}]}`, states)
	require.NoError(t, err)
	assert.Equal(t, "1 / 3", sum.TotalValue())
}

func TestSummarize_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"not json", "<html>oops</html>", ErrMalformedPayload},
		{"missing result", `{"data": []}`, ErrMalformedPayload},
		{"null result", `{"result": null}`, ErrMalformedPayload},
		{"result not array", `{"result": {"a": 1}}`, ErrMalformedPayload},
		{"top level array", `[]`, ErrMalformedPayload},
		{"missing state field", `{"result": [{"SERVICE_NAME": "x"}]}`, ErrMalformedPayload},
		{"non numeric state", `{"result": [{"SERVICE_CURRENT_STATE": "high"}]}`, ErrMalformedPayload},
		{"boolean state", `{"result": [{"SERVICE_CURRENT_STATE": true}]}`, ErrMalformedPayload},
		{"index too large", serviceBody(0, 4), ErrStateOutOfRange},
		{"negative index", serviceBody(-1), ErrStateOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Summarize(tt.body, ServiceStates)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSummarize_InvalidStateSet(t *testing.T) {
	tests := []struct {
		name   string
		states StateSet
	}{
		{"no labels", StateSet{Healthy: "OK", Field: "F"}},
		{"no field", StateSet{Labels: []string{"OK"}, Healthy: "OK"}},
		{"healthy missing", StateSet{Labels: []string{"OK"}, Healthy: "UP", Field: "F"}},
		{"duplicate label", StateSet{Labels: []string{"OK", "OK"}, Healthy: "OK", Field: "F"}},
		{"reserved label", StateSet{Labels: []string{"OK", "Total"}, Healthy: "OK", Field: "F"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Summarize(`{"result": []}`, tt.states)
			assert.Error(t, err)
		})
	}
}

func TestSummary_MarshalJSON(t *testing.T) {
	sum, err := Summarize(serviceBody(2, 0, 2, 0, 2), ServiceStates)
	require.NoError(t, err)

	b, err := json.Marshal(sum)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"OK":       {"label": "OK", "value": 2},
		"WARNING":  {"label": "WARNING", "value": 0},
		"CRITICAL": {"label": "CRITICAL", "value": 3},
		"UNKNOWN":  {"label": "UNKNOWN", "value": 0},
		"Total":    {"label": "Total", "value": "3 / 5"}
	}`, string(b))
}
