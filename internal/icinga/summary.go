package icinga

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedPayload = errors.New("icinga: malformed payload")
	ErrStateOutOfRange  = errors.New("icinga: state index out of range")
)

const TotalLabel = "Total"

// StateSet maps the integer state code found in Field to a label.
type StateSet struct {
	Labels  []string
	Healthy string
	Field   string
}

var (
	ServiceStates = StateSet{
		Labels:  []string{"OK", "WARNING", "CRITICAL", "UNKNOWN"},
		Healthy: "OK",
		Field:   "SERVICE_CURRENT_STATE",
	}

	HostStates = StateSet{
		Labels:  []string{"UP", "DOWN", "UNREACHABLE", "PENDING"},
		Healthy: "UP",
		Field:   "HOST_CURRENT_STATE",
	}
)

func (s StateSet) Validate() error {
	if len(s.Labels) == 0 {
		return errors.New("state set: no labels")
	}
	if s.Field == "" {
		return errors.New("state set: field is required")
	}

	seen := make(map[string]struct{}, len(s.Labels))
	for _, l := range s.Labels {
		if l == "" || l == TotalLabel {
			return fmt.Errorf("state set: invalid label %q", l)
		}
		if _, dup := seen[l]; dup {
			return fmt.Errorf("state set: duplicate label %q", l)
		}
		seen[l] = struct{}{}
	}

	if _, ok := seen[s.Healthy]; !ok {
		return fmt.Errorf("state set: healthy label %q not in labels", s.Healthy)
	}
	return nil
}

// Summary is the per-label histogram of one target plus its error rollup.
type Summary struct {
	labels []string
	counts map[string]int
	errors int
	total  int
}

func (s Summary) Count(label string) int { return s.counts[label] }
func (s Summary) Errors() int            { return s.errors }
func (s Summary) Total() int             { return s.total }

func (s Summary) Labels() []string {
	return append([]string(nil), s.labels...)
}

// TotalValue is the dashboard rendering of the rollup, "<errors> / <total>".
func (s Summary) TotalValue() string {
	return fmt.Sprintf("%d / %d", s.errors, s.total)
}

type summaryEntry struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

func (s Summary) MarshalJSON() ([]byte, error) {
	out := make(map[string]summaryEntry, len(s.labels)+1)
	for _, l := range s.labels {
		out[l] = summaryEntry{Label: l, Value: s.counts[l]}
	}
	out[TotalLabel] = summaryEntry{Label: TotalLabel, Value: s.TotalValue()}
	return json.Marshal(out)
}

type statusResponse struct {
	Result *[]map[string]json.RawMessage `json:"result"`
}

// Summarize counts the objects in an Icinga JSON response by state.
// An empty body (the result of a non-200 fetch) yields all-zero counts.
// Any object with a missing, non-integer or out-of-range state aborts
// the whole summary.
func Summarize(body string, states StateSet) (Summary, error) {
	if err := states.Validate(); err != nil {
		return Summary{}, err
	}

	counts := make(map[string]int, len(states.Labels))
	for _, l := range states.Labels {
		counts[l] = 0
	}

	if strings.TrimSpace(body) != "" {
		var resp statusResponse
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			return Summary{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if resp.Result == nil {
			return Summary{}, fmt.Errorf("%w: missing result array", ErrMalformedPayload)
		}

		for i, obj := range *resp.Result {
			idx, err := stateIndex(obj, states.Field)
			if err != nil {
				return Summary{}, fmt.Errorf("result[%d]: %w", i, err)
			}
			if idx < 0 || idx >= len(states.Labels) {
				return Summary{}, fmt.Errorf("result[%d]: %w: %d", i, ErrStateOutOfRange, idx)
			}
			counts[states.Labels[idx]]++
		}
	}

	sum := Summary{
		labels: append([]string(nil), states.Labels...),
		counts: counts,
	}
	for l, c := range counts {
		sum.total += c
		if l != states.Healthy {
			sum.errors += c
		}
	}
	return sum, nil
}

// stateIndex reads field as an integer; Icinga emits it either as a
// number or as a numeric string.
func stateIndex(obj map[string]json.RawMessage, field string) (int, error) {
	raw, ok := obj[field]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedPayload, field)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %s is not a number", ErrMalformedPayload, field)
		}
		n = json.Number(strings.TrimSpace(s))
	}

	idx, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrMalformedPayload, field, n.String())
	}
	return idx, nil
}
