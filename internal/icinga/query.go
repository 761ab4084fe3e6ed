package icinga

import (
	"errors"
	"fmt"
	"strings"
)

const (
	TargetHost    = "host"
	TargetService = "service"

	OutputJSON = "json"
)

var ErrInvalidQuery = errors.New("icinga: invalid query")

// QueryParams is the mutable input to NewQuery.
type QueryParams struct {
	Host        string
	Target      string
	AuthKey     string
	Columns     []string
	Filter      string
	Order       []string
	CountColumn string
	Output      string
}

// Query is a validated, immutable request against the Icinga web API.
type Query struct {
	host        string
	target      string
	authKey     string
	columns     []string
	filter      string
	order       []string
	countColumn string
	output      string
}

func NewQuery(p QueryParams) (Query, error) {
	required := []struct {
		name  string
		value string
	}{
		{"host", p.Host},
		{"target", p.Target},
		{"authkey", p.AuthKey},
		{"output", p.Output},
	}
	for _, r := range required {
		if r.value == "" {
			return Query{}, fmt.Errorf("%w: %s is required", ErrInvalidQuery, r.name)
		}
	}

	if p.Target != TargetHost && p.Target != TargetService {
		return Query{}, fmt.Errorf("%w: unknown target %q", ErrInvalidQuery, p.Target)
	}

	return Query{
		host:        strings.TrimRight(p.Host, "/"),
		target:      p.Target,
		authKey:     p.AuthKey,
		columns:     append([]string(nil), p.Columns...),
		filter:      p.Filter,
		order:       append([]string(nil), p.Order...),
		countColumn: p.CountColumn,
		output:      p.Output,
	}, nil
}

func (q Query) Target() string { return q.target }

// URL renders the query in the backend's path-segment dialect:
//
//	<host>/web/api/<target>/<options>/authkey=<authkey>/<output>
//
// Segment contents are not escaped.
func (q Query) URL() string {
	parts := []string{q.host, "web", "api", q.target}
	if opts := q.options(); opts != "" {
		parts = append(parts, opts)
	}
	parts = append(parts, "authkey="+q.authKey, q.output)
	return strings.Join(parts, "/")
}

// options joins the present optional segments in the fixed order
// filter, columns, order, countColumn.
func (q Query) options() string {
	var segs []string
	if q.filter != "" {
		segs = append(segs, "filter["+q.filter+"]")
	}
	if len(q.columns) > 0 {
		segs = append(segs, "columns["+strings.Join(q.columns, "|")+"]")
	}
	if len(q.order) > 0 {
		segs = append(segs, "order("+strings.Join(q.order, "|")+")")
	}
	if q.countColumn != "" {
		segs = append(segs, "countColumn="+q.countColumn)
	}
	return strings.Join(segs, "/")
}

// RedactedURL is URL with the auth key masked, for logging.
func (q Query) RedactedURL() string {
	return redact(q.URL())
}

func redact(rawURL string) string {
	i := strings.Index(rawURL, "authkey=")
	if i < 0 {
		return rawURL
	}
	start := i + len("authkey=")
	end := strings.IndexByte(rawURL[start:], '/')
	if end < 0 {
		return rawURL[:start] + "***"
	}
	return rawURL[:start] + "***" + rawURL[start+end:]
}
