package poller

import (
	"context"

	"github.com/speedwagon-io/icinga-status/internal/config"
	"github.com/speedwagon-io/icinga-status/internal/icinga"
	"github.com/speedwagon-io/icinga-status/internal/model"
)

// Fetcher returns the raw response body for a built query URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Target is one Icinga object type polled each cycle and the event its
// summary is published as.
type Target struct {
	Name        string
	Event       string
	PayloadKey  string
	Columns     []string
	Order       []string
	CountColumn string
	Filter      string
	States      icinga.StateSet
}

// Query builds the target's query against the current backend settings.
func (t Target) Query(cfg config.IcingaConfig) (icinga.Query, error) {
	return icinga.NewQuery(icinga.QueryParams{
		Host:        cfg.BaseURI,
		Target:      t.Name,
		AuthKey:     cfg.AuthKey,
		Columns:     t.Columns,
		Filter:      t.Filter,
		Order:       t.Order,
		CountColumn: t.CountColumn,
		Output:      icinga.OutputJSON,
	})
}

// DefaultTargets returns the host and service targets, in publish order.
func DefaultTargets(cfg config.IcingaConfig) []Target {
	return []Target{
		{
			Name:        icinga.TargetHost,
			Event:       model.EventHostStatus,
			PayloadKey:  "hosts",
			Columns:     []string{"HOST_NAME", "HOST_CURRENT_STATE", "HOST_ID"},
			Order:       []string{"HOST_ID;DESC"},
			CountColumn: "HOST_ID",
			Filter:      cfg.HostFilter,
			States:      icinga.HostStates,
		},
		{
			Name:       icinga.TargetService,
			Event:      model.EventServiceStatus,
			PayloadKey: "services",
			Columns: []string{
				"SERVICE_NAME",
				"HOST_NAME",
				"SERVICE_CURRENT_STATE",
				"HOST_CURRENT_STATE",
				"SERVICE_ID",
			},
			Order:       []string{"SERVICE_ID;DESC"},
			CountColumn: "SERVICE_ID",
			Filter:      cfg.ServiceFilter,
			States:      icinga.ServiceStates,
		},
	}
}
