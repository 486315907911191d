// Package metrics holds the Prometheus collectors of the giveaway engine.
// Labels are limited to small fixed sets to keep cardinality bounded.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// GiveawaysResolved counts resolutions by outcome (resolved, already_ended, message_not_found).
	GiveawaysResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giveaway_resolutions_total",
			Help: "Giveaway resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	ResolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "giveaway_resolve_duration_seconds",
			Help:    "Time spent drawing winners and updating the announcement.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EntryEvents counts join attempts and withdrawals by result.
	EntryEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giveaway_entry_events_total",
			Help: "Entry ledger events by result.",
		},
		[]string{"result"},
	)

	ScheduledTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "giveaway_scheduled_timers",
			Help: "Giveaways currently armed in the scheduler.",
		},
	)

	MessageEdits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giveaway_message_edits_total",
			Help: "Announcement message edits by kind and status.",
		},
		[]string{"kind", "status"},
	)

	// CoalescedUpdates counts refresh requests absorbed by an open quiet window.
	CoalescedUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "giveaway_coalesced_updates_total",
			Help: "Refresh requests absorbed by an already open quiet window.",
		},
	)

	Interactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discord_interactions_total",
			Help: "Inbound Discord interactions by type.",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(
		GiveawaysResolved,
		ResolveDuration,
		EntryEvents,
		ScheduledTimers,
		MessageEdits,
		CoalescedUpdates,
		Interactions,
	)
}
