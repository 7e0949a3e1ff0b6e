package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for Stash, backed by any go-utils MetricFactory.
type Metrics struct {
	MessagesAdded      gu.Counter
	MessagesUpdated    gu.Counter
	MessagesIdempotent gu.Counter
	MessagesRemoved    gu.Counter
	GroupAppends       gu.Counter
	GroupsMarked       gu.Counter
	GroupsExpired      gu.Counter
	CASConflicts       gu.Counter
	ExpiredGroupSize   gu.Histogram
}

// NewMetrics creates Stash metric instruments using the supplied factory.
// Pass gu.NewMetricsCollector for standalone usage.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		MessagesAdded:      factory.Counter("stash_messages_added_total"),
		MessagesUpdated:    factory.Counter("stash_messages_updated_total"),
		MessagesIdempotent: factory.Counter("stash_messages_idempotent_total"),
		MessagesRemoved:    factory.Counter("stash_messages_removed_total"),
		GroupAppends:       factory.Counter("stash_group_appends_total"),
		GroupsMarked:       factory.Counter("stash_groups_marked_total"),
		GroupsExpired:      factory.Counter("stash_groups_expired_total"),
		CASConflicts:       factory.Counter("stash_cas_conflicts_total"),
		ExpiredGroupSize:   factory.Histogram("stash_expired_group_size"),
	}
}

// RecordExpiry records one expired group of the given size.
func (m *Metrics) RecordExpiry(size int) {
	m.GroupsExpired.Inc()
	m.ExpiredGroupSize.Observe(float64(size))
}
