package observability_test

import (
	"testing"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/stash/observability"
)

func TestNewMetrics(t *testing.T) {
	m := observability.NewMetrics(gu.NewMetricsCollector("test"))

	if m.MessagesAdded == nil {
		t.Fatal("MessagesAdded should not be nil")
	}
	if m.GroupsExpired == nil {
		t.Fatal("GroupsExpired should not be nil")
	}
	if m.ExpiredGroupSize == nil {
		t.Fatal("ExpiredGroupSize should not be nil")
	}
	if m.CASConflicts == nil {
		t.Fatal("CASConflicts should not be nil")
	}
}

func TestRecordExpiry(t *testing.T) {
	m := observability.NewMetrics(gu.NewMetricsCollector("test"))

	m.RecordExpiry(3)
	m.RecordExpiry(0)

	if m.GroupsExpired.Value() != 2 {
		t.Fatalf("GroupsExpired: want 2, got %v", m.GroupsExpired.Value())
	}
}
