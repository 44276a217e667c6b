package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAppMetrics_Recorders(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.CommandsQueued("add_card", 3)
	m.CommandsQueued("add_card", 3)
	m.NotifyResult("mqtt", "ok")

	assert.Equal(t, 6.0, testutil.ToFloat64(m.CommandQueuedTotal.WithLabelValues("add_card")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotifyTotal.WithLabelValues("mqtt", "ok")))

	var nilMetrics *AppMetrics
	nilMetrics.CommandsQueued("x", 1)
	nilMetrics.NotifyResult("x", "y")
}
