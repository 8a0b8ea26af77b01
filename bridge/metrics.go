package bridge

import (
	"sync"
	"time"

	"github.com/Trinoooo/quail_ev/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

type MetricsHelper struct {
	AttachCounter         prometheus.Counter
	AttachConflictCounter prometheus.Counter
	FiredReadCounter      prometheus.Counter
	FiredWriteCounter     prometheus.Counter
	FiredTimeoutCounter   prometheus.Counter
	TimerDroppedCounter   prometheus.Counter // timer requests after cleanup
}

var (
	metricsHelper     *MetricsHelper
	metricsHelperOnce sync.Once
)

func getMetricsHelper() *MetricsHelper {
	metricsHelperOnce.Do(func() {
		metricsHelper = newMetricsHelper()
	})
	return metricsHelper
}

func newMetricsHelper() *MetricsHelper {
	helper := &MetricsHelper{
		AttachCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quail_ev_attach_counter",
		}),
		AttachConflictCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quail_ev_attach_conflict_counter",
		}),
		FiredReadCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quail_ev_fired_read_counter",
		}),
		FiredWriteCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quail_ev_fired_write_counter",
		}),
		FiredTimeoutCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quail_ev_fired_timeout_counter",
		}),
		TimerDroppedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quail_ev_timer_dropped_counter",
		}),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		helper.AttachCounter,
		helper.AttachConflictCounter,
		helper.FiredReadCounter,
		helper.FiredWriteCounter,
		helper.FiredTimeoutCounter,
		helper.TimerDroppedCounter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if !utils.IsTest() {
		pusher := push.New("http://localhost:9091", "quail_ev").Gatherer(registry)
		go func() {
			for {
				if err := pusher.Add(); err != nil {
					bridgeLogger.Warn("prometheus pusher push failed", zap.Error(err))
				}
				// push every 5s
				time.Sleep(5 * time.Second)
			}
		}()
	}

	return helper
}
