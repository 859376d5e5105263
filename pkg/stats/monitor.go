// Copyright 2026 Sipconf Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package stats

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus"
)

// Durations are in seconds
var (
	// durBucketsOp lists histogram buckets for short operations like a single re-INVITE.
	durBucketsOp = []float64{
		0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 3 * 60,
	}
	// durBucketsLong lists histogram buckets for conference durations.
	durBucketsLong = []float64{
		1, 10, 60, 10 * 60, 30 * 60, 3600, 6 * 3600, 12 * 3600, 24 * 3600,
	}
)

type Monitor struct {
	nodeID string

	confsActive       prometheus.Gauge
	confsStarted      *prometheus.CounterVec
	confsTerminated   *prometheus.CounterVec
	referReq          *prometheus.CounterVec
	referErr          *prometheus.CounterVec
	reinviteReq       *prometheus.CounterVec
	reinviteDeferred  prometheus.Counter
	participantsTotal *prometheus.CounterVec
	durConf           prometheus.Histogram
	durCreate         prometheus.Histogram

	metrics  []prometheus.Collector
	started  core.Fuse
	shutdown core.Fuse
}

func NewMonitor(nodeID string) *Monitor {
	return &Monitor{nodeID: nodeID}
}

func mustRegister[T prometheus.Collector](m *Monitor, c T) T {
	err := prometheus.Register(c)
	if err != nil {
		var e prometheus.AlreadyRegisteredError
		if errors.As(err, &e) {
			return e.ExistingCollector.(T)
		} else {
			panic(err)
		}
	}
	m.metrics = append(m.metrics, c)
	return c
}

func (m *Monitor) Start() error {
	m.confsActive = mustRegister(m, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "sipconf",
		Subsystem:   "conference",
		Name:        "active",
		Help:        "Number of currently active conferences",
		ConstLabels: prometheus.Labels{"node_id": m.nodeID},
	}))

	m.confsStarted = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "sipconf",
		Subsystem:   "conference",
		Name:        "started",
		Help:        "Number of conferences that entered creation",
		ConstLabels: prometheus.Labels{"node_id": m.nodeID},
	}, []string{"kind"}))

	m.confsTerminated = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "sipconf",
		Subsystem:   "conference",
		Name:        "terminated",
		Help:        "Number of conferences terminated",
		ConstLabels: prometheus.Labels{"node_id": m.nodeID},
	}, []string{"reason"}))

	m.referReq = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "sipconf",
		Subsystem:   "conference",
		Name:        "refer_requests",
		Help:        "Number of membership REFER requests sent to the focus",
		ConstLabels: prometheus.Labels{"node_id": m.nodeID},
	}, []string{"op"}))

	m.referErr = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "sipconf",
		Subsystem:   "conference",
		Name:        "refer_errors",
		Help:        "Number of membership REFER requests that could not be sent",
		ConstLabels: prometheus.Labels{"node_id": m.nodeID},
	}, []string{"op", "reason"}))

	m.reinviteReq = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "sipconf",
		Subsystem:   "conference",
		Name:        "reinvites",
		Help:        "Number of focus session re-negotiations attempted",
		ConstLabels: prometheus.Labels{"node_id": m.nodeID},
	}, []string{"kind"}))

	m.reinviteDeferred = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   "sipconf",
		Subsystem:   "conference",
		Name:        "reinvites_deferred",
		Help:        "Number of re-negotiations deferred because the dialog was busy",
		ConstLabels: prometheus.Labels{"node_id": m.nodeID},
	}))

	m.participantsTotal = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "sipconf",
		Subsystem:   "conference",
		Name:        "participants",
		Help:        "Number of participants added or removed across all conferences",
		ConstLabels: prometheus.Labels{"node_id": m.nodeID},
	}, []string{"op"}))

	m.durConf = mustRegister(m, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "sipconf",
		Subsystem:   "conference",
		Name:        "dur_sec",
		Help:        "Conference duration (from instantiation to terminated)",
		ConstLabels: prometheus.Labels{"node_id": m.nodeID},
		Buckets:     durBucketsLong,
	}))

	m.durCreate = mustRegister(m, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "sipconf",
		Subsystem:   "conference",
		Name:        "dur_create_sec",
		Help:        "Conference creation duration (from creation pending to created)",
		ConstLabels: prometheus.Labels{"node_id": m.nodeID},
		Buckets:     durBucketsOp,
	}))

	m.started.Break()

	return nil
}

func (m *Monitor) Shutdown() {
	m.shutdown.Break()
}

func (m *Monitor) Stop() {
	for _, c := range m.metrics {
		prometheus.Unregister(c)
	}
	m.metrics = nil
}

func (m *Monitor) CanAccept() bool {
	return m.started.IsBroken() && !m.shutdown.IsBroken()
}

func (m *Monitor) NewConference(kind string) *ConfMonitor {
	return &ConfMonitor{
		m:    m,
		kind: kind,
	}
}

// ConfMonitor accounts for a single conference. All methods are safe to call
// on a nil receiver so that tests and embedders may skip metrics entirely.
type ConfMonitor struct {
	m          *Monitor
	kind       string
	started    atomic.Bool
	terminated atomic.Bool
}

func (c *ConfMonitor) ConfStart() {
	if c == nil || c.m == nil {
		return
	}
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.m.confsStarted.WithLabelValues(c.kind).Inc()
	c.m.confsActive.Inc()
}

func (c *ConfMonitor) ConfEnd(reason string) {
	if c == nil || c.m == nil {
		return
	}
	if !c.started.CompareAndSwap(true, false) {
		return
	}
	c.m.confsActive.Dec()
	if c.terminated.CompareAndSwap(false, true) {
		c.m.confsTerminated.WithLabelValues(reason).Inc()
	}
}

func (c *ConfMonitor) ReferSend(op string) {
	if c == nil || c.m == nil {
		return
	}
	c.m.referReq.WithLabelValues(op).Inc()
}

func (c *ConfMonitor) ReferError(op, reason string) {
	if c == nil || c.m == nil {
		return
	}
	c.m.referErr.WithLabelValues(op, reason).Inc()
}

func (c *ConfMonitor) Reinvite(kind string) {
	if c == nil || c.m == nil {
		return
	}
	c.m.reinviteReq.WithLabelValues(kind).Inc()
}

func (c *ConfMonitor) ReinviteDeferred() {
	if c == nil || c.m == nil {
		return
	}
	c.m.reinviteDeferred.Inc()
}

func (c *ConfMonitor) ParticipantAdded() {
	if c == nil || c.m == nil {
		return
	}
	c.m.participantsTotal.WithLabelValues("add").Inc()
}

func (c *ConfMonitor) ParticipantRemoved() {
	if c == nil || c.m == nil {
		return
	}
	c.m.participantsTotal.WithLabelValues("remove").Inc()
}

func (c *ConfMonitor) ConfDur() func() time.Duration {
	if c == nil || c.m == nil {
		return func() time.Duration { return 0 }
	}
	return prometheus.NewTimer(c.m.durConf).ObserveDuration
}

func (c *ConfMonitor) CreateDur() func() time.Duration {
	if c == nil || c.m == nil {
		return func() time.Duration { return 0 }
	}
	return prometheus.NewTimer(c.m.durCreate).ObserveDuration
}
