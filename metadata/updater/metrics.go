// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

package updater

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional Prometheus instrumentation bundle for a
// RepositoryLoader. A nil *Metrics is valid everywhere in this package: every
// method is a no-op on a nil receiver, so instrumentation is opt-in.
type Metrics struct {
	rootRotations      *prometheus.CounterVec
	rollbackRejections *prometheus.CounterVec
	targetBytesServed  prometheus.Counter
}

// NewMetrics registers a fresh Metrics bundle against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rootRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tuf_root_load_total",
			Help: "Root-walk load attempts, partitioned by outcome.",
		}, []string{"outcome"}),
		rollbackRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tuf_rollback_rejections_total",
			Help: "Rollback/continuity rejections, partitioned by role.",
		}, []string{"role"}),
		targetBytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tuf_target_bytes_served_total",
			Help: "Total declared length of targets handed out by read_target.",
		}),
	}
	reg.MustRegister(m.rootRotations, m.rollbackRejections, m.targetBytesServed)
	return m
}

func (m *Metrics) observeRootRotation(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.rootRotations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeRollbackRejected(role string) {
	if m == nil {
		return
	}
	m.rollbackRejections.WithLabelValues(role).Inc()
}

func (m *Metrics) observeTargetServed(length int64) {
	if m == nil || length <= 0 {
		return
	}
	m.targetBytesServed.Add(float64(length))
}
