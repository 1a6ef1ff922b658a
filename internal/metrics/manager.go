// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	registry         *prometheus.Registry
	licenseCollector *LicenseCollector
	requests         *prometheus.CounterVec
}

func NewManager(lister LicenseLister) *Manager {
	registry := prometheus.NewRegistry()

	licenseCollector := NewLicenseCollector(lister)
	registry.MustRegister(licenseCollector)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hwidgate_requests_total",
		Help: "License API requests by operation and outcome",
	}, []string{"operation", "outcome"})
	registry.MustRegister(requests)

	log.Info().Msg("Metrics manager initialized with license collector")

	return &Manager{
		registry:         registry,
		licenseCollector: licenseCollector,
		requests:         requests,
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest counts one API call. A nil Manager ignores it.
func (m *Manager) ObserveRequest(operation, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
}
