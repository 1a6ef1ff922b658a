// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/hwidgate/hwidgate/internal/license"
	"github.com/hwidgate/hwidgate/internal/models"
)

// LicenseLister is the part of the license service the collector scrapes.
type LicenseLister interface {
	Licenses(ctx context.Context) ([]*models.License, error)
	Today() civil.Date
}

// LicenseCollector reports license counts by state, computed from the store
// on every scrape.
type LicenseCollector struct {
	lister LicenseLister

	licensesDesc       *prometheus.Desc
	expiringSoonDesc   *prometheus.Desc
	scrapeErrorsDesc   *prometheus.Desc
	expiringSoonWindow int
}

func NewLicenseCollector(lister LicenseLister) *LicenseCollector {
	return &LicenseCollector{
		lister:             lister,
		expiringSoonWindow: 7,

		licensesDesc: prometheus.NewDesc(
			"hwidgate_licenses",
			"Number of stored licenses by state",
			[]string{"state"},
			nil,
		),
		expiringSoonDesc: prometheus.NewDesc(
			"hwidgate_licenses_expiring_soon",
			"Number of active licenses expiring within the next 7 days",
			nil,
			nil,
		),
		scrapeErrorsDesc: prometheus.NewDesc(
			"hwidgate_scrape_errors_total",
			"Number of failed license scrapes",
			nil,
			nil,
		),
	}
}

func (c *LicenseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.licensesDesc
	ch <- c.expiringSoonDesc
	ch <- c.scrapeErrorsDesc
}

func (c *LicenseCollector) Collect(ch chan<- prometheus.Metric) {
	if c.lister == nil {
		log.Debug().Msg("License lister is nil, skipping metrics collection")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	licenses, err := c.lister.Licenses(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list licenses for metrics")
		ch <- prometheus.MustNewConstMetric(c.scrapeErrorsDesc, prometheus.CounterValue, 1)
		return
	}

	today := c.lister.Today()
	soon := today.AddDays(c.expiringSoonWindow)

	var active, expired, expiringSoon int
	for _, l := range licenses {
		expiry := l.ExpiryDate
		switch license.Classify(&expiry, today).State {
		case license.StateActive:
			active++
			if !expiry.After(soon) {
				expiringSoon++
			}
		case license.StateExpired:
			expired++
		}
	}

	ch <- prometheus.MustNewConstMetric(c.licensesDesc, prometheus.GaugeValue, float64(active), string(license.StateActive))
	ch <- prometheus.MustNewConstMetric(c.licensesDesc, prometheus.GaugeValue, float64(expired), string(license.StateExpired))
	ch <- prometheus.MustNewConstMetric(c.expiringSoonDesc, prometheus.GaugeValue, float64(expiringSoon))
}
