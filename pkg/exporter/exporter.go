/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// Package exporter implements a prometheus.Collector over this kernel's
// own internal counters, rather than per-connection host tcp_info: the
// routing table's lookup hit/miss counts, the TCP connection table's
// per-state population, PID and user namespace allocation counts, and
// the ext4 inode cache's hit/miss counts.
package exporter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hk-project/hkgo/pkg/ext4"
	"github.com/hk-project/hkgo/pkg/ipv4"
	"github.com/hk-project/hkgo/pkg/pidns"
	"github.com/hk-project/hkgo/pkg/tcp"
	"github.com/hk-project/hkgo/pkg/userns"
)

// KernelCollector gathers metrics from the live kernel subsystems. Any
// source left nil is skipped on Collect, so a caller that only cares
// about, say, the TCP table need not wire ext4 up at all.
type KernelCollector struct {
	Routes *ipv4.Table
	Conns  *tcp.Table
	PIDNS  *pidns.Namespace
	UserNS *userns.Namespace
	Ext4   *ext4.FileSystem

	routeLookups         *prometheus.Desc
	tcpConnsByState      *prometheus.Desc
	pidRegistered        *prometheus.Desc
	pidHighWater         *prometheus.Desc
	usernsExtents        *prometheus.Desc
	ext4CacheLookups     *prometheus.Desc
	ext4PageCacheLookups *prometheus.Desc
}

// NewKernelCollector builds a collector with its metric descriptors
// bound to constLabels (e.g. hostname, instance), the same way the
// per-connection collector this replaces pinned process-wide labels at
// construction time.
func NewKernelCollector(prefix string, constLabels prometheus.Labels) *KernelCollector {
	return &KernelCollector{
		routeLookups: prometheus.NewDesc(
			prefix+"_route_lookups_total",
			"Routing table lookups, partitioned by result.",
			[]string{"result"}, constLabels,
		),
		tcpConnsByState: prometheus.NewDesc(
			prefix+"_tcp_connections",
			"Tracked TCP connections, partitioned by connection state.",
			[]string{"state"}, constLabels,
		),
		pidRegistered: prometheus.NewDesc(
			prefix+"_pidns_registered_tasks",
			"Tasks currently registered in the root PID namespace.",
			nil, constLabels,
		),
		pidHighWater: prometheus.NewDesc(
			prefix+"_pidns_highwater_pid",
			"Highest PID allocated so far in the root PID namespace.",
			nil, constLabels,
		),
		usernsExtents: prometheus.NewDesc(
			prefix+"_userns_map_extents",
			"UID/GID map extents installed in the root user namespace.",
			[]string{"map"}, constLabels,
		),
		ext4CacheLookups: prometheus.NewDesc(
			prefix+"_ext4_inode_cache_lookups_total",
			"ext4 inode cache lookups, partitioned by result.",
			[]string{"result"}, constLabels,
		),
		ext4PageCacheLookups: prometheus.NewDesc(
			prefix+"_ext4_page_cache_lookups_total",
			"ext4 block-device page cache lookups, partitioned by result.",
			[]string{"result"}, constLabels,
		),
	}
}

func (c *KernelCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.routeLookups
	descs <- c.tcpConnsByState
	descs <- c.pidRegistered
	descs <- c.pidHighWater
	descs <- c.usernsExtents
	descs <- c.ext4CacheLookups
	descs <- c.ext4PageCacheLookups
}

func (c *KernelCollector) Collect(metrics chan<- prometheus.Metric) {
	if c.Routes != nil {
		hits, misses := c.Routes.Stats()
		metrics <- prometheus.MustNewConstMetric(c.routeLookups, prometheus.CounterValue, float64(hits), "hit")
		metrics <- prometheus.MustNewConstMetric(c.routeLookups, prometheus.CounterValue, float64(misses), "miss")
	}

	if c.Conns != nil {
		for state, count := range c.Conns.CountByState() {
			metrics <- prometheus.MustNewConstMetric(c.tcpConnsByState, prometheus.GaugeValue, float64(count), state.String())
		}
	}

	if c.PIDNS != nil {
		registered, highWater := c.PIDNS.Allocated()
		metrics <- prometheus.MustNewConstMetric(c.pidRegistered, prometheus.GaugeValue, float64(registered))
		metrics <- prometheus.MustNewConstMetric(c.pidHighWater, prometheus.GaugeValue, float64(highWater))
	}

	if c.UserNS != nil {
		uidExtents, gidExtents := c.UserNS.MappingCounts()
		metrics <- prometheus.MustNewConstMetric(c.usernsExtents, prometheus.GaugeValue, float64(uidExtents), "uid")
		metrics <- prometheus.MustNewConstMetric(c.usernsExtents, prometheus.GaugeValue, float64(gidExtents), "gid")
	}

	if c.Ext4 != nil {
		hits, misses := c.Ext4.CacheStats()
		metrics <- prometheus.MustNewConstMetric(c.ext4CacheLookups, prometheus.CounterValue, float64(hits), "hit")
		metrics <- prometheus.MustNewConstMetric(c.ext4CacheLookups, prometheus.CounterValue, float64(misses), "miss")

		pageHits, pageMisses := c.Ext4.PageCacheStats()
		metrics <- prometheus.MustNewConstMetric(c.ext4PageCacheLookups, prometheus.CounterValue, float64(pageHits), "hit")
		metrics <- prometheus.MustNewConstMetric(c.ext4PageCacheLookups, prometheus.CounterValue, float64(pageMisses), "miss")
	}
}

var _ prometheus.Collector = (*KernelCollector)(nil)
