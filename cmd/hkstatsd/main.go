/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// hkstatsd serves the kernel-internal counters over HTTP: routing table
// hit/miss rates, TCP connection-table state population, and the root
// PID/user namespace allocation counts. It is the long-running daemon
// form of cmd/hkexport-demo1 and cmd/hkexport-demo2's wiring.
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hk-project/hkgo/pkg/exporter"
	"github.com/hk-project/hkgo/pkg/ipv4"
	"github.com/hk-project/hkgo/pkg/pidns"
	"github.com/hk-project/hkgo/pkg/socket"
	"github.com/hk-project/hkgo/pkg/userns"
)

func main() {
	addr := flag.String("listen", ":9400", "address to serve /metrics on")
	flag.Parse()

	log := logrus.StandardLogger()
	log.Info("hkstatsd starting")

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	collector := exporter.NewKernelCollector("hk", prometheus.Labels{"hostname": hostname})
	collector.Routes = ipv4.NewTable()
	collector.Conns = socket.Table
	collector.PIDNS = pidns.Root
	collector.UserNS = userns.Root

	prometheus.MustRegister(collector)

	http.Handle("/metrics", promhttp.Handler())
	log.WithField("addr", *addr).Info("hkstatsd listening")
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.WithError(err).Fatal("hkstatsd exiting")
	}
}
