/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// hkexport-demo1 drives a few routing lookups and puts one synthetic TCP
// connection into SYN_SENT in the in-process kernel packages, then serves the
// resulting counters on /metrics so the KernelCollector wiring can be
// eyeballed against a running process.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hk-project/hkgo/pkg/exporter"
	"github.com/hk-project/hkgo/pkg/ipv4"
	"github.com/hk-project/hkgo/pkg/tcp"
)

func hallucinate(routes *ipv4.Table, conns *tcp.Table) {
	routes.AddInterfaceRoute(ipv4.FromBytes([4]byte{10, 0, 0, 0}), ipv4.FromBytes([4]byte{255, 255, 255, 0}), "eth0", 0)
	routes.AddDefaultRoute(ipv4.FromBytes([4]byte{10, 0, 0, 1}), "eth0", 10)

	tuple := tcp.FourTuple{
		LocalAddr:  ipv4.FromBytes([4]byte{10, 0, 0, 5}),
		LocalPort:  443,
		RemoteAddr: ipv4.FromBytes([4]byte{203, 0, 113, 9}),
		RemotePort: 51000,
	}
	tcb := tcp.NewTCB(tuple)
	tcb.Connect(1000)
	conns.Insert(tcb)

	go func() {
		targets := []ipv4.Addr{
			ipv4.FromBytes([4]byte{10, 0, 0, 7}),
			ipv4.FromBytes([4]byte{8, 8, 8, 8}),
		}
		for {
			for _, dst := range targets {
				routes.Lookup(dst)
			}
			time.Sleep(100 * time.Millisecond)
		}
	}()
}

func main() {
	hostname, err := os.Hostname()
	if err != nil {
		panic(err)
	}

	routes := ipv4.NewTable()
	conns := tcp.NewTable()
	hallucinate(routes, conns)

	collector := exporter.NewKernelCollector("hallucination", prometheus.Labels{
		"app":      "exporter_example1",
		"hostname": hostname,
	})
	collector.Routes = routes
	collector.Conns = conns

	prometheus.MustRegister(collector)

	http.Handle("/metrics", promhttp.Handler())
	http.ListenAndServe(":18080", nil)
}
