/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

// hkexport-demo2 serves a directory tree over HTTP and exports the socket
// layer's shared connection table and the root PID/user namespace
// counters on /metrics. At startup it sends one SYN over a loopback
// device through the real pkg/netstack path: TCP output, IPv4 build,
// Ethernet build, the NetDevice, then Ethernet demux and IPv4 delivery on
// the way back in. No connection matches the looped-back segment, so it
// is dropped before TCP input.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hk-project/hkgo/pkg/eth"
	"github.com/hk-project/hkgo/pkg/exporter"
	"github.com/hk-project/hkgo/pkg/ipv4"
	"github.com/hk-project/hkgo/pkg/netstack"
	"github.com/hk-project/hkgo/pkg/pidns"
	"github.com/hk-project/hkgo/pkg/socket"
	"github.com/hk-project/hkgo/pkg/userns"
	"github.com/hk-project/hkgo/pkg/vfs"
)

// demoLoopbackConn attaches a Stack over socket's shared Table to a
// loopback NetDevice, installs the Stack's Send as the socket layer's
// Emit hook, and issues one nonblocking connect, so the SYN it emits
// runs the send pipeline once rather than only in unit tests. The
// connection is never established.
func demoLoopbackConn() {
	local := ipv4.FromBytes([4]byte{127, 0, 0, 1})
	routes := ipv4.NewTable()
	routes.AddHostRoute(local, ipv4.Zero, "lo0", 0)

	dev := netstack.NewLoopbackDevice("lo0")
	devMAC := eth.Addr{0x02, 0, 0, 0, 0, 1}
	resolve := func(ipv4.Addr) (eth.Addr, error) { return devMAC, nil }
	stack := netstack.New(dev, devMAC, routes, socket.Table, resolve, nil)
	dev.Attach(stack)
	socket.UseStack(stack.Send)

	fd, err := socket.New(socket.AFInet, socket.SockStream|socket.SockNonblock, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "demo: socket:", err)
		return
	}
	raw := socket.EncodeSockAddrIn(socket.SockAddrIn{Addr: local, Port: 9})
	// Connect drives an active open against a loopback four-tuple with
	// no listener on the other end; the nonblocking socket returns
	// EINPROGRESS immediately after emitting the SYN, but that SYN
	// still makes the full send path run once at startup.
	err = socket.Connect(context.Background(), fd, raw)
	if err != nil && err != vfs.EINPROGRESS {
		fmt.Fprintln(os.Stderr, "demo: connect:", err)
	}
}

func main() {
	hostname, err := os.Hostname()
	if err != nil {
		panic(err)
	}

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <webroot>\n", os.Args[0])
		os.Exit(1)
	}

	webRoot := os.Args[1]

	if _, err := os.Stat(webRoot); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Webroot %s does not exist\n", os.Args[1])
		os.Exit(2)
	}

	fs := http.FileServer(http.Dir(webRoot))
	http.Handle("/files/", http.StripPrefix("/files", fs))

	demoLoopbackConn()

	collector := exporter.NewKernelCollector("tcpinfo", prometheus.Labels{
		"app":      "exporter_example2",
		"hostname": hostname,
	})
	collector.Conns = socket.Table
	collector.PIDNS = pidns.Root
	collector.UserNS = userns.Root

	prometheus.MustRegister(collector)

	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":18080", nil); err != nil {
		panic(err)
	}
}
