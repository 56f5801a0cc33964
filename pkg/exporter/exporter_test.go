package exporter_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"gotest.tools/v3/assert"

	"github.com/hk-project/hkgo/pkg/exporter"
	"github.com/hk-project/hkgo/pkg/ipv4"
)

func TestCollectRouteLookupsOnly(t *testing.T) {
	routes := ipv4.NewTable()
	routes.AddDefaultRoute(ipv4.FromBytes([4]byte{10, 0, 0, 1}), "eth0", 0)

	_, _, err := routes.Lookup(ipv4.FromBytes([4]byte{8, 8, 8, 8}))
	assert.NilError(t, err)

	c := exporter.NewKernelCollector("hk", prometheus.Labels{"host": "test"})
	c.Routes = routes

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	families, err := reg.Gather()
	assert.NilError(t, err)

	var found bool
	for _, fam := range families {
		if fam.GetName() == "hk_route_lookups_total" {
			found = true
			assert.Equal(t, len(fam.Metric), 2)
		}
	}
	assert.Assert(t, found)
}

func TestDescribeEmitsAllDescriptors(t *testing.T) {
	c := exporter.NewKernelCollector("hk", nil)
	descs := make(chan *prometheus.Desc, 16)
	c.Describe(descs)
	close(descs)

	count := 0
	for range descs {
		count++
	}
	assert.Equal(t, count, 7)
}

func TestCollectSkipsNilSources(t *testing.T) {
	c := exporter.NewKernelCollector("hk", nil)
	metrics := make(chan prometheus.Metric, 16)
	c.Collect(metrics)
	close(metrics)

	for m := range metrics {
		var out dto.Metric
		assert.NilError(t, m.Write(&out))
	}
}
