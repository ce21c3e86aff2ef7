package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_Idempotent(t *testing.T) {
	Register()
	Register()

	ProvisionTotal.WithLabelValues("created").Inc()
	if got := testutil.ToFloat64(ProvisionTotal.WithLabelValues("created")); got < 1 {
		t.Errorf("provision_total{created} = %f, want >= 1", got)
	}
}

func TestRegisterOrReuse_AlreadyRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "dup"})

	registerOrReuse(reg, c)
	registerOrReuse(reg, c)
}
