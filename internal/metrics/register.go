package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

// Register adds the package collectors to the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		for _, c := range append(append(remoteCollectors(), embeddingCollectors()...), gatewayCollectors()...) {
			registerOrReuse(prometheus.DefaultRegisterer, c)
		}
	})
}

func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
}
