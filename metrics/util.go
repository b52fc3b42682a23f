package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce registers the collector with the default registry. If an
// identical collector is already registered, that one is returned instead, so
// metric structs can be created more than once per process (tests, several
// commands). Panics on any other registration error.
func registerOnce[C prometheus.Collector](collector C) C {
	err := prometheus.Register(collector)
	if err == nil {
		return collector
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		panic(err)
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		panic(err)
	}
	return existing
}
