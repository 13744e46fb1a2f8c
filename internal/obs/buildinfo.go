package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "SportAI Suite build information.",
		},
		// facility is the installation's facility ID; several installations may share one Prometheus.
		[]string{"version", "facility"},
	)
)

// InitBuildInfo registers build_info once and sets build_info{version,facility} to 1.
func InitBuildInfo(version, facilityID string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, facilityID).Set(1)
}
