package plugin

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type lifecycleMetrics struct {
	installs        *prometheus.CounterVec
	uninstalls      *prometheus.CounterVec
	installDuration prometheus.Observer
	loaded          prometheus.Gauge
	dispatched      *prometheus.CounterVec
}

var (
	lifecycleMetricsOnce sync.Once
	lifecycleMetricsInst *lifecycleMetrics
)

func getMetrics() *lifecycleMetrics {
	lifecycleMetricsOnce.Do(func() {
		lifecycleMetricsInst = newLifecycleMetrics()
	})
	return lifecycleMetricsInst
}

func newLifecycleMetrics() *lifecycleMetrics {
	return &lifecycleMetrics{
		installs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prodmanager",
			Subsystem: "plugins",
			Name:      "installs_total",
			Help:      "Extension install attempts, labeled by result",
		}, []string{"result"}),
		uninstalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prodmanager",
			Subsystem: "plugins",
			Name:      "uninstalls_total",
			Help:      "Extension uninstall attempts, labeled by result",
		}, []string{"result"}),
		installDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prodmanager",
			Subsystem: "plugins",
			Name:      "install_duration_seconds",
			Help:      "Duration of extension installs",
			Buckets:   prometheus.DefBuckets,
		}),
		loaded: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "prodmanager",
			Subsystem: "plugins",
			Name:      "loaded",
			Help:      "Extensions currently loaded in the registry",
		}),
		dispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prodmanager",
			Subsystem: "plugins",
			Name:      "events_total",
			Help:      "Catalog events delivered to extensions, labeled by event and result",
		}, []string{"event", "result"}),
	}
}

// resultLabel maps an error to a metrics label.
func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	var e *Error
	if errors.As(err, &e) {
		return kindLabel(e.Kind)
	}
	return "error"
}

func kindLabel(kind error) string {
	switch kind {
	case ErrBadArchiveStructure:
		return "bad_archive_structure"
	case ErrExtractionFailed:
		return "extraction_failed"
	case ErrEntryFileMissing:
		return "entry_file_missing"
	case ErrEntryClassMissing:
		return "entry_class_missing"
	case ErrNotAnExtension:
		return "not_an_extension"
	case ErrInstallHookFailed:
		return "install_hook_failed"
	case ErrExtensionNotLoaded:
		return "extension_not_loaded"
	case ErrUninstallHookFailed:
		return "uninstall_hook_failed"
	case ErrInvalidName:
		return "invalid_name"
	case ErrAlreadyInstalled:
		return "already_installed"
	case ErrIncompatible:
		return "incompatible"
	default:
		return "error"
	}
}
