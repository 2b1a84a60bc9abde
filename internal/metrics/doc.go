// Package metrics provides build metrics for fwbuilder.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics can be left unconfigured without nil checks:
//
//	svc := build.NewService(cfg, build.WithRecorder(metrics.NewPrometheusRecorder(reg)))
//
// PrometheusRecorder registers its collectors on the given registry; the
// server exposes that registry through HTTPHandler.
package metrics
