// Package bootstrap provides the process-level initialization shared by
// transportctl and services embedding the channel bindings.
//
// It covers:
//   - Logger setup with file rotation
//   - Redis and Kafka client construction
//   - OpenTelemetry tracing initialization
//   - Prometheus registry and /metrics endpoint
//
// Example usage:
//
//	func main() {
//	    cfg, err := config.Load()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    if err := bootstrap.InitLoggerWithFile(cfg.Log, cfg.LogFile, cfg.App.Name); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    shutdown, err := bootstrap.InitTracing(ctx, cfg.Tracing)
//	    if err != nil {
//	        log.Warn(err)
//	    }
//	    defer shutdown(ctx)
//
//	    reg := bootstrap.NewRegistry()
//	    bootstrap.ServeMetrics(ctx, cfg.Metrics, reg)
//	}
package bootstrap
