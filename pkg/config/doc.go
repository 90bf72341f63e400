// Package config provides the configuration types and loading utilities
// shared by transportctl and services embedding the channel bindings.
//
// Usage:
//
//	cfg, err := config.Load(config.LoadOptions{
//	    ConfigPath:    "./configs",
//	    EnvPrefix:     config.DefaultEnvPrefix,
//	    AllowNoConfig: true,
//	})
//	if err != nil {
//	    return err
//	}
//	// cfg.Channel.Kind selects ws | grpc | redis | kafka | nats
//
// Services with their own layout embed the section types and call
// LoadConfig directly.
package config
