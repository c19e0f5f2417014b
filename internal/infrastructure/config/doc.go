// Package config handles loading and validating valuecore configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Configuration is validated once at process start and treated as read-only
// afterwards. The loaded *Config is passed explicitly to the components that
// need it; there is no package-level instance.
//
// Security Considerations:
//   - Session signing keys should be set via VALUECORE_SECRET_KEY_ONE/TWO
//   - Broker credentials should be set via VALUECORE_BROKER_USERNAME/PASSWORD
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
