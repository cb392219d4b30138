// Package config handles loading and validating JIMI tracker configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (JIMI_* plus the legacy
//     ERP_URL, ERP_API_KEY, ERP_API_SECRET and SAVE_PATH names)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - ERP API secrets and broker passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Storage.Path)
//
// Passing an empty path yields defaults plus environment overrides, which is
// how the service runs when no config file is deployed.
package config
