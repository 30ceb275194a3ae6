// Package config handles loading and validating the gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with OBSGATE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The session token secret should be set via OBSGATE_TOKEN_SECRET
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
