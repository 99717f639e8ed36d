// Package config handles loading and validating notesnookd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with NOTESNOOK_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The vault passphrase is only ever read from NOTESNOOK_VAULT_PASSPHRASE
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.Path)
package config
