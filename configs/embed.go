// Package configs embeds the configuration templates that `steward init`
// writes out.
//
// Two templates, matching the two config layers:
//   - project-config.example.yaml: per-contract settings, written to
//     .steward.yaml in the project root and safe to commit.
//   - user-config.example.yaml: machine-level settings, written to
//     ~/.steward/config.yaml by `steward init --user`.
//
// Load order is defaults, then user config, then project config, then
// STEWARD_* environment variables (see internal/config.Load). The
// templates ship almost entirely commented out so a fresh file changes
// nothing until the steward uncomments a line.
package configs

import _ "embed"

// UserConfigTemplate seeds ~/.steward/config.yaml.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate seeds .steward.yaml next to the contract file.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
