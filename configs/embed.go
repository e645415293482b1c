// Package configs provides the embedded configuration template written by
// `notebrain config init`.
//
// The template mirrors the defaults in internal/config NewConfig() with
// every key present, so users can see what is tunable. Edit
// project-config.example.yaml and rebuild to change it.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .notebrain.yaml in the vault root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
