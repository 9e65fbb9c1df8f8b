// Package configs provides the embedded configuration template for thutuc.
//
// The template is embedded at build time with go:embed so it ships inside
// the binary regardless of how thutuc was installed. 'thutuc init' writes
// it as thutuc.yaml in the current directory; users then edit paths and
// model settings in place.
//
// Configuration hierarchy (see internal/config.Load):
//  1. Hardcoded defaults (internal/config.NewConfig)
//  2. User config (~/.config/thutuc/config.yaml)
//  3. Project config (thutuc.yaml)
//  4. Environment variables (THUTUC_*)
package configs

import _ "embed"

// ProjectConfigTemplate is the annotated thutuc.yaml template written by
// 'thutuc init'.
//
//go:embed thutuc.example.yaml
var ProjectConfigTemplate string
