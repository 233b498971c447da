// Copyright 2026 The Veil Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for veil components.
//
// Configuration is loaded from a single file specified by either the
// VEIL_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// YAML is the primary format. Files ending in .json or .jsonc are
// accepted as well: comments and trailing commas are stripped before
// parsing, and the YAML parser handles the resulting JSON document.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${VEIL_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
package config
