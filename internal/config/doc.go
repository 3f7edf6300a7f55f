// SPDX-License-Identifier: MPL-2.0

// Package config loads wiki-ci settings using Viper with CUE as the file format.
//
// Settings come, lowest precedence first, from built-in defaults, a
// wiki-ci.cue file in the working directory (or the file named by --config),
// and WIKI_CI_* environment variables. A .env file in the working directory is
// loaded into the environment first without overriding variables that are
// already set. Files are validated against the embedded config_schema.cue.
package config
