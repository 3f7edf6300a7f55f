// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the wiki-ci command line.
//
// The root command selects stages by name (or all of them with --all), loads
// configuration, picks a runner backend, and hands the selection to the
// pipeline driver. Its exit code is 0 when no selected stage failed.
package cmd
