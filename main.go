// SPDX-License-Identifier: MPL-2.0

// wiki-ci runs the CI pipeline of the wiki.
package main

import cmd "github.com/wiki-ci/wiki-ci/cmd/wikici"

func main() {
	cmd.Execute()
}
