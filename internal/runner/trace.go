// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"mvdan.cc/sh/v3/syntax"
)

// tracer echoes commands in verbose mode.
type tracer struct {
	out     io.Writer
	enabled bool
}

// renderCommand joins program and args into a copy-pasteable line.
// Arguments spanning lines, typically scripts, are printed raw.
func renderCommand(program string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	for _, s := range append([]string{program}, args...) {
		if strings.Contains(s, "\n") {
			parts = append(parts, s)
			continue
		}
		q, err := syntax.Quote(s, syntax.LangBash)
		if err != nil {
			q = s
		}
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// traceID is "<program>-<first 7 hex digits of sha256(line)>".
func traceID(program, line string) string {
	sum := sha256.Sum256([]byte(line))
	return program + "-" + hex.EncodeToString(sum[:])[:7]
}

// start prints the command and returns the function printing its completion.
// The returned function prints at most once.
func (t tracer) start(program string, args []string, background bool) func() {
	if !t.enabled {
		return func() {}
	}

	line := renderCommand(program, args)
	id := traceID(program, line)

	kind := "command"
	if background {
		kind = "background command"
	}
	fmt.Fprintf(t.out, "Executing %s [id: %s]:\n```\n%s\n```\n", kind, id, line)

	done := "Command completed"
	if background {
		done = "Background command completed"
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			fmt.Fprintf(t.out, "%s [id: %s]\n", done, id)
		})
	}
}
