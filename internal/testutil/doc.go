// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include file and environment setup (MustWriteFile,
// MustMkdirAll, MustUnsetenv), background server cleanup (DeferRelease), and
// gating for tests that need a real container engine (RequireContainerProvider,
// ContainerSemaphore).
package testutil
