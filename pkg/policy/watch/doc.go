// Package watch recompiles tenant policies when their files change.
//
// The watched directory holds one policy file per tenant, named
// <tenant>.yaml or <tenant>.yml. Writing a file saves the policy to the
// tenant repository and compiles it, the same path an admin save takes.
// Bursts of events for one file are debounced into a single compile.
// Removing a file does not remove the tenant.
package watch
