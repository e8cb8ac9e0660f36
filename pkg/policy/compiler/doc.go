// Package compiler turns a tenant's raw policy into an immutable,
// checksummed artifact and publishes it to the cache.
//
// A compile runs these steps:
//
//  1. Take the tenant's compile lock with a compare-and-swap. A held lock
//     fails the compile immediately with a ContentionError; nothing is
//     queued or retried.
//  2. Order each rule family by (priority, id) and detect conflicts between
//     enabled rules of equal priority: trigger word overlap above 0.3
//     (Jaccard over words longer than two characters), or two transfer
//     rules with the same intent tag.
//  3. Resolve each conflict by demoting the later rule's priority by one.
//     Resolution is a single pass: a demotion that creates a new collision
//     is not re-checked until the next compile.
//  4. Build the artifact. Disabled rules are dropped; rules with bad
//     patterns, unknown actions or unknown guardrails are dropped and
//     reported as warnings.
//  5. Checksum the canonical encoding.
//  6. Publish the artifact under policy:artifact:{tenant}:{version}:{checksum}
//     and, for active policies only, move the tenant's active pointer.
//  7. Record compile metadata on the tenant.
//  8. Release the lock, whatever happened above.
//
// Steps 6 and 7 are best effort. Their failures are logged and returned
// as DependencyError warnings; the compile still succeeds.
package compiler
