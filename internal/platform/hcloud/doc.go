// Package hcloud wraps the Hetzner Cloud API client with the get-or-create
// and delete semantics the provisioners rely on.
//
// # Generic Operations
//
// EnsureOperation provides get-or-create semantics with optional update and
// validation, and reports whether the resource was created. Updates only
// run when the existing resource differs, so a second apply against
// unchanged resources issues no write requests.
//
// DeleteOperation provides idempotent deletion. Locked resources are
// retried with exponential backoff; a missing resource counts as deleted.
//
// # Timeouts
//
// Server creation and deletion are bounded by config.Timeouts, read from
// K3SFORM_TIMEOUT_* and K3SFORM_RETRY_* environment variables.
package hcloud
