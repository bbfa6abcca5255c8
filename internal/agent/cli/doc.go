// Package cli provides the interactive shell of the Dentread sync agent.
//
// It wires configuration, the local store, the workspace, staging, upload and
// auto-sync services, and runs a REPL in place of the desktop UI. Typical
// flow: log in with a username and access token, stage new scans into the
// workspace, then sync individual targets to the ingestion endpoint.
//
// Key features:
//   - Login / Logout (token read without echo)
//   - Workspace init, list and empty
//   - Bounded staging and auto-sync
//   - Sync of a single target, with history
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
