// Package store opens the agent's local SQLite database and exposes the two
// read-mostly views the sync core needs from it.
//
// # Overview
//
//   - Open / RunMigrations: wire modernc SQLite and apply the embedded goose
//     migrations (metadata and sync_history tables).
//   - CredentialStore: the saved username and the access token, as the login
//     screen left them.
//   - ExclusionStore: names of folders and files that were already synced.
//
// The sync core only reads these values, once per call. Writers are the shell
// (login, logout) and the staging step that records what it copied.
//
// # Keys
//
//	savedUsername   plain UTF-8 username
//	token           JSON object {"access": "...", "refresh": "..."}
//	folderNames     JSON array of folder names
//	filenames       JSON array of file names
package store
