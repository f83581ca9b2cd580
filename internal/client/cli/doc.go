// Package cli is the medsync command-line client: cobra commands over the
// local store, the synchronizer, the conflict ledger and backups.
//
// Every command opens the local database named by --db, does its work and
// closes it again. Only sync, daemon, status and presigned backups talk to
// the server.
package cli
