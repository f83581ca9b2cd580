// Package client talks to the medsync authority.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Remote interface) used by the
//     synchronizer and the backup uploader: Ping, Push, Pull and
//     PresignBackup.
//  2. A concrete gRPC implementation (see GRPCClient). It manages the
//     connection, attaches the access token through an interceptor, logs in
//     again when the token expires and maps gRPC status codes to the
//     sentinel errors of internal/common.
//
// # Error Handling
//
// Network and timeout failures come back wrapping common.ErrTransient and
// are safe to retry. Authentication failures wrap common.ErrUnauthorized.
//
// # Concurrency
//
// GRPCClient is safe for concurrent use; the synchronizer pushes several
// entities in parallel over one connection.
package client
