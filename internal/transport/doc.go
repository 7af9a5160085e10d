// Package transport is the HTTP collaborator used by source adapters and the
// download coordinator: whole-body fetches, JSON fetches and streaming
// downloads with a progress callback.
//
// Per-request timeouts and an optional request-rate limit live here; retries
// do not. Retrying is the download coordinator's decision.
package transport
