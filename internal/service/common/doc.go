// Package common holds helpers shared by several services.
//
// It provides a lightweight gRPC client of the supervisor daemon with
// timeouts and a helper that detects the offline player profile.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
