// Package config defines the settings shared by the launcher binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Validate fills defaults for everything left unset: the data root comes from
// the XDG data directory, endpoints point at the public metadata hosts and
// transfer limits match the download coordinator's defaults.
package config
