// Package install turns a descriptor into files on disk.
//
// Install runs in two phases. The verification phase builds, per category,
// the list of files that are missing or do not match their declared hash.
// The transfer phase downloads those files, all categories at once, with a
// bounded number of simultaneous transfers per category and a fixed number of
// attempts per file. Native staging always follows, even when nothing was
// downloaded.
package install
