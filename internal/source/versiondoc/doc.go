// Package versiondoc decodes the launcher version document format shared by
// the vanilla and loader sources, evaluates its platform rules and converts it
// into a bundle descriptor.
package versiondoc
