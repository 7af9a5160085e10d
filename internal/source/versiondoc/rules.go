package versiondoc

import (
	"regexp"
	"runtime"
)

// Rule actions.
const (
	ActionAllow    = "allow"
	ActionDisallow = "disallow"
)

// Rule allows or disallows a library or argument on matching platforms.
type Rule struct {
	Action   string          `json:"action"`
	OS       *OSRule         `json:"os,omitempty"`
	Features map[string]bool `json:"features,omitempty"`
}

// OSRule matches an operating system. Empty fields match everything.
type OSRule struct {
	Name    string `json:"name,omitempty"`
	Arch    string `json:"arch,omitempty"`
	Version string `json:"version,omitempty"`
}

// Platform is what rules are evaluated against.
type Platform struct {
	// OS uses the document vocabulary: linux, osx or windows.
	OS string
	// Arch uses the document vocabulary: x86, x86_64 or arm64.
	Arch string
	// OSVersion is matched against version patterns; empty matches every pattern.
	OSVersion string
	// Features are launcher features such as is_demo_user or has_custom_resolution.
	Features map[string]bool
}

// CurrentPlatform describes the running system.
func CurrentPlatform() Platform {
	return PlatformFor(runtime.GOOS, runtime.GOARCH)
}

// PlatformFor maps Go's GOOS and GOARCH onto the document vocabulary.
func PlatformFor(goos, goarch string) Platform {
	platform := Platform{OS: goos, Arch: goarch}

	if goos == "darwin" {
		platform.OS = "osx"
	}

	switch goarch {
	case "amd64":
		platform.Arch = "x86_64"
	case "386":
		platform.Arch = "x86"
	}

	return platform
}

// Bitness is the value substituted for ${arch} in legacy native classifiers.
func (p Platform) Bitness() string {
	if p.Arch == "x86" {
		return "32"
	}

	return "64"
}

// Allowed evaluates rules in order: without rules everything is allowed,
// otherwise the last matching rule decides and nothing matching means disallowed.
func Allowed(rules []Rule, platform Platform) bool {
	if len(rules) == 0 {
		return true
	}

	allowed := false

	for i := range rules {
		if rules[i].matches(platform) {
			allowed = rules[i].Action == ActionAllow
		}
	}

	return allowed
}

func (r *Rule) matches(platform Platform) bool {
	if r.OS != nil {
		if r.OS.Name != "" && r.OS.Name != platform.OS {
			return false
		}

		if r.OS.Arch != "" && r.OS.Arch != platform.Arch {
			return false
		}

		if r.OS.Version != "" && platform.OSVersion != "" {
			pattern, err := regexp.Compile(r.OS.Version)
			if err != nil || !pattern.MatchString(platform.OSVersion) {
				return false
			}
		}
	}

	for feature, want := range r.Features {
		if platform.Features[feature] != want {
			return false
		}
	}

	return true
}
