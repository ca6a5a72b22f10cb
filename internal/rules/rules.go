// Package rules implements the library/argument rule predicate language:
// an ordered list of allow/disallow rules evaluated against an OS+features
// predicate, with "last matching rule wins" semantics and a default of
// disallow (spec.md §4.2).
package rules

import (
	"regexp"
	"runtime"
	"sync"
)

// Action is either "allow" or "disallow".
type Action string

const (
	Allow    Action = "allow"
	Disallow Action = "disallow"
)

// OSPredicate compares the current platform against a rule's os block.
// Version and Arch are regular expressions; Name is an exact match
// against one of "linux", "osx", "windows".
type OSPredicate struct {
	Name    string
	Version string
	Arch    string
}

// Rule is one entry of a library's or argument fragment's rule list.
type Rule struct {
	Action   Action
	OS       *OSPredicate
	Features map[string]bool
}

// Platform describes the current machine for rule evaluation purposes.
type Platform struct {
	Name    string // "linux", "osx", "windows"
	Version string
	Arch    string // "x86", "x86_64", "aarch64", ...
}

// CurrentPlatform maps runtime.GOOS/GOARCH to Mojang's naming scheme.
func CurrentPlatform() Platform {
	name := runtime.GOOS
	switch runtime.GOOS {
	case "darwin":
		name = "osx"
	case "windows":
		name = "windows"
	case "linux":
		name = "linux"
	}

	arch := runtime.GOARCH
	switch runtime.GOARCH {
	case "amd64":
		arch = "x86_64"
	case "386":
		arch = "x86"
	case "arm64":
		arch = "aarch64"
	}

	return Platform{Name: name, Arch: arch}
}

// Evaluator evaluates Rule lists against a fixed Platform and feature set.
// Regexes in os.version/os.arch are compiled once and cached, per spec.md
// §9's design note.
type Evaluator struct {
	Platform Platform
	Features map[string]bool

	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// NewEvaluator builds an Evaluator for the given platform and feature set.
func NewEvaluator(platform Platform, features map[string]bool) *Evaluator {
	if features == nil {
		features = map[string]bool{}
	}
	return &Evaluator{Platform: platform, Features: features, cache: map[string]*regexp.Regexp{}}
}

// Allowed evaluates rules in order; a rule list with no entries always
// passes. Otherwise the last matching rule's action decides, defaulting
// to disallow if no rule matches.
func (e *Evaluator) Allowed(rules []Rule) bool {
	if len(rules) == 0 {
		return true
	}

	allowed := false
	for _, r := range rules {
		if e.matches(r) {
			allowed = r.Action == Allow
		}
	}
	return allowed
}

func (e *Evaluator) matches(r Rule) bool {
	if r.OS != nil && !e.matchesOS(*r.OS) {
		return false
	}
	if len(r.Features) > 0 && !e.matchesFeatures(r.Features) {
		return false
	}
	return true
}

func (e *Evaluator) matchesOS(os OSPredicate) bool {
	if os.Name != "" && os.Name != e.Platform.Name {
		return false
	}
	if os.Version != "" && !e.regex(os.Version).MatchString(e.Platform.Version) {
		return false
	}
	if os.Arch != "" && !e.regex(os.Arch).MatchString(e.Platform.Arch) {
		return false
	}
	return true
}

func (e *Evaluator) matchesFeatures(want map[string]bool) bool {
	for k, v := range want {
		if e.Features[k] != v {
			return false
		}
	}
	return true
}

// regex compiles and caches pattern, treating an invalid pattern as
// never-matching rather than panicking — malformed regexes in third-party
// descriptors should not crash the installer.
func (e *Evaluator) regex(pattern string) *regexp.Regexp {
	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.cache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = regexp.MustCompile(`$.^`) // matches nothing
	}
	e.cache[pattern] = re
	return re
}
