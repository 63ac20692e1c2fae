package cache

import "fmt"

// Profile names accepted by cargo.
const (
	ProfileDebug   = "debug"
	ProfileRelease = "release"
)

// Requirement identifies the runtime a plugin project needs.
type Requirement struct {
	Repository string `json:"repository,omitempty" yaml:"repository,omitempty"`

	// Branch, tag or commit. Empty selects the remote default branch.
	Ref string `json:"ref,omitempty" yaml:"ref,omitempty"`

	// Cargo profile, debug or release.
	Profile string `json:"profile" yaml:"profile"`

	// Absolute path to a prebuilt runtime binary; replaces the git build.
	Prebuilt string `json:"prebuilt,omitempty" yaml:"prebuilt,omitempty"`
}

// Key returns the canonical identity recorded in the run directory marker.
// Two requirements with equal keys produce interchangeable runtimes.
func (r Requirement) Key() string {
	if r.Prebuilt != "" {
		return "prebuilt:" + r.Prebuilt
	}
	ref := r.Ref
	if ref == "" {
		ref = "HEAD"
	}
	return fmt.Sprintf("git:%s#%s@%s", r.Repository, ref, r.Profile)
}

// State is what the run directory reports about its cached runtime.
type State struct {
	Valid  bool
	Key    string // requirement key recorded by the marker, set only when Valid
	Reason string // why the cache is invalid
}

// Action is the outcome of a cache decision.
type Action int

const (
	Reuse Action = iota
	Rebuild
)

func (a Action) String() string {
	switch a {
	case Reuse:
		return "reuse"
	case Rebuild:
		return "rebuild"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Decision pairs an action with a human-readable reason.
type Decision struct {
	Action Action
	Reason string
}

// Decide chooses between reusing the cached runtime and rebuilding it.
// force always selects Rebuild. Decide only reads its inputs.
func Decide(req Requirement, force bool, state State) Decision {
	if force {
		return Decision{Action: Rebuild, Reason: "rebuild forced"}
	}
	if !state.Valid {
		reason := state.Reason
		if reason == "" {
			reason = "no valid cached runtime"
		}
		return Decision{Action: Rebuild, Reason: reason}
	}
	if state.Key != req.Key() {
		return Decision{Action: Rebuild, Reason: fmt.Sprintf("requirement changed (cached %s)", state.Key)}
	}
	return Decision{Action: Reuse, Reason: "cached runtime matches " + req.Key()}
}
