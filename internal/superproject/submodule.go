// Package superproject reconciles a superproject's gitlinks with the branch
// heads of its submodules.
package superproject

import (
	"github.com/user/submodsync/internal/storage"
)

// Origin says where a pending hash came from.
type Origin int

const (
	// OriginBranchTip is a hash read from the upstream branch during a
	// full rescan.
	OriginBranchTip Origin = iota + 1
	// OriginEvent is a hash accepted from a push event.
	OriginEvent
)

func (o Origin) String() string {
	switch o {
	case OriginBranchTip:
		return "branch-tip"
	case OriginEvent:
		return "event"
	}
	return "unknown"
}

// Pending is a hash waiting to be committed.
type Pending struct {
	Hash   string
	Origin Origin
}

// Outcome is the result of applying one event to a submodule.
type Outcome int

const (
	Noop Outcome = iota
	Conflict
	Accepted
)

// Submodule is the in-memory state of one submodule during a pass.
type Submodule struct {
	Name     string
	Path     string
	Upstream string // owner/name, empty when not on GitHub
	Current  string

	Pending   *Pending
	Conflicts []int64 // source ids of events that did not apply
}

// Reference is the hash an incoming event must start from: the pending
// hash when there is one, the recorded gitlink otherwise.
func (s *Submodule) Reference() string {
	if s.Pending != nil {
		return s.Pending.Hash
	}
	return s.Current
}

// Apply runs the compare-and-swap rule for ev. An event whose head is
// already the reference is a no-op and clears the conflict log; one whose
// before hash differs from the reference is recorded as a conflict;
// anything else becomes the pending hash.
func (s *Submodule) Apply(ev storage.Event) Outcome {
	ref := s.Reference()
	switch {
	case ev.HeadHash == ref:
		s.Conflicts = nil
		return Noop
	case ev.BeforeHash != ref:
		s.Conflicts = append(s.Conflicts, ev.SourceID)
		return Conflict
	default:
		s.Pending = &Pending{Hash: ev.HeadHash, Origin: OriginEvent}
		return Accepted
	}
}

// Commit records the pending hash as the current gitlink.
func (s *Submodule) Commit() {
	if s.Pending != nil {
		s.Current = s.Pending.Hash
		s.Pending = nil
	}
}
