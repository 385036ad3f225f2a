package pmode

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no PMode matches the resolution key.
var ErrNotFound = errors.New("no matching pmode")

// ResolutionKey carries the message fields PMode resolution matches on.
type ResolutionKey struct {
	FromParty    string
	ToParty      string
	Service      string
	Action       string
	MPC          string
	AgreementRef string
	// PModeID is the pmode attribute of AgreementRef, when the sender
	// pinned the PMode explicitly.
	PModeID string
}

// Resolver resolves the processing contract for an extracted message. The
// receiving core consumes this interface; persistence and authoring of
// PModes live elsewhere.
type Resolver interface {
	Resolve(ctx context.Context, key ResolutionKey) (*ProcessingMode, error)
}

// Registry is an in-memory Resolver. Registration order is preserved so
// that resolution is deterministic when several PModes match.
type Registry struct {
	mu      sync.RWMutex
	ordered []*ProcessingMode
	byID    map[string]*ProcessingMode
}

// NewRegistry creates an empty PMode registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*ProcessingMode)}
}

// Add validates and registers a PMode.
func (r *Registry) Add(pm *ProcessingMode) error {
	if err := pm.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[pm.ID]; !dup {
		r.ordered = append(r.ordered, pm)
	}
	r.byID[pm.ID] = pm
	return nil
}

// Get returns the PMode with the given ID, or nil.
func (r *Registry) Get(id string) *ProcessingMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Resolve implements Resolver. A key carrying an explicit PModeID short
// circuits matching; otherwise the first registered PMode whose leg-1
// business info agrees with the key wins. Pinned parties are not part of
// matching; the caller validates them against the resolved PMode so a
// party disagreement can be reported as a processing mode mismatch.
func (r *Registry) Resolve(_ context.Context, key ResolutionKey) (*ProcessingMode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key.PModeID != "" {
		if pm, ok := r.byID[key.PModeID]; ok {
			return pm, nil
		}
		return nil, ErrNotFound
	}

	for _, pm := range r.ordered {
		if r.matches(pm, key) {
			return pm, nil
		}
	}
	return nil, ErrNotFound
}

func (r *Registry) matches(pm *ProcessingMode, key ResolutionKey) bool {
	leg := pm.Leg(1)
	if leg == nil || leg.BusinessInfo == nil {
		return false
	}
	bi := leg.BusinessInfo
	if bi.Service != key.Service || bi.Action != key.Action {
		return false
	}
	if bi.MPC != "" && key.MPC != "" && bi.MPC != key.MPC {
		return false
	}
	if pm.Agreement != "" && key.AgreementRef != "" && pm.Agreement != key.AgreementRef {
		return false
	}
	return true
}
