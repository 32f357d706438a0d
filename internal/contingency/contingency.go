// Package contingency implements OTO (one-triggers-other) and OCO
// (one-cancels-other) linkage bookkeeping (spec §4 C8 ContingencyManager,
// §4.5, §4.6 "Post-fill contingency processing").
//
// Registration is id-indexed (client-order-id -> client-order-id), never a
// pointer back-reference, per spec §9 "replace cross-object cyclic
// references ... with id-indexed lookups".
package contingency

// Manager tracks OTO parent/child links. OCO sibling sets live directly on
// each model.Order's ContingencyIDs field (spec §3), so this manager only
// needs to hold the OTO registry — the one relationship spec §4.5 requires
// to be resolvable from a bare client-order-id before the child order
// itself has even been submitted.
type Manager struct {
	parentOf map[string]string // child cid -> parent cid
}

func New() *Manager {
	return &Manager{parentOf: make(map[string]string)}
}

// RegisterOTOChild records that childCid is an OTO child of parentCid
// (spec §4.5 submit path, step 2).
func (m *Manager) RegisterOTOChild(childCid, parentCid string) {
	m.parentOf[childCid] = parentCid
}

// ParentOf returns the OTO parent cid for a child cid, if registered.
func (m *Manager) ParentOf(childCid string) (string, bool) {
	p, ok := m.parentOf[childCid]
	return p, ok
}

// Reset clears all registrations (spec §6 engine.Reset()).
func (m *Manager) Reset() {
	m.parentOf = make(map[string]string)
}
