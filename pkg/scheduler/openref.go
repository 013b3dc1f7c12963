package scheduler

// OpenRef is a node that represents a real, currently open HTTP/2 stream.
// It carries the stream's weight and active flag, and is itself a Node so
// that streams may depend on other streams (RFC 7540 Section 5.3.1).
type OpenRef struct {
	node Node // this ref's own child-slots; node.owner == this ref

	parent *Node // the node this ref is currently attached to
	weight Weight
	slot   *slot // the slot, within parent, holding this ref

	allLink    link
	activeLink link

	selfActive bool
	activeCnt  int

	// Value is caller data associated with the reference (typically the
	// stream ID or a *http2.Stream); the scheduler never inspects it.
	Value any
}

// Open creates a new reference as a child of parent at the given weight,
// optionally making it exclusive: every prior child of parent becomes a
// child of the new reference instead (RFC 7540 Section 5.3.1's "If a
// stream is marked as exclusive ... its parent's other dependencies").
// weight must be in MinWeight..MaxWeight; callers are expected to have
// already converted the wire byte (weight-1) to this range.
func Open(parent *Node, weight Weight, exclusive bool, value any) *OpenRef {
	s := getOrCreateSlot(parent, weight)

	ref := &OpenRef{
		parent: parent,
		weight: weight,
		slot:   s,
		Value:  value,
	}
	ref.node.owner = ref
	ref.allLink.ref = ref
	ref.activeLink.ref = ref
	ref.allLink.reset()
	ref.activeLink.reset()

	insertBefore(&s.allRefs, &ref.allLink)

	if exclusive {
		convertToExclusive(parent, ref)
	}
	return ref
}

// convertToExclusive walks every slot of parent and rebinds every child
// except added underneath added, preserving each child's own weight.
// added must already be the tail entry of its slot's allRefs — Open and
// Rebind both guarantee this by inserting at the tail before calling
// here — which is what guarantees the walk below terminates: by the time
// it reaches added in its own slot, every sibling ahead of it in that slot
// has been moved away, leaving added as the sole remaining entry; the
// walk then goes on through the remaining lower-weight slots.
func convertToExclusive(parent *Node, added *OpenRef) {
	for _, s := range parent.slots {
		for !s.allRefs.isEmpty() {
			child := s.allRefs.next.ref
			if child == added {
				break
			}
			Rebind(&added.node, child, false)
		}
	}
}

// Close destroys ref: its children are first spliced onto ref's own
// parent (collapsing one level of the tree, per spec.md Law L3), then
// ref is unlinked and its active-count contribution removed from every
// ancestor. ref must currently be open; calling Close twice on the same
// reference is a programming error.
func Close(ref *OpenRef) {
	if !IsOpen(ref) {
		panic("scheduler: Close called on a reference that is not open")
	}

	for _, s := range ref.node.slots {
		for !s.allRefs.isEmpty() {
			child := s.allRefs.next.ref
			Rebind(ref.parent, child, false)
		}
	}

	unlinkNode(&ref.allLink)
	if ref.selfActive {
		unlinkNode(&ref.activeLink)
		decrActiveCnt(ref.parent)
	}

	ref.node.slots = nil
	ref.parent = nil
	ref.slot = nil
}

// IsOpen reports whether ref has not yet been closed. A freshly
// zero-valued OpenRef (never passed to Open) also reports false.
func IsOpen(ref *OpenRef) bool {
	return ref.parent != nil || ref.allLink.linked() || ref.slot != nil
}

// Rebind moves ref to be a child of newParent, keeping its weight. If
// newParent is ref's current parent this is a documented no-op (spec.md
// Law L2).
// Rebind never changes ref's weight: reprioritizing with a new weight
// requires Close followed by Open.
func Rebind(newParent *Node, ref *OpenRef, exclusive bool) {
	if newParent == ref.parent {
		return
	}

	newSlot := getOrCreateSlot(newParent, ref.weight)

	unlinkNode(&ref.allLink)
	insertBefore(&newSlot.allRefs, &ref.allLink)

	if ref.activeLink.linked() {
		oldParent := ref.parent
		unlinkNode(&ref.activeLink)
		insertBefore(&newSlot.activeRefs, &ref.activeLink)
		decrActiveCnt(oldParent)
		incrActiveCnt(newParent)
	}

	ref.parent = newParent
	ref.slot = newSlot

	if exclusive {
		convertToExclusive(newParent, ref)
	}
}

// SetActive marks ref's own stream as having data ready to send. ref must
// not already be active; the converse transition is performed implicitly
// by Iterate when its callback reports the stream is no longer active.
func SetActive(ref *OpenRef) {
	if ref.selfActive {
		panic("scheduler: SetActive called on an already-active reference")
	}
	ref.selfActive = true
	incrActiveCnt(&ref.node)
}

// IsActive reports whether ref's own stream currently has data to send.
// It does not reflect whether any descendant is active; see ActiveCount.
func IsActive(ref *OpenRef) bool {
	return ref.selfActive
}

// ActiveCount returns the number of active descendants of ref, including
// ref itself when its own stream is active (spec.md's active_cnt).
func ActiveCount(ref *OpenRef) int {
	return ref.activeCnt
}

// Weight returns ref's weight as given to Open (or the most recent
// Close+Open cycle — Rebind never changes it).
func (ref *OpenRef) Weight() Weight {
	return ref.weight
}

// Node returns the Node this reference itself is, i.e. the parent to pass
// to Open or Rebind for streams that depend on ref.
func (ref *OpenRef) Node() *Node {
	return &ref.node
}

// incrActiveCnt propagates a 0->1 activation from node up to the root.
// node.owner is nil exactly when node is a Scheduler's root, which is
// where the recursion stops.
func incrActiveCnt(node *Node) {
	ref := node.owner
	if ref == nil {
		return
	}
	ref.activeCnt++
	if ref.activeCnt != 1 {
		return
	}
	insertBefore(&ref.slot.activeRefs, &ref.activeLink)
	incrActiveCnt(ref.parent)
}

// decrActiveCnt is the symmetric 1->0 deactivation propagation.
func decrActiveCnt(node *Node) {
	ref := node.owner
	if ref == nil {
		return
	}
	ref.activeCnt--
	if ref.activeCnt != 0 {
		return
	}
	unlinkNode(&ref.activeLink)
	decrActiveCnt(ref.parent)
}
