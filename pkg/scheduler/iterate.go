package scheduler

// IterateFunc is invoked once per active leaf-or-internal reference
// visited by Iterate. It reports whether ref's stream still has data to
// send (stillActive) and an optional non-zero bailOut code that aborts
// the walk and is returned verbatim to Iterate's caller.
//
// IterateFunc is permitted to mutate the tree — opening new streams,
// rebinding ref elsewhere, activating other references — provided it
// does not Close ref itself; behavior is undefined if it does (spec.md
// Section 4.8, "Reentrance").
type IterateFunc func(ref *OpenRef) (stillActive bool, bailOut int)

// doneSentinel marks "the round-robin cycle for this slot has completed
// once already in this call" at the scheduler root. Its address is
// compared by identity only; it is never dereferenced as a real anchor.
var doneSentinel = &link{}

// Iterate walks the scheduler's tree depth-first, slot by slot in
// descending weight order, visiting active references and giving each a
// turn via cb. Equal-weight siblings are served round-robin: a served
// reference moves to the tail of its slot's active list. At the
// scheduler root a slot is revisited until every reference in it reports
// inactive, so equal-weight siblings keep alternating within one call;
// below the root each reference in a slot gets one turn per pass.
//
// Iterate returns the first non-zero bailOut reported by cb, unwinding
// immediately. The spec leaves open whether the just-served reference's
// move-to-tail should be undone on bail-out; this implementation matches
// h2o literally and does not undo it — the move happens before bailOut
// is even inspected.
func (s *Scheduler) Iterate(cb IterateFunc) int {
	return iterate(&s.root, cb)
}

func iterate(node *Node, cb IterateFunc) int {
	bailOut := 0

	for _, sl := range node.slots {
		// At the scheduler root, readdedFirst starts at the unreachable
		// sentinel so this slot is drained to exhaustion — re-serviced
		// every time a reference reports still_active — before a
		// lower-weight slot is ever touched, giving strict priority
		// between distinct weights. A non-root recursion starts at nil,
		// which lets the first successful requeue latch a real marker
		// and stop the loop after one round-robin pass, yielding control
		// back to the caller so higher-priority siblings above it can be
		// revisited first (spec.md's "non-root recursions make at most
		// one pass"). original_source/lib/http2/scheduler.c's ternary
		// assigns these the other way around in its variable names but
		// the same way in effect: scheduler->_parent != NULL (i.e. this
		// call is operating on an open reference's own node, not the
		// true root) gets NULL; the true root gets the sentinel.
		var readdedFirst *link
		if node.owner == nil {
			readdedFirst = doneSentinel
		}

		for !sl.activeRefs.isEmpty() && sl.activeRefs.next != readdedFirst {
			ref := sl.activeRefs.next.ref

			if ref.selfActive {
				stillActive, bo := cb(ref)
				if stillActive {
					unlinkNode(&ref.activeLink)
					insertBefore(&sl.activeRefs, &ref.activeLink)
					if readdedFirst == nil {
						readdedFirst = &ref.activeLink
					}
				} else {
					ref.selfActive = false
					decrActiveCnt(&ref.node)
					if ref.activeCnt != 0 {
						unlinkNode(&ref.activeLink)
						insertBefore(&sl.activeRefs, &ref.activeLink)
					}
				}
				bailOut = bo
			} else {
				// ref itself has nothing to send but some descendant
				// does: move it to the tail and recurse into its
				// children before considering it again.
				unlinkNode(&ref.activeLink)
				insertBefore(&sl.activeRefs, &ref.activeLink)
				bailOut = iterate(&ref.node, cb)
				if readdedFirst == nil && ref.activeLink.linked() {
					readdedFirst = &ref.activeLink
				}
			}

			if bailOut != 0 {
				return bailOut
			}
		}
	}

	return bailOut
}
