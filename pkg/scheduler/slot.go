package scheduler

// slot is a weight bucket attached to a Node: every child at that exact
// weight lives in allRefs (insertion order) and the subset currently
// active lives in activeRefs (round-robin order). A slot is never freed
// when it empties — only when its owning node is disposed or, for an
// OpenRef's own slots, when the reference is closed.
type slot struct {
	weight     Weight
	allRefs    link
	activeRefs link
}

func newSlot(weight Weight) *slot {
	s := &slot{weight: weight}
	s.allRefs.reset()
	s.activeRefs.reset()
	return s
}

// getOrCreateSlot scans node's slots for one matching weight, or creates
// one in the correct position to keep node.slots strictly decreasing by
// weight (P1). The scan is linear: HTTP/2 practice keeps the number of
// distinct sibling weights small, so this is cheaper in both code and
// cache behavior than a balanced tree.
func getOrCreateSlot(node *Node, weight Weight) *slot {
	for i, s := range node.slots {
		if s.weight == weight {
			return s
		}
		if s.weight < weight {
			return insertSlotAt(node, i, weight)
		}
	}
	return insertSlotAt(node, len(node.slots), weight)
}

func insertSlotAt(node *Node, i int, weight Weight) *slot {
	s := newSlot(weight)
	node.slots = append(node.slots, nil)
	copy(node.slots[i+1:], node.slots[i:])
	node.slots[i] = s
	return s
}
