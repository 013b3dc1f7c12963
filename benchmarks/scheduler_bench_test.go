// Package benchmarks holds micro-benchmarks and concurrency stress tests
// for pkg/scheduler that don't belong inside the library package itself.
package benchmarks

import (
	"testing"

	"github.com/wattfarm/h2sched/pkg/scheduler"
)

// BenchmarkOpenClose benchmarks the open/close round trip directly under
// the scheduler root.
func BenchmarkOpenClose(b *testing.B) {
	s := scheduler.New()

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		ref := scheduler.Open(s.Root(), 16, false, i)
		scheduler.Close(ref)
	}
}

// BenchmarkOpenManyChildren benchmarks opening a wide, flat fan of
// same-weight children under the root — the common case of many streams
// at the default weight.
func BenchmarkOpenManyChildren(b *testing.B) {
	s := scheduler.New()

	b.ResetTimer()

	refs := make([]*scheduler.OpenRef, 0, b.N)
	for i := 0; i < b.N; i++ {
		refs = append(refs, scheduler.Open(s.Root(), scheduler.DefaultWeight, false, i))
	}

	b.StopTimer()
	for _, ref := range refs {
		scheduler.Close(ref)
	}
}

// BenchmarkExclusiveOpen benchmarks the exclusive-reparenting path, which
// walks every existing sibling.
func BenchmarkExclusiveOpen(b *testing.B) {
	s := scheduler.New()
	for i := 0; i < 32; i++ {
		scheduler.Open(s.Root(), scheduler.DefaultWeight, false, i)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		ref := scheduler.Open(s.Root(), scheduler.DefaultWeight, true, i)
		scheduler.Close(ref)
	}
}

// BenchmarkIterateRoundRobin benchmarks a single Iterate call over a set
// of streams that all stay active for one served turn each.
func BenchmarkIterateRoundRobin(b *testing.B) {
	s := scheduler.New()
	const fanout = 16
	for i := 0; i < fanout; i++ {
		ref := scheduler.Open(s.Root(), scheduler.DefaultWeight, false, i)
		scheduler.SetActive(ref)
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		served := 0
		s.Iterate(func(ref *scheduler.OpenRef) (bool, int) {
			served++
			return served <= fanout, 0
		})
	}
}

// BenchmarkDeepChain benchmarks ActiveCount propagation through a long
// single-child dependency chain, the scheduler's worst case for
// incrActiveCnt/decrActiveCnt recursion depth.
func BenchmarkDeepChain(b *testing.B) {
	s := scheduler.New()
	const depth = 64
	leaf := s.Root()
	refs := make([]*scheduler.OpenRef, 0, depth)
	for i := 0; i < depth; i++ {
		ref := scheduler.Open(leaf, scheduler.DefaultWeight, false, i)
		refs = append(refs, ref)
		leaf = ref.Node()
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		tail := refs[len(refs)-1]
		scheduler.SetActive(tail)
		s.Iterate(func(ref *scheduler.OpenRef) (bool, int) {
			return false, 0
		})
	}
}
