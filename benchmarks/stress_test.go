package benchmarks

import (
	"context"
	"math/rand"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/wattfarm/h2sched/pkg/http2"
	"github.com/wattfarm/h2sched/pkg/scheduler"
)

// TestConcurrentConnectionsDoNotCoordinate exercises many independent
// Connections, each with its own PriorityTree/Scheduler, running their
// own stream churn concurrently on separate goroutines. Nothing here is
// shared between connections, demonstrating that distinct scheduler
// instances need no coordination between them to run safely in parallel —
// only a single scheduler instance's own operations must come from one
// goroutine at a time.
func TestConcurrentConnectionsDoNotCoordinate(t *testing.T) {
	const connections = 32
	const streamsPerConnection = 64

	g, _ := errgroup.WithContext(context.Background())

	for c := 0; c < connections; c++ {
		seed := int64(c)
		g.Go(func() error {
			conn := http2.NewConnection(true)
			rng := rand.New(rand.NewSource(seed))

			streams := make([]uint32, 0, streamsPerConnection)
			for i := 0; i < streamsPerConnection; i++ {
				stream, err := conn.CreateStream()
				if err != nil {
					return err
				}
				streams = append(streams, stream.ID())
			}

			for _, id := range streams {
				if rng.Intn(2) == 0 {
					conn.CloseStream(id)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent connection churn failed: %v", err)
	}
}

// BenchmarkConcurrentSchedulers runs independent Scheduler instances
// concurrently, one per goroutine, to measure whether per-instance
// performance holds up under concurrent (not shared) load — a sanity
// check for spec.md's claim that distinct scheduler instances never need
// cross-goroutine coordination.
func BenchmarkConcurrentSchedulers(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		s := scheduler.New()
		i := 0
		for pb.Next() {
			ref := scheduler.Open(s.Root(), scheduler.DefaultWeight, false, i)
			scheduler.SetActive(ref)
			s.Iterate(func(ref *scheduler.OpenRef) (bool, int) {
				return false, 0
			})
			scheduler.Close(ref)
			i++
		}
	})
}
