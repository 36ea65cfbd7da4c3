package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"guildhall/contexts/governance/election-service/domain/entities"
)

func TestResultsCacheCoalescesConcurrentLoads(t *testing.T) {
	cache, err := NewResultsCache(4)
	if err != nil {
		t.Fatalf("new results cache failed: %v", err)
	}
	var calls int32
	release := make(chan struct{})
	compute := func(context.Context) (entities.ElectionResults, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return entities.ElectionResults{ElectionID: "e1", BallotsCounted: 3}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := cache.Load(context.Background(), "e1:3", compute)
			if err != nil || results.BallotsCounted != 3 {
				t.Errorf("unexpected load result %+v %v", results, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one computation, got %d", got)
	}
}

func TestResultsCacheKeysByVersion(t *testing.T) {
	cache, err := NewResultsCache(0)
	if err != nil {
		t.Fatalf("new results cache failed: %v", err)
	}
	counted := 0
	compute := func(context.Context) (entities.ElectionResults, error) {
		counted++
		return entities.ElectionResults{BallotsCounted: counted}, nil
	}

	first, _ := cache.Load(context.Background(), "e1:1", compute)
	again, _ := cache.Load(context.Background(), "e1:1", compute)
	if first.BallotsCounted != 1 || again.BallotsCounted != 1 {
		t.Fatalf("expected cached version reused, got %d then %d", first.BallotsCounted, again.BallotsCounted)
	}
	next, _ := cache.Load(context.Background(), "e1:2", compute)
	if next.BallotsCounted != 2 {
		t.Fatalf("expected new version recomputed, got %d", next.BallotsCounted)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected two cached versions, got %d", cache.Len())
	}
}

func TestResultsCacheDoesNotStoreFailures(t *testing.T) {
	cache, _ := NewResultsCache(2)
	boom := errors.New("ledger unavailable")
	if _, err := cache.Load(context.Background(), "e1:1", func(context.Context) (entities.ElectionResults, error) {
		return entities.ElectionResults{}, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected compute error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected failed computation left uncached")
	}
}

func TestResultsCacheSharedLoadSurvivesCallerCancel(t *testing.T) {
	cache, err := NewResultsCache(4)
	if err != nil {
		t.Fatalf("new results cache failed: %v", err)
	}
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (entities.ElectionResults, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return entities.ElectionResults{}, err
		}
		return entities.ElectionResults{ElectionID: "e1", BallotsCounted: 5}, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Load(firstCtx, "e1:5", compute)
		firstErr <- err
	}()
	<-started

	type loadResult struct {
		results entities.ElectionResults
		err     error
	}
	second := make(chan loadResult, 1)
	go func() {
		results, err := cache.Load(context.Background(), "e1:5", compute)
		second <- loadResult{results: results, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to return context.Canceled, got %v", err)
	}
	close(release)

	got := <-second
	if got.err != nil || got.results.BallotsCounted != 5 {
		t.Fatalf("expected shared load to finish for the waiting caller, got %+v %v", got.results, got.err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected one computation, got %d", n)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected finished computation cached, got %d", cache.Len())
	}
}

func TestResultsCacheBoundsSharedLoad(t *testing.T) {
	cache, err := NewResultsCache(2)
	if err != nil {
		t.Fatalf("new results cache failed: %v", err)
	}
	cache.ComputeTimeout = 10 * time.Millisecond
	_, err = cache.Load(context.Background(), "e1:1", func(ctx context.Context) (entities.ElectionResults, error) {
		<-ctx.Done()
		return entities.ElectionResults{}, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
