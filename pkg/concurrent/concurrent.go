package concurrent

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ForEach runs action for every element with at most workers goroutines in flight.
// workers <= 0 means one goroutine per element. The first error cancels ctx for the
// remaining actions and is returned once every started action has finished.
// A panic in action is raised again on the calling goroutine.
func ForEach[T any](ctx context.Context, in []T, workers int, action func(context.Context, T) error) error {
	if len(in) == 0 {
		return nil
	}
	if workers == 1 || len(in) == 1 {
		for _, v := range in {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := action(ctx, v); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	var first firstPanic
	for _, v := range in {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = first.store(r)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			return action(gctx, v)
		})
	}
	err := g.Wait()
	first.raise()
	return err
}

// ParallelMap applies mapFn to every element and keeps the input order.
// workers <= 0 means one goroutine per element. A panic in mapFn is raised
// again on the calling goroutine once every started call has returned.
func ParallelMap[T any, R any](in []T, workers int, mapFn func(T) R) []R {
	out := make([]R, len(in))
	if workers <= 0 {
		workers = len(in)
	}
	var (
		wg    sync.WaitGroup
		first firstPanic
	)
	sem := make(chan struct{}, max(workers, 1))

	for idx, val := range in {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v T) {
			defer func() {
				if r := recover(); r != nil {
					first.store(r)
				}
				<-sem
				wg.Done()
			}()
			out[i] = mapFn(v)
		}(idx, val)
	}
	wg.Wait()
	first.raise()
	return out
}

// firstPanic keeps the first panic recovered from a group of workers.
type firstPanic struct {
	once sync.Once
	p    *Panic
}

func (f *firstPanic) store(r any) error {
	p := capture(r)
	f.once.Do(func() { f.p = p })
	return p
}

func (f *firstPanic) raise() {
	if f.p != nil {
		panic(f.p)
	}
}
