package credential

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// runBlocking runs task on a worker goroutine and waits for it. The task
// context keeps ctx's values but not its cancellation: a header rewrite that
// has started is never interrupted. A panic in task is returned as an error
// so the caller's deferred cleanup still runs.
func runBlocking(ctx context.Context, task func(context.Context) error) error {
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("credential: rekey panicked: %v", r)
			}
		}()
		return task(gctx)
	})
	return g.Wait()
}
