package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach applique fn à chaque indice de [0,n), en au plus workers tranches contiguës.
// La première erreur annule les autres tranches ; une annulation de ctx est retournée telle quelle.
func ForEach(ctx context.Context, n, workers int, fn func(i int) error) error {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, shard := range Shards(n, workers) {
		lo, hi := shard[0], shard[1]
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := fn(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Shards découpe [0,n) en au plus k intervalles contigus.
func Shards(n, k int) [][2]int {
	if n <= 0 {
		return nil
	}
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	size := (n + k - 1) / k
	out := make([][2]int, 0, k)
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}
