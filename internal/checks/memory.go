package checks

import (
	"context"
	"runtime"

	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/health"
	"github.com/keithlinneman/linnemanlabs-healthprobe/internal/xerrors"
)

// Memory fails once the live heap exceeds maxHeap bytes. 0 disables the limit.
func Memory(maxHeap uint64) health.CheckFunc {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if maxHeap == 0 {
			return nil
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > maxHeap {
			return xerrors.Newf("heap %d bytes over limit %d (goroutines=%d)", ms.HeapAlloc, maxHeap, runtime.NumGoroutine())
		}
		return nil
	}
}
