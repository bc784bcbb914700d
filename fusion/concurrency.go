package fusion

import "runtime"

// workerCount returns the number of goroutines used to partition a kernel
// batch (bilateral filter, map building, ICP reduction, TSDF integration,
// raycasting) across rows or z-slices, standing in for accelerator threads
// per SPEC_FULL.md's accelerator substitution.
func workerCount() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}
