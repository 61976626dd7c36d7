package num

import (
	"fmt"
	"runtime"
	"sync"
)

// Element wise kernels below this size always run on a single goroutine.
const minParallelSize = 4096

// Device selects how much intra op parallelism the element wise kernels
// may use. Matrix products always go through BLAS regardless of device.
// Workers is at least 1; results are identical whatever the setting.
type Device struct {
	Workers int
}

// Select resolves a device by name: "auto" and "parallel" use one worker
// per available CPU, "serial" forces a single worker. Requesting parallel
// execution on a single CPU machine quietly runs serial, there is no
// failure path.
func Select(name string) (Device, error) {
	switch name {
	case "", "auto", "parallel":
		w := runtime.GOMAXPROCS(0)
		if w < 1 {
			w = 1
		}
		return Device{Workers: w}, nil
	case "serial":
		return Device{Workers: 1}, nil
	}
	return Device{}, fmt.Errorf("num: unknown device %q", name)
}

func (d Device) String() string {
	if d.Workers > 1 {
		return fmt.Sprintf("cpu[%d]", d.Workers)
	}
	return "cpu"
}

// apply runs fn over [0,n) split into contiguous ranges, one per worker.
// Each index is visited exactly once so results do not depend on the
// worker count.
func (d Device) apply(n int, fn func(lo, hi int)) {
	if d.Workers < 2 || n < minParallelSize {
		fn(0, n)
		return
	}
	workers := d.Workers
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
