package limits

import (
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/t2bot/s3-folder-export/common/rcontext"
	"github.com/t2bot/s3-folder-export/metrics"
)

type MemorySample struct {
	HeapAlloc uint64
	HeapSys   uint64
	Sys       uint64
}

type Sampler func() MemorySample

func ReadRuntimeMemory() MemorySample {
	stats := runtime.MemStats{}
	runtime.ReadMemStats(&stats)
	return MemorySample{
		HeapAlloc: stats.HeapAlloc,
		HeapSys:   stats.HeapSys,
		Sys:       stats.Sys,
	}
}

// MemoryGovernor is a soft throttle: callers over the heap ceiling are held for a cooldown,
// but nothing is ever cancelled because of memory pressure.
type MemoryGovernor struct {
	ceiling  uint64
	cooldown time.Duration
	sample   Sampler
	log      rcontext.RequestContext
}

func NewMemoryGovernor(ctx rcontext.RequestContext, ceilingBytes uint64, cooldown time.Duration) *MemoryGovernor {
	return &MemoryGovernor{
		ceiling:  ceilingBytes,
		cooldown: cooldown,
		sample:   ReadRuntimeMemory,
		log:      ctx,
	}
}

// WithSampler replaces how memory usage is measured.
func (g *MemoryGovernor) WithSampler(sampler Sampler) *MemoryGovernor {
	g.sample = sampler
	return g
}

// CheckAndPause returns true if the caller was held back for a cooldown. Cancelling the context
// ends the cooldown early.
func (g *MemoryGovernor) CheckAndPause(ctx rcontext.RequestContext) bool {
	if g.ceiling == 0 {
		return false
	}
	s := g.sample()
	metrics.HeapBytes.Set(float64(s.HeapAlloc))
	if s.HeapAlloc <= g.ceiling {
		return false
	}

	ctx.Log.Warnf("Heap usage %s is over the %s ceiling, pausing for %s", humanize.IBytes(s.HeapAlloc), humanize.IBytes(g.ceiling), g.cooldown)
	metrics.MemoryPauses.Inc()
	timer := time.NewTimer(g.cooldown)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return true
}

// StartMonitoring logs memory usage every interval until the returned function is called.
func (g *MemoryGovernor) StartMonitoring(interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s := g.sample()
				metrics.HeapBytes.Set(float64(s.HeapAlloc))
				g.log.Log.Infof("Memory usage: heap %s of %s reserved, %s from the OS", humanize.IBytes(s.HeapAlloc), humanize.IBytes(s.HeapSys), humanize.IBytes(s.Sys))
			case <-done:
				return
			case <-g.log.Done():
				return
			}
		}
	}()
	once := &sync.Once{}
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
