package metrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// StartSampler runs a goroutine that periodically updates the process
// CPU/memory gauges until ctx is cancelled. Returns a done channel that
// closes when the sampler has stopped.
func StartSampler(ctx context.Context, logger zerolog.Logger, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to resolve own process, memory falls back to system-wide")
			proc = nil
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sample(logger, proc)
			}
		}
	}()

	return done
}

func sample(logger zerolog.Logger, proc *process.Process) {
	goroutines.Set(float64(runtime.NumGoroutine()))

	if proc != nil {
		if cpuPct, err := proc.CPUPercent(); err == nil {
			processCPUPercent.Set(cpuPct)
		} else {
			logger.Debug().Err(err).Msg("CPU sample failed")
		}
		if memInfo, err := proc.MemoryInfo(); err == nil {
			processMemoryBytes.Set(float64(memInfo.RSS))
			return
		}
	}

	// Fallback to system memory when per-process info is unavailable.
	if vmem, err := mem.VirtualMemory(); err == nil {
		processMemoryBytes.Set(float64(vmem.Used))
	}
}
