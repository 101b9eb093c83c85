package worker

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// processMemoryPercent reports this process's share of system memory as a
// ratio in [0,1]. Errors degrade to 0 rather than failing the heartbeat; the
// master treats memory as advisory.
func processMemoryPercent() float64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	pct, err := p.MemoryPercent()
	if err != nil {
		return 0
	}
	return float64(pct) / 100
}
