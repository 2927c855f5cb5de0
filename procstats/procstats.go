// Package procstats samples the current process's resource usage for
// the healthcheck endpoint, degrading to a "?" placeholder on any
// probe failure rather than failing the healthcheck itself.
package procstats

import (
	"os"
	"strconv"

	"github.com/shirou/gopsutil/v3/process"
)

// Sample is a best-effort snapshot of the running process.
type Sample struct {
	CPUPercent    string `json:"cpu_percent"`
	RSSBytes      string `json:"rss_bytes"`
	VMSBytes      string `json:"vms_bytes"`
	MemoryPercent string `json:"memory_percent"`
}

// Current samples the calling process. Each field independently falls
// back to "?" if gopsutil can't read it, matching the original
// healthcheck handler's degrade-don't-fail behavior.
func Current() Sample {
	s := Sample{CPUPercent: "?", RSSBytes: "?", VMSBytes: "?", MemoryPercent: "?"}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return s
	}

	if cpu, err := proc.CPUPercent(); err == nil {
		s.CPUPercent = strconv.FormatFloat(cpu, 'f', 2, 64)
	}
	if memInfo, err := proc.MemoryInfo(); err == nil {
		s.RSSBytes = strconv.FormatUint(memInfo.RSS, 10)
		s.VMSBytes = strconv.FormatUint(memInfo.VMS, 10)
	}
	if memPct, err := proc.MemoryPercent(); err == nil {
		s.MemoryPercent = strconv.FormatFloat(float64(memPct), 'f', 2, 64)
	}
	return s
}
