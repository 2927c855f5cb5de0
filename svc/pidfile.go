package svc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// pidRecord is the JSON document written alongside a running instance,
// useful for an operator to identify which process owns which guid
// without talking to the directory.
type pidRecord struct {
	Name      string `json:"name"`
	GUID      string `json:"guid"`
	PID       int    `json:"pid"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	StartTime int64  `json:"start_time"`
	Cmdline   string `json:"cmdline"`
}

func pidOf() int { return os.Getpid() }

// pidFilePath is <dir>/<name>/<pid>.
func pidFilePath(dir, name string, pid int) string {
	return filepath.Join(dir, name, strconv.Itoa(pid))
}

// writePIDFile records the running instance's identity and command
// line for operator inspection.
func writePIDFile(dir string, r *Runtime) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Join(dir, r.Name), 0o755); err != nil {
		return err
	}

	cmdline := ""
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if parts, err := p.CmdlineSlice(); err == nil {
			cmdline = strings.Join(parts, " ")
		}
	}

	record := pidRecord{
		Name:      r.Name,
		GUID:      r.GUID,
		PID:       os.Getpid(),
		Host:      r.Host,
		Port:      r.Port,
		StartTime: r.StartTime,
		Cmdline:   cmdline,
	}
	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(dir, r.Name, record.PID), body, 0o644)
}

// removePIDFile deletes the pid file written at startup; a missing
// file is not an error, since shutdown may run twice (e.g. handler
// stop followed by signal).
func removePIDFile(dir, name, _ string) {
	if dir == "" {
		return
	}
	_ = os.Remove(pidFilePath(dir, name, pidOf()))
}
