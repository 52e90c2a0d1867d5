package observability

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// SysStats отдаёт статистику процесса для строки состояния сервера.
type SysStats struct {
	StartTime time.Time
}

// NewSysStats создаёт счётчик статистики с текущим моментом старта.
func NewSysStats() *SysStats {
	return &SysStats{StartTime: time.Now()}
}

// Uptime возвращает время работы в человекочитаемом виде.
func (s *SysStats) Uptime() string {
	uptime := time.Since(s.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	} else if hours > 0 {
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	}
	return fmt.Sprintf("%dс", seconds)
}

// MemoryMB возвращает объём занятой кучи в мегабайтах.
func (s *SysStats) MemoryMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.Alloc) / 1024 / 1024
}

// CPUPercent возвращает использование CPU процессом в процентах.
// Если метрика процесса недоступна, берётся системная.
func (s *SysStats) CPUPercent() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		cpuPercents, err := cpu.Percent(100*time.Millisecond, false)
		if err != nil || len(cpuPercents) == 0 {
			return 0, err
		}
		return cpuPercents[0], nil
	}

	return cpuPercent, nil
}

// Goroutines возвращает текущее число горутин.
func (s *SysStats) Goroutines() int {
	return runtime.NumGoroutine()
}
