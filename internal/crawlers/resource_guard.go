package crawlers

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/ExamCrawler/internal/utils"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceConfig 启动浏览器前的资源检查配置
type ResourceConfig struct {
	MinAvailableMemoryMB int           `mapstructure:"min_available_memory_mb"` // 可用内存下限, 0=不检查
	CPULoadThreshold     float64       `mapstructure:"cpu_load_threshold"`      // CPU使用率上限(%), >=100 视为禁用
	MaxChecks            int           `mapstructure:"max_checks"`              // 最多检查次数
	CheckInterval        time.Duration `mapstructure:"check_interval"`          // 检查间隔
}

// MemoryStatus 内存状态信息
type MemoryStatus struct {
	TotalMemory     uint64 // 系统总内存(字节)
	AvailableMemory uint64 // 可用内存(字节)
	MemoryPressure  string // normal|warning|critical|emergency
}

// ResourceGuard 浏览器启动前的资源闸门
// 资源不足时按固定间隔等待, 检查次数用尽后仍放行并记录警告
type ResourceGuard struct {
	cfg        ResourceConfig
	memory     func() (*mem.VirtualMemoryStat, error)
	cpuPercent func(interval time.Duration, percpu bool) ([]float64, error)
	sleep      func(ctx context.Context, d time.Duration) error
	log        zerolog.Logger
}

// NewResourceGuard 创建资源闸门
func NewResourceGuard(cfg ResourceConfig) *ResourceGuard {
	if cfg.MaxChecks < 1 {
		cfg.MaxChecks = 1
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 2 * time.Second
	}
	return &ResourceGuard{
		cfg:        cfg,
		memory:     mem.VirtualMemory,
		cpuPercent: cpu.Percent,
		sleep:      utils.Sleep,
		log:        utils.Component("resource"),
	}
}

// MemoryStatus 获取当前内存状态
func (g *ResourceGuard) MemoryStatus() (MemoryStatus, error) {
	vm, err := g.memory()
	if err != nil {
		return MemoryStatus{}, fmt.Errorf("获取系统内存失败: %w", err)
	}

	var pressure string
	availableMB := vm.Available / (1024 * 1024)
	switch {
	case availableMB < 200:
		pressure = "emergency"
	case availableMB < 300:
		pressure = "critical"
	case availableMB < 500:
		pressure = "warning"
	default:
		pressure = "normal"
	}

	return MemoryStatus{
		TotalMemory:     vm.Total,
		AvailableMemory: vm.Available,
		MemoryPressure:  pressure,
	}, nil
}

// Check 检查当前资源是否允许启动浏览器
// 采集失败时放行
func (g *ResourceGuard) Check() (ok bool, reason string) {
	if g.cfg.MinAvailableMemoryMB > 0 {
		status, err := g.MemoryStatus()
		if err != nil {
			g.log.Warn().Err(err).Msg("内存检查失败,跳过")
		} else if availableMB := status.AvailableMemory / (1024 * 1024); availableMB < uint64(g.cfg.MinAvailableMemoryMB) {
			return false, fmt.Sprintf("可用内存不足(当前%dMB, 压力=%s)", availableMB, status.MemoryPressure)
		}
	}

	if g.cfg.CPULoadThreshold > 0 && g.cfg.CPULoadThreshold < 100 {
		percentages, err := g.cpuPercent(100*time.Millisecond, false)
		if err != nil || len(percentages) == 0 {
			g.log.Warn().Err(err).Msg("CPU使用率获取失败,跳过")
		} else if percentages[0] > g.cfg.CPULoadThreshold {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", percentages[0])
		}
	}

	return true, ""
}

// WaitForCapacity 等待资源可用, 最多检查 MaxChecks 次
// 只有context取消时返回错误
func (g *ResourceGuard) WaitForCapacity(ctx context.Context) error {
	for check := 1; ; check++ {
		ok, reason := g.Check()
		if ok {
			return nil
		}
		if check >= g.cfg.MaxChecks {
			g.log.Warn().Str("reason", reason).Int("checks", check).Msg("⚠️ 资源仍然紧张,继续启动浏览器")
			return nil
		}
		g.log.Info().Str("reason", reason).Dur("wait", g.cfg.CheckInterval).Msg("资源紧张,等待后重试")
		if err := g.sleep(ctx, g.cfg.CheckInterval); err != nil {
			return err
		}
	}
}
