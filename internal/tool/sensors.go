package tool

import (
	"context"
	"errors"
	"time"

	"github.com/distatus/battery"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// BatteryReading is one battery's charge.
type BatteryReading struct {
	Percent float64
	// State is "Charging", "Discharging", "Full", "Idle", "Empty" or "Unknown".
	State string
}

// PluggedIn reports whether the machine is on external power.
func (b BatteryReading) PluggedIn() bool {
	return b.State != "Discharging" && b.State != "Empty"
}

// Sensors reads host load and battery state.
type Sensors interface {
	Usage(ctx context.Context) (cpuPercent, ramPercent float64, err error)
	Batteries(ctx context.Context) ([]BatteryReading, error)
}

// HostSensors reads the local machine.
type HostSensors struct {
	// CPUInterval is how long CPU load is sampled. Zero means one second.
	CPUInterval time.Duration
}

func (h HostSensors) Usage(ctx context.Context) (float64, float64, error) {
	interval := h.CPUInterval
	if interval <= 0 {
		interval = time.Second
	}
	load, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, 0, err
	}
	if len(load) == 0 {
		return 0, 0, errors.New("no cpu reading")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return load[0], vm.UsedPercent, nil
}

func (h HostSensors) Batteries(_ context.Context) ([]BatteryReading, error) {
	bats, err := battery.GetAll()
	var partial battery.Errors
	if err != nil && !errors.As(err, &partial) {
		return nil, err
	}
	var out []BatteryReading
	for i, b := range bats {
		if b == nil || b.Full <= 0 {
			continue
		}
		if i < len(partial) && partial[i] != nil && b.Current <= 0 {
			continue
		}
		out = append(out, BatteryReading{Percent: 100 * b.Current / b.Full, State: b.State.String()})
	}
	return out, nil
}
