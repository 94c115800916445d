package sensor

import (
	"bufio"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClockProvider publishes process uptime in seconds. Scripts read it
// through host.sensor("clock") for time-driven effects.
type ClockProvider struct {
	period time.Duration
	start  time.Time
}

func NewClockProvider(period time.Duration) *ClockProvider {
	return &ClockProvider{period: period, start: time.Now()}
}

func (c *ClockProvider) Name() string          { return "clock" }
func (c *ClockProvider) Period() time.Duration { return c.period }
func (c *ClockProvider) Sample() (float64, []float64) {
	return time.Since(c.start).Seconds(), nil
}

// CPUProvider publishes the 1-minute load average on Linux by reading
// /proc/loadavg; on any other platform (or read failure) it reports 0,
// matching the Non-goal that system telemetry acquisition itself is out
// of scope -- only the minimal read contract is implemented.
type CPUProvider struct {
	period time.Duration
}

func NewCPUProvider(period time.Duration) *CPUProvider {
	return &CPUProvider{period: period}
}

func (c *CPUProvider) Name() string          { return "cpu_load" }
func (c *CPUProvider) Period() time.Duration { return c.period }
func (c *CPUProvider) Sample() (float64, []float64) {
	f, err := os.Open("/proc/loadavg")
	if err != nil {
		return 0, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, nil
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// AudioProvider publishes a loudness scalar and a coarse band vector.
// Real audio capture is a Non-goal; this provider is a deterministic
// synthetic signal so scripts written against host.sensor("audio") can
// be developed and tested without a capture backend. A real capture
// library would satisfy the same Provider interface.
type AudioProvider struct {
	period time.Duration
	bands  int
	phase  float64
}

func NewAudioProvider(period time.Duration, bands int) *AudioProvider {
	return &AudioProvider{period: period, bands: bands}
}

func (a *AudioProvider) Name() string          { return "audio" }
func (a *AudioProvider) Period() time.Duration { return a.period }
func (a *AudioProvider) Sample() (float64, []float64) {
	a.phase += 0.15
	vec := make([]float64, a.bands)
	loudness := 0.0
	for i := range vec {
		v := 0.5 + 0.5*math.Sin(a.phase+float64(i))
		vec[i] = v
		loudness += v
	}
	if a.bands > 0 {
		loudness /= float64(a.bands)
	}
	return loudness, vec
}
