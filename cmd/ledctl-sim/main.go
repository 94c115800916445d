// Command ledctl-sim runs the full pipeline against an in-memory
// simulated device so scripts and profiles can be developed and
// iterated on without hardware attached.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arcaluminis/ledctl/internal/adapter/sim"
	"github.com/arcaluminis/ledctl/internal/diagnostics"
	"github.com/arcaluminis/ledctl/internal/pipeline"
	"github.com/arcaluminis/ledctl/internal/sensor"
	"github.com/arcaluminis/ledctl/internal/topology"
)

func main() {
	var (
		profilePath = flag.String("profile", "", "path to profile descriptor yaml")
		ledCount    = flag.Int("leds", 16, "simulated LED count")
		duration    = flag.Duration("for", 0, "stop after this long (0 runs until Ctrl+C)")
	)
	flag.Parse()

	if *profilePath == "" {
		fmt.Fprintln(os.Stderr, "usage: ledctl-sim -profile path/to/profile.yaml")
		os.Exit(2)
	}

	topo := topology.New(topology.Dim{X: *ledCount, Y: 1, Z: 1}, topology.Order{}, nil)
	dev := sim.New(topo, 120)

	sink := diagnostics.ConsoleSink{}
	pl := pipeline.New(sink)
	pl.AddDevice("sim0", dev)
	pl.RegisterSensor(sensor.NewClockProvider(time.Second))
	pl.RegisterSensor(sensor.NewAudioProvider(33*time.Millisecond, 8))

	ctx, cancel := context.WithCancel(context.Background())
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
	}
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			frames := dev.Frames()
			if len(frames) > 0 {
				fmt.Printf("frame %5d: first led = %v\n", len(frames), frames[len(frames)-1][:3])
			}
		}
	}()

	if err := pl.Run(ctx, *profilePath); err != nil {
		fmt.Fprintln(os.Stderr, "ledctl-sim:", err)
		os.Exit(1)
	}
}
