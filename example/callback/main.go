package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/wattflow/pkg/wattflow"
)

func main() {
	cfg := wattflow.DefaultConfig()
	cfg.Sensors = []wattflow.SensorSpec{{Type: "simulated", Name: "psu", Power: 60, Jitter: 2}}

	c, err := wattflow.New(cfg)
	if err != nil {
		log.Fatalf("build collector: %v", err)
	}

	// The default config has no output, so readings only reach the callback.
	sensor := c.Status()[0].Handle
	desc := wattflow.NewDescriptor().
		Every(250 * time.Millisecond).
		DeliverMeasurements(func(m wattflow.Measurement, _ any) {
			fmt.Printf("%s %s %.2fW\n", m.Timestamp.Format(time.RFC3339Nano), m.Sensor, m.Power)
		})
	if err := c.Reconfigure(sensor, desc); err != nil {
		log.Fatalf("reconfigure: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil {
		log.Fatalf("collector error: %v", err)
	}
}
