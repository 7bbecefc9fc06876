package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/wattflow"
)

func main() {
	flow, err := wattflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := wattflow.NewChannelSink("fanout", 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		fanoutWorker("energy", batches)
	}()

	err = flow.StreamIN(wattflow.StreamInDiscovered()).Run(ctx, wattflow.StreamOutSink(sink))
	closeBatches()
	<-done
	if err != nil {
		log.Fatalf("collector error: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan []wattflow.Record) {
	var joules float64
	last := map[string]time.Time{}
	for batch := range batches {
		for _, r := range batch {
			if r.Kind != "sample" {
				continue
			}
			if prev, ok := last[r.Sensor]; ok {
				joules += r.Power * r.At.Sub(prev).Seconds()
			}
			last[r.Sensor] = r.At
		}
		fmt.Printf("[%s] %d records, %.3f J so far\n", name, len(batch), joules)
	}
}
