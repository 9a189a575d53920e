package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/frostline"
)

func main() {
	flow, err := frostline.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := frostline.NewChannelSink("fanout", 32)
	defer closeBatches()

	go fanoutWorker("dashboard", batches)

	if err := flow.Run(ctx, frostline.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan []frostline.Reading) {
	for batch := range batches {
		fmt.Printf("[%s] forwarding %d readings at %s\n", name, len(batch), time.Now().Format(time.RFC3339))
	}
}
