package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/ghalamif/frostline"
)

// A bench simulator publishing synthetic readings through the WAL-backed
// publisher instead of real hardware.
func main() {
	sink := frostline.NewCallbackSink("stdout", func(batch []frostline.Reading) error {
		for _, r := range batch {
			fmt.Printf("seq=%d co2=%d\n", r.Seq, *r.CO2PPM)
		}
		return nil
	})

	pub, err := frostline.NewPublisher(&frostline.PublisherConfig{
		WAL: frostline.WALConfig{Dir: "./data/publisher-wal"},
	}, sink)
	if err != nil {
		log.Fatalf("publisher: %v", err)
	}

	ctx := context.Background()
	for seq := uint64(1); seq <= 10; seq++ {
		co2 := uint16(400 + rand.Intn(800))
		r := &frostline.Reading{
			Seq:       seq,
			SourceID:  "bench",
			Timestamp: time.Now(),
			CO2PPM:    &co2,
		}
		if err := pub.Publish(ctx, r); err != nil {
			log.Fatalf("publish: %v", err)
		}
	}

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pub.Close(closeCtx); err != nil {
		log.Fatalf("close: %v", err)
	}
}
