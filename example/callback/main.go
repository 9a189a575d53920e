package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/frostline/pkg/frostline"
)

func main() {
	flow, err := frostline.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []frostline.Reading) error {
		for _, r := range batch {
			fmt.Printf("%s seq=%d co2=%s air=%s\n",
				r.Timestamp.Format(time.RFC3339),
				r.Seq,
				orDash(r.CO2PPM),
				r.AirQuality,
			)
		}
		return nil
	}
	alerts := func(a frostline.Assessment) {
		for _, w := range a.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		for _, v := range a.Verdicts {
			fmt.Printf("  spoiled: %s %v\n", v.Name, v.Reasons)
		}
	}

	if err := flow.Run(ctx,
		frostline.StreamOutCallback("stdout", callback),
		frostline.StreamOutAssessments(alerts),
	); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func orDash(v *uint16) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
