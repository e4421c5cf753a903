package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/airhawk/common/messaging"
	"github.com/telhawk-systems/airhawk/tools/frame-seeder/scenarios"

	natsclient "github.com/telhawk-systems/airhawk/common/messaging/nats"
)

var (
	scenarioName = flag.String("scenario", "random", "scenario to generate (weak, strong, both, random)")
	count        = flag.Int("count", 20, "number of frames per scenario")
	interval     = flag.Duration("interval", 0, "delay between frames")
	noiseRatio   = flag.Float64("noise", 0.3, "share of non-deauth frames in the random scenario")
	outputKind   = flag.String("output", "stdout", "where frames go: stdout or nats")
	natsURL      = flag.String("nats-url", "nats://localhost:4222", "NATS server URL for -output=nats")
	subject      = flag.String("subject", messaging.SubjectCaptureFrames, "NATS subject for -output=nats")
	seed         = flag.Int64("seed", 0, "random seed (0 uses the clock)")
	listOnly     = flag.Bool("list", false, "list scenarios and exit")
)

// sink receives one encoded frame at a time.
type sink func(ctx context.Context, data []byte) error

func main() {
	flag.Parse()

	if *listOnly {
		for _, name := range scenarios.List() {
			s, _ := scenarios.Get(name)
			fmt.Printf("%-8s %s\n", name, s.Description())
		}
		return
	}

	sc, ok := scenarios.Get(*scenarioName)
	if !ok {
		log.Fatalf("Unknown scenario %q (available: %v)", *scenarioName, scenarios.List())
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	gofakeit.Seed(*seed)

	ctx := context.Background()
	var out sink
	switch *outputKind {
	case "stdout":
		out = writerSink(os.Stdout)
	case "nats":
		client, err := natsclient.NewClient(natsclient.Config{
			URL:     *natsURL,
			Name:    "airhawk-frame-seeder",
			Timeout: 5 * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer client.Close()
		out = func(ctx context.Context, data []byte) error {
			return client.Publish(ctx, *subject, data)
		}
		defer func() {
			if err := client.Flush(ctx); err != nil {
				log.Printf("Flush failed: %v", err)
			}
		}()
	default:
		log.Fatalf("Unknown output %q (supported: stdout, nats)", *outputKind)
	}

	log.Printf("Starting frame seeder: scenario=%s count=%d output=%s seed=%d",
		sc.Name(), *count, *outputKind, *seed)

	frames := sc.Generate(scenarios.Config{Now: time.Now(), Count: *count, NoiseRatio: *noiseRatio})
	sent, deauths, err := emit(ctx, frames, out, *interval)
	if err != nil {
		log.Printf("Stopped after %d frames: %v", sent, err)
	}
	log.Printf("Seeding complete: %d frames (%d deauth)", sent, deauths)
}

func writerSink(w io.Writer) sink {
	return func(_ context.Context, data []byte) error {
		_, err := w.Write(append(data, '\n'))
		return err
	}
}

// emit encodes and sends frames in order, pausing interval between them.
func emit(ctx context.Context, frames []scenarios.Frame, out sink, interval time.Duration) (sent, deauths int, err error) {
	for i, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			return sent, deauths, fmt.Errorf("encode frame %d: %w", i, err)
		}
		if err := out(ctx, data); err != nil {
			return sent, deauths, err
		}
		sent++
		if f.IsDeauth() {
			deauths++
		}
		if interval > 0 && i < len(frames)-1 {
			time.Sleep(interval)
		}
	}
	return sent, deauths, nil
}
