package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/delaneyj/chainparty/collection"
	"github.com/delaneyj/chainparty/reconcile"
	"github.com/delaneyj/chainparty/schedule"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

const (
	repeatsKey = "repeats"
	seedKey    = "seed"
)

type benchmarkConfig struct {
	name        string  // friendly name, should be unique
	size        int     // source items per round
	rounds      int     // source changes per run
	churn       float64 // fraction of items replaced with fresh ones each round
	incremental bool    // mutate the source in place instead of swapping it wholesale
}

var configs = []benchmarkConfig{
	{name: "shuffle small", size: 10, rounds: 20_000},
	{name: "shuffle medium", size: 100, rounds: 2_000},
	{name: "shuffle large", size: 1_000, rounds: 100},
	{name: "churn 10%", size: 100, rounds: 2_000, churn: 0.1},
	{name: "churn 50%", size: 100, rounds: 2_000, churn: 0.5},
	{name: "replace all", size: 100, rounds: 2_000, churn: 1},
	{name: "incremental", size: 100, rounds: 2_000, incremental: true},
}

func main() {
	cmd := &cli.Command{
		Name:  "benchmark_reconcile",
		Usage: "Measure keyed reconciliation of produced instances",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  repeatsKey,
				Usage: "Runs per config, the fastest is reported",
				Value: 5,
			},
			&cli.IntFlag{
				Name:  seedKey,
				Usage: "Random seed",
				Value: 0,
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

type item struct{ id int }

type instance struct{ item *item }

type counters struct {
	produced  int64
	destroyed int64
}

type result struct {
	counters
	duration time.Duration
}

func run(ctx context.Context, cmd *cli.Command) error {
	log.Print("Starting reconcile benchmark, please wait...")
	defer log.Print("Finished reconcile benchmark")

	repeats := int(cmd.Uint(repeatsKey))
	seed := int64(cmd.Int(seedKey))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"test", "size", "rounds", "churn", "mode",
		"time", "produced", "destroyed", "rounds/s",
	})

	for _, cfg := range configs {
		log.Printf("Running '%s' config", cfg.name)
		// warm up
		runOnce(ctx, cfg, seed)

		best := result{duration: time.Hour}
		for i := 0; i < repeats; i++ {
			res := runOnce(ctx, cfg, seed)
			if res.duration < best.duration {
				best = res
			}
		}

		mode := "batch"
		if cfg.incremental {
			mode = "incremental"
		}
		rate := float64(cfg.rounds) / best.duration.Seconds()
		table.Append([]string{
			cfg.name,
			humanize.Comma(int64(cfg.size)),
			humanize.Comma(int64(cfg.rounds)),
			fmt.Sprintf("%0.0f%%", 100*cfg.churn),
			mode,
			fmt.Sprint(best.duration),
			humanize.Comma(best.produced),
			humanize.Comma(best.destroyed),
			humanize.Comma(int64(rate)),
		})
	}
	table.Render()
	return nil
}

func runOnce(ctx context.Context, cfg benchmarkConfig, seed int64) result {
	random := rand.New(rand.NewSource(seed))
	loop := &schedule.Loop{}

	var c counters
	next := 0
	fresh := func() *item {
		next++
		return &item{id: next}
	}

	r := reconcile.New[*item, *instance](nil, reconcile.Funcs[*item, *instance]{
		ProduceFunc: func(_ context.Context, _ any, it *item) *instance {
			c.produced++
			return &instance{item: it}
		},
		DestroyFunc: func(*instance) { c.destroyed++ },
	},
		reconcile.WithContext(ctx),
		reconcile.WithScheduler(schedule.NewScheduler(loop.Post)),
	)
	defer r.Close()

	items := make([]*item, cfg.size)
	for i := range items {
		items[i] = fresh()
	}
	src := collection.New(items...)
	r.SetItems(src)
	loop.RunPending()

	start := time.Now()
	for round := 0; round < cfg.rounds; round++ {
		if cfg.incremental {
			mutate(src, random, fresh)
			continue
		}
		items = src.Items()
		random.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		for i := range items {
			if random.Float64() < cfg.churn {
				items[i] = fresh()
			}
		}
		src = collection.New(items...)
		r.SetItems(src)
		loop.RunPending()
	}
	duration := time.Since(start)

	if r.Instances().Len() != src.Len() {
		log.Fatalf("%s: %d instances for %d items", cfg.name, r.Instances().Len(), src.Len())
	}
	return result{counters: c, duration: duration}
}

// mutate applies one random in-place change, keeping the size stable.
func mutate(src *collection.List[*item], random *rand.Rand, fresh func() *item) {
	n := src.Len()
	switch random.Intn(4) {
	case 0:
		src.RemoveAt(random.Intn(n))
		src.Insert(fresh(), random.Intn(n), false)
	case 1:
		src.Move(random.Intn(n), random.Intn(n))
	case 2:
		src.Set(fresh(), random.Intn(n))
	case 3:
		src.Swap(random.Intn(n), random.Intn(n))
	}
}
