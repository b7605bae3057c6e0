package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"flapevo/internal/evo"
	"flapevo/internal/stats"
	"flapevo/internal/storage"
)

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(fs, sf)
	if err != nil {
		return err
	}
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := storage.NewCheckpointStore(backend, nil).Delete(ctx); err != nil {
		return err
	}
	if err := storage.NewBestStore(backend, nil).Delete(ctx); err != nil {
		return err
	}
	fmt.Printf("reset backend=%s path=%s\n", cfg.Persistence.Backend, cfg.StoragePath())
	return nil
}

func runInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(fs, sf)
	if err != nil {
		return err
	}
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if lister, ok := backend.(interface {
		Keys(ctx context.Context) ([]string, error)
	}); ok {
		keys, err := lister.Keys(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("keys=%v\n", keys)
	}

	size, err := recordSize(ctx, backend, storage.CheckpointKey)
	if err != nil {
		return err
	}
	checkpoint, ok := storage.NewCheckpointStore(backend, nil).Load(ctx)
	if !ok {
		fmt.Println("checkpoint=none")
	} else {
		members := 0
		if pop, err := evo.DecodePopulation(checkpoint.Population); err == nil {
			members = len(pop.Genomes)
		}
		fmt.Printf("checkpoint generation=%d population=%d size=%s\n",
			checkpoint.Generation, members, humanize.Bytes(uint64(size)))
		if s := checkpoint.Snapshot; s != nil {
			fmt.Printf("snapshot score=%d birds=%d pipes=%d\n", s.Score, len(s.Birds), len(s.Pipes))
		} else {
			fmt.Println("snapshot=none")
		}
	}

	size, err = recordSize(ctx, backend, storage.BestKey)
	if err != nil {
		return err
	}
	record, ok := storage.NewBestStore(backend, nil).Load(ctx)
	if !ok {
		fmt.Println("best=none")
		return nil
	}
	fmt.Printf("best genome=%s fitness=%.3f generation=%d neurons=%d synapses=%d size=%s\n",
		record.Genome.ID, record.Fitness, record.Generation,
		len(record.Genome.Neurons), len(record.Genome.Synapses), humanize.Bytes(uint64(size)))
	return nil
}

func recordSize(ctx context.Context, backend storage.Backend, key string) (int, error) {
	data, err := backend.Read(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dir := fs.String("output", "", "run artifacts directory")
	limit := fs.Int("limit", 20, "max runs to list")
	asJSON := fs.Bool("json", false, "print entries as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dir == "" {
		return usageError("runs requires --output")
	}

	entries, err := stats.ListRunIndex(*dir)
	if err != nil {
		return err
	}
	if *limit > 0 && len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, entry := range entries {
		fmt.Printf("run_id=%s generations=%d best=%.3f stop=%s finished_at=%s\n",
			entry.RunID, entry.Generations, entry.BestFitness, entry.StopReason, entry.FinishedAtUTC)
	}
	return nil
}

func runConfig(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	sf := addStoreFlags(fs)
	write := fs.String("write", "", "write the effective config to this path instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(fs, sf)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *write != "" {
		return cfg.WriteYAML(*write)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
