package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bobbothe2nd/briny"
	"github.com/bobbothe2nd/briny/cell"
	"github.com/bobbothe2nd/briny/pool"
	"github.com/bobbothe2nd/briny/ref"
)

// scenarioConfig is the yaml shape of a stress run.
type scenarioConfig struct {
	Workers      int      `yaml:"workers"`
	Iterations   int      `yaml:"iterations"`
	PoolCapacity int      `yaml:"pool_capacity"`
	SpinBudget   int      `yaml:"spin_budget"`
	Scenarios    []string `yaml:"scenarios"`
}

func defaultConfig() scenarioConfig {
	return scenarioConfig{
		Workers:      8,
		Iterations:   100000,
		PoolCapacity: 64,
		SpinBudget:   128,
		Scenarios:    []string{"cell", "direct", "pool"},
	}
}

func runCommand(args []string) {
	cfg := defaultConfig()
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: reading scenario file: %v\n", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: parsing scenario file: %v\n", err)
			os.Exit(1)
		}
	}
	if cfg.Workers < 1 || cfg.Iterations < 1 || cfg.PoolCapacity < 1 || cfg.SpinBudget < 0 {
		fmt.Fprintln(os.Stderr, "Error: workers, iterations and pool_capacity must be positive")
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	log.Info("starting stress run",
		"workers", cfg.Workers,
		"iterations", cfg.Iterations,
		"pool_capacity", cfg.PoolCapacity,
		"spin_budget", cfg.SpinBudget)

	var violations int64
	for _, name := range cfg.Scenarios {
		var (
			v   int64
			err error
		)
		start := time.Now()
		switch name {
		case "cell":
			v = stressCell(cfg)
		case "direct":
			v = stressDirect(cfg)
		case "pool":
			v, err = stressPool(cfg)
		default:
			err = fmt.Errorf("unknown scenario %q", name)
		}
		if err != nil {
			log.Error("scenario failed", "scenario", name, "err", err)
			os.Exit(1)
		}
		log.Info("scenario complete",
			"scenario", name,
			"violations", v,
			"elapsed", time.Since(start))
		violations += v
	}

	if violations > 0 {
		log.Error("invariant violations observed", "total", violations)
		os.Exit(1)
	}
	log.Info("all scenarios passed")
}

// stressCell mixes bounded reads and writes on one cell and counts every
// instant where a write guard coexists with any other guard.
func stressCell(cfg scenarioConfig) int64 {
	c := cell.New(0)

	var (
		wg            sync.WaitGroup
		shadowWriters atomic.Int32
		shadowReaders atomic.Int32
		violations    atomic.Int64
	)
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < cfg.Iterations; i++ {
				if (i+seed)%4 == 0 {
					g, err := c.Write(cfg.SpinBudget)
					if err != nil {
						continue
					}
					if shadowWriters.Add(1) != 1 || shadowReaders.Load() != 0 {
						violations.Add(1)
					}
					*g.Get()++
					shadowWriters.Add(-1)
					g.Release()
				} else {
					g, err := c.Read(cfg.SpinBudget)
					if err != nil {
						continue
					}
					shadowReaders.Add(1)
					if shadowWriters.Load() != 0 {
						violations.Add(1)
					}
					_ = *g.Get()
					shadowReaders.Add(-1)
					g.Release()
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Readers() != 0 {
		violations.Add(1)
	}
	return violations.Load()
}

// stressDirect churns clone/drop pairs against one anchored value and checks
// the counter returns to its starting point.
func stressDirect(cfg scenarioConfig) int64 {
	var anchor ref.Anchor[int]
	root := ref.New(&anchor, 7)

	var (
		wg         sync.WaitGroup
		violations atomic.Int64
	)
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < cfg.Iterations; i++ {
				h, err := root.Clone()
				if err != nil {
					violations.Add(1)
					return
				}
				if err := h.Drop(); err != nil {
					violations.Add(1)
					return
				}
			}
		}()
	}
	wg.Wait()

	if root.Count() != 1 {
		violations.Add(1)
	}
	if err := root.Drop(); err != nil {
		violations.Add(1)
	}
	if anchor.Bound() {
		violations.Add(1)
	}
	return violations.Load()
}

// stressPool churns acquire/clone/drop cycles against a fixed slot table and
// checks every slot returns to the free list. Transient exhaustion is
// expected behavior, not a violation.
func stressPool(cfg scenarioConfig) (int64, error) {
	p, err := pool.New(cfg.PoolCapacity, func(v *int) { *v = 0 })
	if err != nil {
		return 0, err
	}

	var (
		wg         sync.WaitGroup
		violations atomic.Int64
	)
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < cfg.Iterations; i++ {
				r, err := p.Acquire(seed)
				if errors.Is(err, briny.ErrExhausted) {
					continue
				}
				if err != nil {
					violations.Add(1)
					return
				}
				if i%2 == 0 {
					h, err := r.Clone()
					if err != nil {
						violations.Add(1)
						return
					}
					if err := h.Drop(); err != nil {
						violations.Add(1)
						return
					}
				}
				if err := r.Drop(); err != nil {
					violations.Add(1)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if p.Free() != p.Cap() {
		violations.Add(1)
	}
	return violations.Load(), nil
}
