// Package app wires the policy gate, cadence scheduler, state machine and
// store into the dispatch loop.
package app

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/example/companion-bot/internal/adapter"
	"github.com/example/companion-bot/internal/cadence"
	"github.com/example/companion-bot/internal/clock"
	"github.com/example/companion-bot/internal/config"
	"github.com/example/companion-bot/internal/conversation"
	"github.com/example/companion-bot/internal/policy"
	"github.com/example/companion-bot/internal/repository"
)

// historyLimit bounds how much context is loaded for generation and the
// anti-repetition scan.
const historyLimit = 20

// App coordinates adapters, the policy engine, the scheduler and the store.
// Construct one per process (or per test); it holds no global state.
type App struct {
	cfg      *config.Config
	store    repository.ConversationStore
	adapters map[string]adapter.Adapter
	policy   *policy.Engine
	sched    *cadence.Scheduler
	engine   *conversation.Engine
	locks    *userLocks
	clock    *clock.Resolver
	now      func() time.Time
}

func New(cfg *config.Config, store repository.ConversationStore, adapters []adapter.Adapter, gen conversation.Generator) *App {
	resolver := clock.NewResolver()
	var sim policy.Similarity = policy.Exact{}
	if cfg.Similarity == "jaccard" {
		sim = policy.Jaccard{Threshold: 0.9}
	}
	adMap := make(map[string]adapter.Adapter, len(adapters))
	for _, ad := range adapters {
		adMap[ad.Platform()] = ad
	}
	return &App{
		cfg:      cfg,
		store:    store,
		adapters: adMap,
		clock:    resolver,
		policy: policy.NewEngine(policy.Config{
			QuietHoursStart: cfg.QuietHoursStart,
			QuietHoursEnd:   cfg.QuietHoursEnd,
			MaxDaily:        cfg.MaxDailyMessages,
			Window:          cfg.RepetitionWindow,
			DefaultTimezone: cfg.Timezone,
		}, resolver, sim),
		sched: cadence.New(cadence.Config{
			MinDays:         cfg.CadenceMinDays,
			MaxDays:         cfg.CadenceMaxDays,
			QuietHoursStart: cfg.QuietHoursStart,
			QuietHoursEnd:   cfg.QuietHoursEnd,
			DefaultTimezone: cfg.Timezone,
		}, resolver, nil),
		engine: conversation.NewEngine(cfg.Persona, gen, nil),
		locks:  newUserLocks(),
		now:    time.Now,
	}
}

// Run polls every adapter and ticks the due-scan until the context is done
// or an interrupt arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var wg sync.WaitGroup
	for _, ad := range a.adapters {
		wg.Add(1)
		go func(ad adapter.Adapter) {
			defer wg.Done()
			a.pollAdapter(ctx, ad)
		}(ad)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scanDue(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (a *App) pollAdapter(ctx context.Context, ad adapter.Adapter) {
	for {
		msgs, err := ad.Poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			log.Println("poll "+ad.Platform()+":", err)
			time.Sleep(time.Second)
			continue
		}
		for _, m := range msgs {
			a.handleInbound(ctx, ad, m)
		}
	}
}

func (a *App) scanDue(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.DueScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runDueScan(ctx, a.now())
		}
	}
}
