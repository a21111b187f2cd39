// Package stats refreshes the user-count gauges from the store on a cron
// schedule, so /metrics reflects the table without a query per scrape.
package stats

import (
	"context"
	"log/slog"

	"github.com/davmie/userbase/internal/metrics"
	"github.com/davmie/userbase/internal/repo"
	"github.com/robfig/cron/v3"
)

type Collector struct {
	Users *repo.UserRepo
	Spec  string // cron expression, e.g. "@every 1m"

	cr *cron.Cron
}

func NewCollector(users *repo.UserRepo, spec string) *Collector {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Collector{Users: users, Spec: spec}
}

// Start refreshes the gauges once, then keeps refreshing on the cron
// schedule in the background until Stop is called.
func (c *Collector) Start() error {
	c.cr = cron.New()
	if _, err := c.cr.AddFunc(c.Spec, c.refresh); err != nil {
		return err
	}
	c.refresh()
	c.cr.Start()
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (c *Collector) Stop() {
	if c.cr != nil {
		<-c.cr.Stop().Done()
	}
}

func (c *Collector) refresh() {
	ctx := context.Background()

	total, err := c.Users.Count(ctx)
	if err != nil {
		slog.Warn("stats: count users", "error", err)
		return
	}
	active, err := c.Users.CountActive(ctx)
	if err != nil {
		slog.Warn("stats: count active users", "error", err)
		return
	}
	metrics.SetUserCounts(total, active)
}
