package capture

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"webvnc/internal/logger"
	"webvnc/internal/transport"
)

// Viewers groups authenticated sessions by monitor.
type Viewers interface {
	Viewers(count int) map[int][]transport.ConnID
}

// Sender delivers one binary frame to one connection.
type Sender interface {
	SendBinary(id transport.ConnID, data []byte) error
}

type BroadcasterConfig struct {
	Interval time.Duration
	Backend  Backend
	Topology *Topology
	Viewers  Viewers
	Sender   Sender
}

// Broadcaster grabs each watched monitor once per tick and fans the frame
// out to that monitor's viewers.
type Broadcaster struct {
	cfg  BroadcasterConfig
	warn rate.Sometimes
}

func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = 20 * time.Millisecond
	}
	if cfg.Topology == nil {
		cfg.Topology = NewTopology()
	}
	return &Broadcaster{
		cfg:  cfg,
		warn: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Run ticks until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Tick()
		}
	}
}

// Tick refreshes the monitor count and serves every monitor that has at
// least one viewer. It returns the number of frames sent.
func (b *Broadcaster) Tick() int {
	if n, err := b.cfg.Backend.ListMonitors(); err != nil {
		b.throttledWarn("list monitors failed", "err", err)
	} else if b.cfg.Topology.Set(n) {
		logger.Info("monitor count changed", "count", b.cfg.Topology.Count())
	}

	count := b.cfg.Topology.Count()
	viewers := b.cfg.Viewers.Viewers(count)
	sent := 0
	for idx := 1; idx <= count; idx++ {
		ids := viewers[idx]
		if len(ids) == 0 {
			continue
		}
		frame, err := b.cfg.Backend.Grab(idx)
		if err != nil {
			b.throttledWarn("grab failed", "monitor", idx, "err", err)
			continue
		}
		for _, id := range ids {
			if err := b.cfg.Sender.SendBinary(id, frame); err != nil {
				logger.Debug("frame send failed", "conn", id, "err", err)
				continue
			}
			sent++
		}
	}
	return sent
}

func (b *Broadcaster) throttledWarn(msg string, args ...any) {
	b.warn.Do(func() { logger.Warn(msg, args...) })
}
