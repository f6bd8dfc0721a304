package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/roomcast/roomcast/model"
	"github.com/rs/zerolog"
)

// Persister periodically snapshots the whole history log to a single JSON
// file. There is exactly one persister per process, so the backing file
// needs no additional locking.
type (
	HistorySource interface {
		Snapshot() []model.ChatMessage
	}

	Config struct {
		Logger   *zerolog.Logger
		Source   HistorySource
		Path     string
		Interval time.Duration
	}

	Persister struct {
		logger   zerolog.Logger
		source   HistorySource
		path     string
		interval time.Duration
	}
)

func NewPersister(cfg Config) *Persister {
	return &Persister{
		logger:   cfg.Logger.With().Str("component", "persister").Logger(),
		source:   cfg.Source,
		path:     cfg.Path,
		interval: cfg.Interval,
	}
}

// Load reads the previously persisted history. A missing, empty, or
// unparsable file yields an empty log; startup never fails on it.
func (p *Persister) Load() []model.ChatMessage {
	b, err := os.ReadFile(p.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn().Err(err).Str("path", p.path).Msg("cannot read history file, starting empty")
		}
		return nil
	}

	var msgs []model.ChatMessage
	if err = json.Unmarshal(b, &msgs); err != nil {
		p.logger.Warn().Err(err).Str("path", p.path).Msg("cannot parse history file, starting empty")
		return nil
	}

	p.logger.Info().Int("messages", len(msgs)).Str("path", p.path).Msg("history loaded")
	return msgs
}

// Run saves on every tick until the context is canceled, then writes a final
// snapshot. A failed save is logged and the next tick still runs.
func (p *Persister) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer func() {
		p.logger.Debug().Msg("persister stopped")
		wg.Done()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.SaveNow()
			return
		case <-ticker.C:
			p.SaveNow()
		}
	}
}

// SaveNow writes the current full snapshot, overwriting prior content.
func (p *Persister) SaveNow() {
	snap := p.source.Snapshot()

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		p.logger.Error().Err(err).Msg("cannot serialize history")
		return
	}
	if err = os.WriteFile(p.path, b, 0o644); err != nil {
		p.logger.Error().Err(err).Str("path", p.path).Msg("cannot write history file")
		return
	}
	p.logger.Debug().Int("messages", len(snap)).Msg("history saved")
}
