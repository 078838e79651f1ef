package syncx

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Emitter records an event in the local log and then forwards it to the
// publisher. Both steps are best effort: failures are logged, never returned,
// because events are emitted after the session change has committed.
type Emitter struct {
	repo   *EventRepo
	pub    Publisher
	siteID string
	log    *slog.Logger
}

// NewEmitter accepts nil repo or pub to skip that destination.
func NewEmitter(repo *EventRepo, pub Publisher, siteID string, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	if siteID == "" {
		siteID = "local"
	}
	return &Emitter{repo: repo, pub: pub, siteID: siteID, log: log}
}

func (e *Emitter) Emit(ctx context.Context, typ, key string, payload any) {
	if e == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.Error("marshal event", "type", typ, "key", key, "err", err)
		return
	}
	ev := Event{SiteID: e.siteID, Type: typ, Key: key, DataJSON: string(data)}
	if e.repo != nil {
		if err := e.repo.Append(ctx, ev); err != nil {
			e.log.Error("append event", "type", typ, "key", key, "err", err)
		}
	}
	if e.pub != nil {
		if err := e.pub.Publish(ctx, ev); err != nil {
			e.log.Warn("publish event", "type", typ, "key", key, "err", err)
		}
	}
}
