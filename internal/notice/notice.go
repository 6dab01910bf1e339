// Package notice carries public announcement events from the economy and
// governance engines to pluggable sinks. Emission is fire-and-forget: the
// core never holds an economic transaction open for a publisher and never
// fails an operation because a sink failed.
package notice

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/canvashq/canvas/internal/model"
)

// Publisher receives public notices. Implementations must not block.
type Publisher interface {
	Publish(n model.PublicNotice)
}

// New builds a notice with a fresh ID and timestamp.
func New(title, content, reason string, actorID int64, effectiveAt time.Time) model.PublicNotice {
	return model.PublicNotice{
		ID:          uuid.NewString(),
		Title:       title,
		Content:     content,
		Reason:      reason,
		ActorID:     actorID,
		EffectiveAt: effectiveAt,
		CreatedAt:   time.Now().UTC(),
	}
}

// LogPublisher writes notices to the structured log. It is the default sink.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(n model.PublicNotice) {
	p.logger.Info("public notice",
		"notice_id", n.ID,
		"title", n.Title,
		"reason", n.Reason,
		"actor_id", n.ActorID,
		"effective_at", n.EffectiveAt,
	)
}

// MultiPublisher fans a notice out to several sinks.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(n model.PublicNotice) {
	for _, p := range m {
		p.Publish(n)
	}
}

// NopPublisher discards notices, for tests.
type NopPublisher struct{}

func (NopPublisher) Publish(model.PublicNotice) {}
