package websocket

import (
	"github.com/canvashq/canvas/internal/model"
)

// HubPublisher pushes public notices to every feed subscriber. It satisfies
// notice.Publisher.
type HubPublisher struct {
	hub *Hub
}

func NewHubPublisher(hub *Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(n model.PublicNotice) {
	p.hub.Broadcast(NewMessage("notice", "published", 0, map[string]any{
		"notice_id":    n.ID,
		"title":        n.Title,
		"content":      n.Content,
		"reason":       n.Reason,
		"actor_id":     n.ActorID,
		"effective_at": n.EffectiveAt,
	}))
}

// BroadcastLedgerEntry pushes a ledger append to the live transparency feed.
func BroadcastLedgerEntry(hub *Hub, entry *model.PointTransaction) {
	hub.Broadcast(NewMessage("ledger_entry", "created", entry.ID, map[string]any{
		"account_id": entry.AccountID,
		"type":       entry.Type,
		"amount":     entry.Amount,
	}))
}
