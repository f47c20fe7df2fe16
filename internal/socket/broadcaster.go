package socket

import (
	"encoding/json"

	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"go.uber.org/zap"
)

// Broadcaster provides high-level methods for broadcasting events
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// toPayload flattens v into the generic payload map through its JSON form.
func (b *Broadcaster) toPayload(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		b.hub.log.Error("encode payload", zap.Error(err))
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		b.hub.log.Error("decode payload", zap.Error(err))
		return nil
	}
	return out
}

// ============================================
// Organization Broadcasting
// ============================================

// BroadcastOrganization sends the new committed snapshot to everyone
// watching the organization except the operator who caused it.
func (b *Broadcaster) BroadcastOrganization(msgType MessageType, org *models.Organization, actorID string, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"organizationId": org.ID,
		"organization":   b.toPayload(org),
		"changedByUser":  actorID,
	}
	for k, v := range extra {
		payload[k] = v
	}
	b.hub.SendToRoom(OrganizationRoom(org.ID), msgType, payload, actorID)
}

// BroadcastEditSession tells other operators that an edit session opened
// or closed.
func (b *Broadcaster) BroadcastEditSession(orgID, actorID string, open bool) {
	b.hub.SendToRoom(OrganizationRoom(orgID), MessageEditSessionChanged, map[string]interface{}{
		"organizationId": orgID,
		"open":           open,
		"userId":         actorID,
	}, actorID)
}

// SendToUsers sends a message to multiple users
func (b *Broadcaster) SendToUsers(userIDs []string, msgType MessageType, payload map[string]interface{}) {
	for _, userID := range userIDs {
		b.hub.SendToUser(userID, msgType, payload)
	}
}
