// ABOUTME: WebSocket room endpoint: join handshake, snapshot push, mutation and
// ABOUTME: presence frames in, broadcast events out

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/2389/huddle-sync/internal/auth"
	"github.com/2389/huddle-sync/internal/document"
	"github.com/2389/huddle-sync/internal/mention"
	"github.com/2389/huddle-sync/internal/room"
)

// snapshotFrame is the first frame a client receives after joining: the full
// document, the current presence table, and the sequence number to resume
// from. Broadcast events at or below Seq are already reflected in Document.
type snapshotFrame struct {
	Type     string             `json:"type"`
	Seq      int64              `json:"seq"`
	Document *document.Snapshot `json:"document"`
	Presence []room.Presence    `json:"presence"`
}

// clientFrame is what clients send: either a mutation or a presence update.
type clientFrame struct {
	Type string `json:"type"`

	// mutation
	Op         room.Op         `json:"op,omitempty"`
	Collection string          `json:"collection,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
	RecordID   string          `json:"recordId,omitempty"`
	Fields     json.RawMessage `json:"fields,omitempty"`
	Order      []string        `json:"order,omitempty"`

	// presence
	Presence *room.PresenceUpdate `json:"presence,omitempty"`
}

// errorFrame reports a rejected frame back to its sender. The connection
// stays open: boundary rejections are per-frame, not fatal.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// handleWS is the room join handshake. Authorization happens before any room
// state is touched: a denied join never creates a room.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("documentId")
	roomID := room.Name(documentID)

	token, err := auth.BearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	principalID, err := g.verifier.Verify(token, roomID)
	if err != nil {
		if errors.Is(err, auth.ErrRoomAccessDenied) {
			writeError(w, http.StatusForbidden, "token does not grant access to this room")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}

	identity := room.Identity{
		DisplayName: r.URL.Query().Get("displayName"),
		ColorHint:   r.URL.Query().Get("colorHint"),
	}
	if identity.DisplayName == "" {
		identity.DisplayName = principalID
	}
	connectionID := uuid.NewString()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before joining so no event between snapshot and stream start
	// is ever missed; the snapshot's seq lets the client discard overlap.
	events, subID := g.registry.Subscribe(ctx, roomID)
	rm, err := g.registry.Join(ctx, documentID, connectionID, identity, subID)
	if err != nil {
		g.registry.Unsubscribe(roomID, subID)
		g.logger.Error("join failed", "document_id", documentID, "error", err)
		_ = c.Close(websocket.StatusInternalError, "loading document failed")
		return
	}
	defer g.registry.Leave(roomID, connectionID)

	logger := g.logger.With("room_id", roomID, "connection_id", connectionID)
	logger.Info("connection joined", "principal", principalID)

	snap, presence, seq := rm.Snapshot()
	if err := wsjson.Write(ctx, c, snapshotFrame{
		Type:     "snapshot",
		Seq:      seq,
		Document: snap,
		Presence: presence,
	}); err != nil {
		_ = c.Close(websocket.StatusInternalError, "snapshot write failed")
		return
	}

	// Writer: broadcast events out. Registry cleanup closes the channel via
	// the subscription context when this handler returns.
	go func() {
		for ev := range events {
			if err := wsjson.Write(ctx, c, ev); err != nil {
				cancel()
				return
			}
		}
	}()

	g.readLoop(ctx, c, rm, connectionID, subID, logger)

	logger.Info("connection left")
	_ = c.Close(websocket.StatusNormalClosure, "")
}

// readLoop decodes client frames until the connection drops. Connection loss
// is an ordinary leave, not an error.
func (g *Gateway) readLoop(ctx context.Context, c *websocket.Conn, rm *room.Room, connectionID, subID string, logger *slog.Logger) {
	for {
		var frame clientFrame
		if err := wsjson.Read(ctx, c, &frame); err != nil {
			return
		}

		switch frame.Type {
		case "mutation":
			if err := g.applyClientMutation(ctx, rm, frame, subID); err != nil {
				logger.Debug("mutation rejected", "error", err)
				_ = wsjson.Write(ctx, c, errorFrame{Type: "error", Message: err.Error()})
			}
		case "presence":
			if frame.Presence != nil {
				rm.SetPresence(connectionID, *frame.Presence, subID)
			}
		default:
			_ = wsjson.Write(ctx, c, errorFrame{Type: "error", Message: fmt.Sprintf("unknown frame type %q", frame.Type)})
		}
	}
}

// applyClientMutation decodes and applies one mutation frame. Inserts of
// owned records with no owner resolve @Name mentions against the roster.
func (g *Gateway) applyClientMutation(ctx context.Context, rm *room.Room, frame clientFrame, subID string) error {
	m := room.Mutation{
		Op:         frame.Op,
		Collection: frame.Collection,
		RecordID:   frame.RecordID,
		Fields:     frame.Fields,
		Order:      frame.Order,
		Origin:     subID,
	}

	if frame.Op == room.OpInsert {
		rec, err := document.DecodeRecord(frame.Collection, frame.Record)
		if err != nil {
			return err
		}
		assignOwnerFromMentions(rec, rm.Roster())
		m.Record = rec
	}

	_, err := rm.Apply(ctx, m)
	return err
}

// assignOwnerFromMentions fills an empty owner from the first @Name mention
// in the record text that resolves against the room roster.
func assignOwnerFromMentions(rec document.Record, roster []string) {
	switch v := rec.(type) {
	case *document.Todo:
		if v.Owner == "" {
			v.Owner = mention.First(v.Text, roster)
		}
	case *document.Issue:
		if v.Owner == "" {
			v.Owner = mention.First(v.Text, roster)
		}
	}
}
