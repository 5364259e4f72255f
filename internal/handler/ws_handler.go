package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/config"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/hub"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/service"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub     *hub.Hub
	service service.RoomService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.RoomService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

// HandleWebSocket upgrades /ws/:room_id/:username and runs the join
// sequence before the pumps start consuming.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	roomID := c.Param("room_id")
	username := c.Param("username")
	if roomID == "" || username == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.NewString(), roomID, username, h.hub, conn, h.wsCfg)
	h.hub.Register(client)

	ctx := context.Background()
	go client.WritePump()

	if err := h.service.HandleConnect(ctx, client); err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("connect failed")
		conn.Close()
		return
	}
	log.L().Info().
		Str(log.FieldRoomID, roomID).
		Str(log.FieldUsername, username).
		Int("clients", h.hub.RoomClientCount(roomID)).
		Msg("websocket session started")

	go func() {
		client.ReadPump(h.handleEnvelope)
		if err := h.service.HandleDisconnect(context.Background(), client); err != nil {
			log.L().Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("disconnect cleanup failed")
		}
	}()
}

func (h *WSHandler) handleEnvelope(client *hub.Client, message []byte) {
	var head domain.Head
	if err := json.Unmarshal(message, &head); err != nil {
		log.L().Warn().Err(err).Str("client_id", client.ID).Msg("invalid envelope")
		return
	}

	ctx := context.Background()

	switch head.Type {
	case domain.EnvMessage:
		var msg domain.OutboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.L().Warn().Err(err).Str("client_id", client.ID).Msg("invalid message envelope")
			return
		}
		if err := h.service.HandleMessage(ctx, client, &msg); err != nil {
			log.L().Error().Err(err).Str("client_id", client.ID).Msg("message handling failed")
		}

	case domain.EnvReaction:
		var env domain.ReactionEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.L().Warn().Err(err).Str("client_id", client.ID).Msg("invalid reaction envelope")
			return
		}
		if err := h.service.HandleReaction(ctx, client, &env); err != nil {
			log.L().Error().Err(err).Str("client_id", client.ID).Msg("reaction handling failed")
		}

	case domain.EnvDeleteMessage:
		var env domain.MessageRefEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			return
		}
		if err := h.service.HandleDelete(ctx, client, env.MessageID); err != nil {
			log.L().Error().Err(err).Str("client_id", client.ID).Msg("delete handling failed")
		}

	case domain.EnvResolveProposal:
		var env domain.MessageRefEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			return
		}
		if err := h.service.HandleResolve(ctx, client, env.MessageID); err != nil {
			log.L().Error().Err(err).Str("client_id", client.ID).Msg("resolve handling failed")
		}

	case domain.EnvNoteUpdate:
		var env domain.NoteEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			return
		}
		if err := h.service.HandleNoteUpdate(ctx, client, env.Content); err != nil {
			log.L().Error().Err(err).Str("client_id", client.ID).Msg("note handling failed")
		}

	case domain.EnvFormUpdate:
		var env domain.FormEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			return
		}
		if err := h.service.HandleFormUpdate(ctx, client, env.Proposals); err != nil {
			log.L().Error().Err(err).Str("client_id", client.ID).Msg("form handling failed")
		}

	case domain.EnvFinish:
		if err := h.service.HandleFinish(ctx, client); err != nil {
			log.L().Error().Err(err).Str("client_id", client.ID).Msg("finish handling failed")
		}

	default:
		log.L().Debug().Str("client_id", client.ID).Str(log.FieldEnvelope, head.Type).Msg("unknown envelope type")
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/:room_id/:username", h.HandleWebSocket)
}
