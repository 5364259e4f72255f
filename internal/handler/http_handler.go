package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/collab"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/domain"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/service"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/internal/store"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/log"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/response"
	"github.com/rikupokkuru/Framework-Design-for-Online-Deliberation-Platforms/pkg/storage"
)

// maxUploadBytes bounds attachment size.
const maxUploadBytes = 20 << 20

// urlTTL is the lifetime of presigned download links.
const urlTTL = 24 * time.Hour

type HTTPHandler struct {
	service  service.RoomService
	store    *store.Store
	files    storage.Storage
	exporter collab.Exporter
}

func NewHTTPHandler(svc service.RoomService, st *store.Store, files storage.Storage, exporter collab.Exporter) *HTTPHandler {
	return &HTTPHandler{
		service:  svc,
		store:    st,
		files:    files,
		exporter: exporter,
	}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.POST("/upload_file", h.UploadFile)
	r.POST("/check_progress/:room_id", h.CheckProgress)
	r.POST("/facilitate/:room_id", h.Facilitate)
	r.POST("/download_proposals_word", h.DownloadProposals)
	r.POST("/subscribe", h.Subscribe)
	r.GET("/rooms", h.ListRooms)
	r.POST("/rooms", h.CreateRoom)
}

func (h *HTTPHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// UploadFile stores an attachment and returns the references the client
// attaches to its next message.
func (h *HTTPHandler) UploadFile(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file field is required")
		return
	}
	if file.Size > maxUploadBytes {
		response.BadRequest(c, "file too large")
		return
	}

	src, err := file.Open()
	if err != nil {
		response.Internal(c, "failed to open upload")
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		response.Internal(c, "failed to read upload")
		return
	}

	key := fmt.Sprintf("uploads/%s%s", uuid.NewString(), filepath.Ext(file.Filename))
	contentType := file.Header.Get("Content-Type")
	if err := h.files.Write(c.Request.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		log.L().Error().Err(err).Str("key", key).Msg("upload write failed")
		response.Internal(c, "failed to store upload")
		return
	}

	url, err := h.files.GetURL(c.Request.Context(), key, urlTTL)
	if err != nil {
		response.Internal(c, "failed to resolve upload url")
		return
	}

	response.Success(c, gin.H{
		"file_url":          url,
		"original_filename": file.Filename,
		"gemini_file_ref":   key,
	})
}

func (h *HTTPHandler) CheckProgress(c *gin.Context) {
	roomID := c.Param("room_id")
	stagnant, suggestion, err := h.service.CheckProgress(c.Request.Context(), roomID)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("progress check failed")
		response.Internal(c, "progress check failed")
		return
	}
	progress := "議論は順調に進んでいます。"
	if stagnant {
		progress = suggestion
	}
	response.Success(c, gin.H{"progress": progress})
}

func (h *HTTPHandler) Facilitate(c *gin.Context) {
	roomID := c.Param("room_id")
	message, err := h.service.Facilitate(c.Request.Context(), roomID)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldRoomID, roomID).Msg("facilitation failed")
		response.Internal(c, "facilitation failed")
		return
	}
	response.Success(c, gin.H{"message": message})
}

// DownloadProposals renders the posted proposal list as a document and
// streams it back raw.
func (h *HTTPHandler) DownloadProposals(c *gin.Context) {
	var req struct {
		Topic     string                  `json:"topic"`
		Proposals []domain.ProposalRecord `json:"proposals"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid export request")
		return
	}

	data, filename, err := h.exporter.Export(c.Request.Context(), req.Topic, req.Proposals)
	if err != nil {
		log.L().Error().Err(err).Msg("proposal export failed")
		response.Internal(c, "export failed")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// subscribeRequest is the browser push subscription shape, with the
// crypto keys nested under "keys".
type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
	Username string `json:"username"`
	RoomID   string `json:"room_id"`
}

func (h *HTTPHandler) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid subscription")
		return
	}
	if req.Endpoint == "" {
		response.BadRequest(c, "endpoint is required")
		return
	}
	sub := domain.PushSubscription{
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
		Username: req.Username,
		RoomID:   req.RoomID,
	}
	if err := h.store.SaveSubscription(sub); err != nil {
		log.L().Error().Err(err).Msg("subscription save failed")
		response.Internal(c, "failed to save subscription")
		return
	}
	response.Created(c, gin.H{"subscribed": true})
}

func (h *HTTPHandler) ListRooms(c *gin.Context) {
	rooms, err := h.store.ListRooms()
	if err != nil {
		response.Internal(c, "failed to list rooms")
		return
	}
	out := make([]gin.H, len(rooms))
	for i, r := range rooms {
		out[i] = gin.H{"room_id": r.RoomID, "topic": r.Topic, "status": r.Status}
	}
	response.Success(c, out)
}

func (h *HTTPHandler) CreateRoom(c *gin.Context) {
	var req struct {
		RoomID string `json:"room_id"`
		Topic  string `json:"topic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RoomID == "" {
		response.BadRequest(c, "room_id is required")
		return
	}
	room, err := h.store.CreateRoom(req.RoomID, req.Topic)
	if err != nil {
		response.Internal(c, "failed to create room")
		return
	}
	response.Created(c, gin.H{"room_id": room.RoomID, "topic": room.Topic, "status": room.Status})
}
