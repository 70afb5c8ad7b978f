package http

import (
	"net/http"

	"devstream/internal/core/ports"
	"devstream/pkg/config"
	"devstream/pkg/errors"

	"github.com/gin-gonic/gin"
	webrtc "github.com/pion/webrtc/v3"
)

// StreamHandler serves the read-only REST view of the relay: active rooms,
// the ICE configuration clients should use, and the chat backlog.
type StreamHandler struct {
	rooms      ports.RoomService
	chat       ports.ChatService
	iceServers []webrtc.ICEServer
}

func NewStreamHandler(rooms ports.RoomService, chat ports.ChatService, iceServers []webrtc.ICEServer) *StreamHandler {
	if iceServers == nil {
		iceServers = []webrtc.ICEServer{}
	}
	return &StreamHandler{
		rooms:      rooms,
		chat:       chat,
		iceServers: iceServers,
	}
}

// ICEServersFromConfig converts the configured STUN/TURN servers.
func ICEServersFromConfig(cfg *config.Config) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		server := webrtc.ICEServer{
			URLs:     append([]string(nil), s.URLs...),
			Username: s.Username,
		}
		if s.Credential != "" {
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, server)
	}
	return servers
}

func (h *StreamHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/streams/active", h.ListActive)
	api.GET("/ice-servers", h.ICEServers)
	api.GET("/chat/history", h.ChatHistory)
}

func (h *StreamHandler) ListActive(c *gin.Context) {
	rooms, err := h.rooms.ListActive(c.Request.Context())
	if err != nil {
		c.Error(errors.Wrap(err, errors.ErrCodeInternal))
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *StreamHandler) ICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.iceServers})
}

func (h *StreamHandler) ChatHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.chat.History()})
}
