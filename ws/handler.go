package ws

import (
	"context"
	"net/http"
	"time"

	"daohub_backend/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	Registry   *Registry
	Membership Membership
	Options    ClientOptions
	upgrader   websocket.Upgrader
}

func NewWebSocketHandler(registry *Registry, membership Membership, opts ClientOptions) *WebSocketHandler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 30 * time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	return &WebSocketHandler{
		Registry:   registry,
		Membership: membership,
		Options:    opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeWS upgrades an authenticated request. userID is set by the auth middleware.
func (h *WebSocketHandler) ServeWS(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	lookupCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	daoIDs, err := h.Membership.DAOIDsForUser(lookupCtx, userID)
	cancel()
	if err != nil {
		logger.CtxWithError(c.Request.Context(), "ws: membership lookup failed", err)
		daoIDs = nil
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.CtxWithError(c.Request.Context(), "ws upgrade error", err)
		return
	}

	connID := uuid.NewString()
	client := newClient(context.Background(), connID, userID, conn, h.Registry, h.Membership, h.Options)

	if err := h.Registry.OnConnect(connID, client); err != nil {
		_ = client.Close()
		return
	}
	if err := h.Registry.Authenticate(connID, userID, daoIDs); err != nil {
		h.Registry.OnDisconnect(connID)
		_ = client.Close()
		return
	}

	logger.Info("ws client connected", "connection_id", connID, "user_id", userID, "daos", len(daoIDs))
	client.reply("connected", gin.H{"connectionId": connID, "userId": userID, "daoIds": daoIDs})

	go client.writePump()
	go client.readPump()
}
