package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/orbytt/voicedesk/internal/auth"
	"github.com/orbytt/voicedesk/internal/metrics"
	"github.com/orbytt/voicedesk/internal/websocket"
	"github.com/orbytt/voicedesk/usecase"
)

// maxUploadBytes bounds one uploaded recording
const maxUploadBytes = 25 * 1024 * 1024

const claimsKey = "claims"

// Handlers holds the services behind the HTTP API
type Handlers struct {
	hub         *websocket.Hub
	chat        *usecase.ChatService
	transcriber *usecase.Transcriber
	tokens      *auth.TokenManager
	logger      *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(
	e *echo.Echo,
	hub *websocket.Hub,
	chat *usecase.ChatService,
	transcriber *usecase.Transcriber,
	tokens *auth.TokenManager,
	logger *zap.Logger,
) {
	h := &Handlers{hub: hub, chat: chat, transcriber: transcriber, tokens: tokens, logger: logger}

	e.Use(metricsMiddleware)

	// Health check
	e.GET("/health", h.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")
	v1.POST("/auth/token", h.issueToken)

	protected := v1.Group("", h.requireToken)
	protected.GET("/messages", h.getMessages)
	protected.POST("/messages", h.sendMessage)
	protected.DELETE("/messages", h.resetMessages)
	protected.POST("/transcribe", h.transcribe)

	// WebSocket endpoint with JWT validation
	e.GET("/ws", h.websocketWithAuth)
}

func (h *Handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "voicedesk",
		"clients": h.hub.ClientCount(),
	})
}

func (h *Handlers) issueToken(c echo.Context) error {
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if err := h.tokens.CheckAccessKey(req.AccessKey); err != nil {
		h.logger.Warn("Dashboard authentication failed", zap.String("client_name", req.ClientName))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid access key",
		})
	}

	clientID := uuid.NewString()
	token, expiresAt, err := h.tokens.GenerateDashboardToken(clientID)
	if err != nil {
		h.logger.Error("Failed to generate dashboard token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	h.logger.Info("Dashboard authenticated",
		zap.String("client_id", clientID),
		zap.String("client_name", req.ClientName))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  clientID,
	})
}

func (h *Handlers) getMessages(c echo.Context) error {
	messages, err := h.chat.Messages(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to load messages", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load messages",
		})
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: messages})
}

func (h *Handlers) sendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	clientID := clientIDFrom(c)
	message, err := h.chat.SendMessage(c.Request().Context(), req.Text)
	var connErr *usecase.ConnectionError
	switch {
	case err == nil:
		h.logger.Info("Message sent", zap.String("client_id", clientID))
		return c.JSON(http.StatusOK, SendMessageResponse{Message: message})
	case errors.As(err, &connErr):
		h.logger.Warn("Message answered with fallback",
			zap.String("client_id", clientID),
			zap.String("warning", connErr.Description))
		return c.JSON(http.StatusOK, SendMessageResponse{Message: message, Warning: connErr.Description})
	case errors.Is(err, usecase.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Message text is required",
		})
	default:
		h.logger.Error("Failed to send message", zap.String("client_id", clientID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to send message",
		})
	}
}

func (h *Handlers) resetMessages(c echo.Context) error {
	clientID := clientIDFrom(c)
	if err := h.chat.Reset(c.Request().Context()); err != nil {
		h.logger.Error("Failed to reset conversation", zap.String("client_id", clientID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to reset conversation",
		})
	}
	h.logger.Info("Conversation reset by dashboard", zap.String("client_id", clientID))
	return c.NoContent(http.StatusNoContent)
}

// transcribe accepts a recording as the multipart field "audio"
func (h *Handlers) transcribe(c echo.Context) error {
	file, err := c.FormFile("audio")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "An audio file is required",
		})
	}
	if file.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:   "file_too_large",
			Message: "Audio file is too large",
		})
	}

	src, err := file.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded audio", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Could not read audio file",
		})
	}
	defer src.Close()

	audio, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		h.logger.Error("Failed to read uploaded audio", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Could not read audio file",
		})
	}

	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "audio/webm"
	}

	result := h.transcriber.Transcribe(c.Request().Context(), audio, mimeType)
	return c.JSON(http.StatusOK, TranscriptionResponse{
		Text:      result.Text,
		Succeeded: result.Succeeded(),
		Failure:   result.Failure,
	})
}

// requireToken rejects requests without a valid dashboard bearer token
func (h *Handlers) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "missing_token",
				Message: "JWT token is required in Authorization header",
			})
		}

		claims, err := h.tokens.ValidateToken(token)
		if err != nil {
			h.logger.Warn("Request rejected: invalid token", zap.Error(err))
			return c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "invalid_token",
				Message: "Invalid or expired JWT token",
			})
		}

		c.Set(claimsKey, claims)
		return next(c)
	}
}

// websocketWithAuth handles WebSocket connections with JWT authentication.
// Browsers cannot set headers on WebSocket requests, so the token may also
// come in the "token" query parameter.
func (h *Handlers) websocketWithAuth(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		h.logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	// one token may be used by several tabs; each connection is its own client
	connectionID := claims.ClientID + "/" + uuid.NewString()[:8]

	h.logger.Info("WebSocket connection authenticated",
		zap.String("client_id", claims.ClientID),
		zap.String("connection_id", connectionID))

	return websocket.HandleWebSocketWithAuth(h.hub, c, connectionID, h.logger)
}

// clientIDFrom returns the dashboard client set by requireToken
func clientIDFrom(c echo.Context) string {
	claims, ok := c.Get(claimsKey).(*auth.JWTClaims)
	if !ok {
		return ""
	}
	return claims.ClientID
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// metricsMiddleware records request counts and latencies per route
func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request().Method
		status := strconv.Itoa(c.Response().Status)

		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		return nil
	}
}
