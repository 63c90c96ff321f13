package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mediabridge/sfu/internal/app"
	"github.com/mediabridge/sfu/internal/domain"
)

type handlers struct {
	orch *app.Orchestrator
}

// respondError maps the error taxonomy onto distinguishable HTTP outcomes:
// not-found, unavailable, client error and internal failure must never blur
// into each other.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrIncompatibleCapabilities):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrEngineTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *handlers) health(c *gin.Context) {
	hs := h.orch.Health()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"workers":   hs.Workers,
		"rooms":     hs.Rooms,
	})
}

func (h *handlers) createRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	view, _, err := h.orch.CreateRoom(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"roomId":          view.RoomID,
		"routerId":        view.RouterID,
		"rtpCapabilities": view.Capabilities,
	})
}

type createTransportRequest struct {
	Direction domain.Direction `json:"direction"`
	UserID    string           `json:"userId"`
}

func (h *handlers) createTransport(c *gin.Context) {
	var req createTransportRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Direction.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be send or recv"})
		return
	}
	roomID := domain.RoomID(c.Param("roomId"))
	view, err := h.orch.CreateTransport(c.Request.Context(), roomID, req.Direction, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"transportId": view.TransportID,
		"parameters":  view.Parameters,
	})
}

type connectTransportRequest struct {
	Parameters domain.TransportParameters `json:"parameters"`
}

func (h *handlers) connectTransport(c *gin.Context) {
	var req connectTransportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connect parameters"})
		return
	}
	id := domain.TransportID(c.Param("transportId"))
	local, err := h.orch.ConnectTransport(c.Request.Context(), id, req.Parameters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "parameters": local})
}

type produceRequest struct {
	Kind          domain.Kind          `json:"kind"`
	RTPParameters domain.RTPParameters `json:"rtpParameters"`
	UserID        string               `json:"userId"`
	ChannelID     string               `json:"channelId"`
}

func (h *handlers) produce(c *gin.Context) {
	var req produceRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be audio or video"})
		return
	}
	id := domain.TransportID(c.Param("transportId"))
	view, err := h.orch.Produce(c.Request.Context(), id, req.Kind, req.RTPParameters, domain.AppData{UserID: req.UserID, ChannelID: req.ChannelID})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"producerId": view.ProducerID,
		"kind":       view.Kind,
	})
}

type consumeRequest struct {
	ProducerID      domain.ProducerID      `json:"producerId"`
	RTPCapabilities domain.RTPCapabilities `json:"rtpCapabilities"`
	UserID          string                 `json:"userId"`
	ChannelID       string                 `json:"channelId"`
}

func (h *handlers) consume(c *gin.Context) {
	var req consumeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProducerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing producerId"})
		return
	}
	id := domain.TransportID(c.Param("transportId"))
	view, err := h.orch.Consume(c.Request.Context(), id, req.ProducerID, req.RTPCapabilities, domain.AppData{UserID: req.UserID, ChannelID: req.ChannelID})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"consumerId":    view.ConsumerID,
		"producerId":    view.ProducerID,
		"kind":          view.Kind,
		"rtpParameters": view.Parameters,
	})
}

func (h *handlers) roomProducers(c *gin.Context) {
	producers, err := h.orch.RoomProducers(domain.RoomID(c.Param("roomId")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "producers": producers})
}

func (h *handlers) roomStatus(c *gin.Context) {
	status, err := h.orch.RoomStatus(domain.RoomID(c.Param("roomId")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"roomId":         status.RoomID,
		"routerId":       status.RouterID,
		"transportCount": status.TransportCount,
		"producerCount":  status.ProducerCount,
		"consumerCount":  status.ConsumerCount,
		"producers":      status.Producers,
	})
}

func (h *handlers) closeRoom(c *gin.Context) {
	if err := h.orch.CloseRoom(domain.RoomID(c.Param("roomId"))); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) closeTransport(c *gin.Context) {
	if err := h.orch.CloseTransport(domain.TransportID(c.Param("transportId"))); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) closeProducer(c *gin.Context) {
	if err := h.orch.CloseProducer(domain.ProducerID(c.Param("producerId"))); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) closeConsumer(c *gin.Context) {
	if err := h.orch.CloseConsumer(domain.ConsumerID(c.Param("consumerId"))); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
