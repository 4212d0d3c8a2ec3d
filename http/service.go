package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// Service exposes a facilitator over HTTP for gateways that run verification
// and settlement out of process.
type Service struct {
	facilitator *x402.Facilitator
	logger      *slog.Logger
}

// NewService creates a facilitator HTTP service.
func NewService(facilitator *x402.Facilitator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{facilitator: facilitator, logger: logger}
}

// VerifyRequest is the body of POST /verify and POST /settle.
type VerifyRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// RegisterRoutes mounts the facilitator endpoints on a gin router.
func (s *Service) RegisterRoutes(router gin.IRouter) {
	router.POST("/verify", s.handleVerify)
	router.POST("/settle", s.handleSettle)
	router.GET("/supported", s.handleSupported)
	router.GET("/health", s.handleHealth)
}

func (s *Service) handleVerify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": x402.ReasonMalformedPayload})
		return
	}

	result, err := s.facilitator.Verify(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		s.logger.Error("verify failed", "paymentId", req.PaymentPayload.PaymentID, "error", err)
	}
	if result == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": x402.ReasonOf(err)})
		return
	}

	s.logger.Info("verify",
		"paymentId", req.PaymentPayload.PaymentID, "isValid", result.IsValid, "reason", result.InvalidReason)
	c.JSON(http.StatusOK, result)
}

func (s *Service) handleSettle(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": x402.ReasonMalformedPayload})
		return
	}

	receipt, err := s.facilitator.Settle(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		s.logger.Error("settle failed", "paymentId", req.PaymentPayload.PaymentID, "error", err)
	}
	if receipt == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": x402.ReasonOf(err)})
		return
	}

	s.logger.Info("settle",
		"paymentId", req.PaymentPayload.PaymentID, "success", receipt.Success, "txRef", receipt.TransactionReference)
	c.JSON(http.StatusOK, receipt)
}

func (s *Service) handleSupported(c *gin.Context) {
	c.JSON(http.StatusOK, s.facilitator.GetSupported())
}

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
