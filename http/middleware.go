package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// PaymentContextKey is the gin context key holding the verification result
// for handlers behind the middleware.
const PaymentContextKey = "x402_payment"

// Middleware returns a gin middleware gating requests through the gateway.
// Unprotected paths pass through untouched. Protected paths get a 402
// challenge until a payload verifies and settles; the response then carries
// the receipt in the X-Payment-Response header.
func Middleware(gateway *Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcome, err := gateway.Process(c.Request.Context(), c.Request.URL.Path, c.GetHeader(HeaderPayment))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"x402Version": x402.X402Version,
				"error":       x402.ReasonOf(err),
			})
			return
		}

		if !outcome.Proceed {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, outcome.Challenge)
			return
		}

		if outcome.ReceiptHeader != "" {
			c.Header(HeaderPaymentResponse, outcome.ReceiptHeader)
		}
		if outcome.Verify != nil {
			c.Set(PaymentContextKey, outcome.Verify)
		}
		c.Next()
	}
}

// GetPaymentFromContext extracts the verification result stored by the
// middleware, or nil when the request was not paid.
func GetPaymentFromContext(c *gin.Context) *x402.VerifyResponse {
	value, exists := c.Get(PaymentContextKey)
	if !exists {
		return nil
	}
	resp, ok := value.(*x402.VerifyResponse)
	if !ok {
		return nil
	}
	return resp
}
