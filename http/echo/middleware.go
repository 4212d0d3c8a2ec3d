// Package echo adapts the payment gateway to the Echo framework. All flow
// logic lives in the parent http package; this is a thin translation layer.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	x402 "github.com/x402-foundation/x402-facilitator"
	x402http "github.com/x402-foundation/x402-facilitator/http"
)

// PaymentContextKey is the echo context key holding the verification result.
const PaymentContextKey = "x402_payment"

// Middleware returns an echo middleware gating requests through the gateway.
func Middleware(gateway *x402http.Gateway) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			request := c.Request()

			outcome, err := gateway.Process(request.Context(), request.URL.Path, request.Header.Get(x402http.HeaderPayment))
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
					"x402Version": x402.X402Version,
					"error":       x402.ReasonOf(err),
				})
			}

			if !outcome.Proceed {
				return c.JSON(http.StatusPaymentRequired, outcome.Challenge)
			}

			if outcome.ReceiptHeader != "" {
				c.Response().Header().Set(x402http.HeaderPaymentResponse, outcome.ReceiptHeader)
			}
			if outcome.Verify != nil {
				c.Set(PaymentContextKey, outcome.Verify)
			}
			return next(c)
		}
	}
}

// GetPaymentFromContext extracts the verification result stored by the
// middleware, or nil when the request was not paid.
func GetPaymentFromContext(c echo.Context) *x402.VerifyResponse {
	resp, ok := c.Get(PaymentContextKey).(*x402.VerifyResponse)
	if !ok {
		return nil
	}
	return resp
}
