package storeapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/accstore/accstore/internal/checkout"
	"github.com/accstore/accstore/internal/webserver"
)

func registerCheckoutRoutes() {
	webserver.StorePOST("/checkout/preview", previewCheckout)
	webserver.StorePOST("/checkout", purchase)
}

type checkoutPayload struct {
	ProductID  int64  `json:"product_id,string"`
	Quantity   int    `json:"quantity"`
	CouponCode string `json:"coupon_code"`
}

func previewCheckout(c echo.Context) error {
	var payload checkoutPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse checkout request", err.Error())
	}
	user := webserver.CurrentUser(c)

	quote, err := checkoutSvc.Preview(c.Request().Context(), user.ID, payload.ProductID, payload.Quantity, payload.CouponCode)
	if err != nil {
		return checkoutError(c, err)
	}
	return ok(c, quote)
}

func purchase(c echo.Context) error {
	var payload checkoutPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse checkout request", err.Error())
	}
	user := webserver.CurrentUser(c)
	idemKey := c.Request().Header.Get("Idempotency-Key")

	result, err := checkoutSvc.Purchase(c.Request().Context(), user.ID, payload.ProductID, payload.Quantity, payload.CouponCode, idemKey)
	if err != nil {
		return checkoutError(c, err)
	}
	return ok(c, result)
}

func checkoutError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, checkout.ErrProductUnavailable):
		return fail(c, http.StatusNotFound, "PRODUCT_UNAVAILABLE", "Product is not available", nil)
	case errors.Is(err, checkout.ErrQuantityInvalid):
		return fail(c, http.StatusBadRequest, "QUANTITY_INVALID", "Quantity is out of range", nil)
	case errors.Is(err, checkout.ErrOutOfStock):
		return fail(c, http.StatusConflict, "OUT_OF_STOCK", "Not enough stock to fulfil this order", nil)
	case errors.Is(err, checkout.ErrInsufficientFunds):
		return fail(c, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS", "Wallet balance is too low", nil)
	case errors.Is(err, checkout.ErrCouponInvalid):
		return fail(c, http.StatusBadRequest, "COUPON_INVALID", "Coupon code is invalid or already used", nil)
	case errors.Is(err, checkout.ErrIntentNotFound):
		return fail(c, http.StatusNotFound, "INTENT_NOT_FOUND", "Payment intent not found", nil)
	case errors.Is(err, checkout.ErrIntentExpired):
		return fail(c, http.StatusGone, "INTENT_EXPIRED", "Payment intent has expired", nil)
	case errors.Is(err, checkout.ErrKeyConflict):
		return fail(c, http.StatusConflict, "IDEMPOTENCY_KEY_CONFLICT", "Idempotency key was issued for a different request", nil)
	case errors.Is(err, checkout.ErrGateway):
		return fail(c, http.StatusBadGateway, "GATEWAY_ERROR", "Payment gateway error", nil)
	default:
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Checkout failed", err.Error())
	}
}
