package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/auth"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

// ItemInput is a cart line as posted by clients. Pointers distinguish a
// missing field from a zero value.
type ItemInput struct {
	SKU       string           `json:"sku" validate:"required"`
	Quantity  *int             `json:"quantity" validate:"required,gte=1"`
	UnitPrice *decimal.Decimal `json:"unit_price" validate:"required,gte=0"`
}

// Input is the checkout request body.
type Input struct {
	Items    []ItemInput `json:"items" validate:"required,dive"`
	UserTier string      `json:"user_tier"`
}

// LineItems converts validated input into pricing lines.
func (in Input) LineItems() []pricing.LineItem {
	items := make([]pricing.LineItem, 0, len(in.Items))
	for _, it := range in.Items {
		line := pricing.LineItem{SKU: it.SKU}
		if it.Quantity != nil {
			line.Quantity = *it.Quantity
		}
		if it.UnitPrice != nil {
			line.UnitPrice = *it.UnitPrice
		}
		items = append(items, line)
	}
	return items
}

var validate = newValidator()

type Handler struct {
	Svc *Service
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var payload Input
	if err := decodeInput(r.Body, &payload); err != nil {
		common.WriteError(w, common.BadRequest("invalid payload", err).WithDetails(map[string]any{"error": err.Error()}))
		return
	}
	if err := validate.Struct(payload); err != nil {
		common.WriteError(w, validationError(err))
		return
	}
	out, err := h.Svc.Checkout(r.Context(), auth.Credential(r), payload.LineItems(), payload.UserTier)
	if err != nil {
		common.WriteError(w, pricingError(err))
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// decodeInput reads exactly one JSON object. Unknown fields and anything
// after the object are rejected.
func decodeInput(body io.Reader, dst *Input) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// pricingError maps rejected cart lines to 422; other errors pass through
// and render as 500.
func pricingError(err error) error {
	switch {
	case errors.Is(err, pricing.ErrNonPositiveQuantity),
		errors.Is(err, pricing.ErrNegativeUnitPrice),
		errors.Is(err, pricing.ErrNegativeSubtotal):
		return common.Unprocessable(err.Error(), err)
	}
	return err
}

func validationError(err error) *common.AppError {
	appErr := common.Unprocessable("validation failed", err)
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := make(map[string]string, len(errs))
		for _, fe := range errs {
			details[fieldPath(fe)] = validationMessage(fe)
		}
		appErr.Details = details
	}
	return appErr
}

// fieldPath drops the root struct name: "Input.items[0].quantity" becomes "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	}
	return "is invalid"
}
