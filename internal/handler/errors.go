package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/cart"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/domain/user"
	"github.com/xenking/kart-storefront/internal/payment/stripe"
	"github.com/xenking/kart-storefront/internal/token"
	"github.com/xenking/kart-storefront/internal/validate"
)

const maxBodyBytes = 1 << 20

// errBadBody is returned for request bodies that are not valid JSON.
var errBadBody = errors.New("invalid request body")

// apiError is the client-facing form of a failure.
type apiError struct {
	status     int
	message    string
	redirectTo string
	fields     []validate.FieldError
}

// classify maps a domain error to a status and a safe message. The zero
// status means the error is unexpected.
func classify(err error) apiError {
	var (
		invalid   *validate.Error
		pre       *order.PreconditionError
		mismatch  *order.PaymentMismatchError
		outOfStck *cart.OutOfStockError
		short     *cart.InsufficientStockError
	)
	switch {
	case errors.As(err, &invalid):
		return apiError{status: http.StatusUnprocessableEntity, message: invalid.Error(), fields: invalid.Fields}
	case errors.As(err, &pre):
		return apiError{status: http.StatusUnprocessableEntity, message: pre.Message, redirectTo: pre.RedirectTo}
	case errors.As(err, &mismatch):
		return apiError{status: http.StatusPaymentRequired, message: mismatch.Error()}
	case errors.As(err, &outOfStck):
		return apiError{status: http.StatusConflict, message: outOfStck.Error()}
	case errors.As(err, &short):
		return apiError{status: http.StatusConflict, message: short.Error()}
	}

	for _, m := range sentinels {
		if errors.Is(err, m.err) {
			return apiError{status: m.status, message: m.err.Error()}
		}
	}
	return apiError{}
}

var sentinels = []struct {
	err    error
	status int
}{
	{errBadBody, http.StatusBadRequest},
	{stripe.ErrInvalidSignature, http.StatusBadRequest},
	{token.ErrInvalid, http.StatusUnauthorized},
	{auth.ErrUnauthenticated, http.StatusUnauthorized},
	{auth.ErrForbidden, http.StatusForbidden},
	{cart.ErrNoSession, http.StatusNotFound},
	{cart.ErrNotFound, http.StatusNotFound},
	{cart.ErrItemNotFound, http.StatusNotFound},
	{product.ErrNotFound, http.StatusNotFound},
	{order.ErrNotFound, http.StatusNotFound},
	{user.ErrNotFound, http.StatusNotFound},
	{product.ErrSlugTaken, http.StatusConflict},
	{order.ErrAlreadyPaid, http.StatusConflict},
	{order.ErrNotPaid, http.StatusConflict},
	{order.ErrAlreadyDelivered, http.StatusConflict},
	{order.ErrPaymentNotStarted, http.StatusConflict},
	{order.ErrProviderUnavailable, http.StatusServiceUnavailable},
}

// handleError writes err as an error envelope. Unexpected errors are logged
// and hidden behind a generic 500.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.status == 0 {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", "")
		return
	}
	if e.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Warn("Request failed", zap.Error(err))
	}
	writeEnvelope(w, e)
}

func writeError(w http.ResponseWriter, status int, msg, redirectTo string) {
	writeEnvelope(w, apiError{status: status, message: msg, redirectTo: redirectTo})
}

// writeEnvelope writes {"success":false,"message":...} with the optional
// redirectTo and errors fields.
func writeEnvelope(w http.ResponseWriter, ae apiError) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(false) })
		e.Field("message", func(e *jx.Encoder) { e.Str(ae.message) })
		if ae.redirectTo != "" {
			e.Field("redirectTo", func(e *jx.Encoder) { e.Str(ae.redirectTo) })
		}
		if len(ae.fields) > 0 {
			e.Field("errors", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, f := range ae.fields {
						e.Obj(func(e *jx.Encoder) {
							e.Field("field", func(e *jx.Encoder) { e.Str(f.Field) })
							e.Field("rule", func(e *jx.Encoder) { e.Str(f.Rule) })
							e.Field("message", func(e *jx.Encoder) { e.Str(f.Message) })
						})
					}
				})
			})
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.status)
	_, _ = w.Write(e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errors.Wrap(errBadBody, err.Error())
}
