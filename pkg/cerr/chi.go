package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"

	"github.com/kazz187/prepboard/pkg/clog"
)

type responseReceiverKey struct{}

type responseReceiver struct {
	status   int
	response any
	err      error
}

func contextWithResponseReceiver(ctx context.Context, rr *responseReceiver) context.Context {
	return context.WithValue(ctx, responseReceiverKey{}, rr)
}

func responseReceiverFromContext(ctx context.Context) *responseReceiver {
	if rr, ok := ctx.Value(responseReceiverKey{}).(*responseReceiver); ok {
		return rr
	}
	return nil
}

func SetJSONResponse(ctx context.Context, response any) {
	SetJSONResponseWithStatus(ctx, http.StatusOK, response)
}

func SetJSONResponseWithStatus(ctx context.Context, status int, response any) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.status = status
		rr.response = response
	}
}

func SetJSONError(ctx context.Context, err error) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.err = err
	}
}

func SetNewJSONError(ctx context.Context, code Code, msg string, err error) {
	SetJSONError(ctx, NewError(code, msg, err))
}

// Respond runs fn and records its outcome for NewJSONEnvelopeChiMiddleware.
func Respond(r *http.Request, status int, fn func(ctx context.Context) (any, error)) {
	ctx := r.Context()
	resp, err := fn(ctx)
	if err != nil {
		SetJSONError(ctx, err)
		return
	}
	SetJSONResponseWithStatus(ctx, status, resp)
}

// DecodeJSON reads the request body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return NewError(InvalidArgument, "failed to read request body", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewError(InvalidArgument, "malformed JSON body", err)
	}
	return nil
}

// NewJSONEnvelopeChiMiddleware renders whatever the handler recorded through
// SetJSONResponse / SetJSONError as a success or error envelope.
func NewJSONEnvelopeChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rr := &responseReceiver{status: http.StatusOK}
			ctx := contextWithResponseReceiver(r.Context(), rr)
			next.ServeHTTP(rw, r.WithContext(ctx))
			extractToHTTPResponse(ctx, rw, rr)
		})
	}
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   httpError `json:"error"`
}

type httpError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []errorDetail `json:"details,omitempty"`
}

type errorDetail struct {
	RuleID  string `json:"rule_id,omitempty"`
	Message string `json:"message"`
}

func extractToHTTPResponse(ctx context.Context, rw http.ResponseWriter, response *responseReceiver) {
	if response.err == nil {
		writeJSON(ctx, rw, response.status, successEnvelope{Success: true, Data: response.response})
		return
	}
	WriteJSONError(ctx, rw, response.err)
}

// WriteJSONError writes err as an error envelope directly, for handlers that
// run outside the envelope middleware.
func WriteJSONError(ctx context.Context, rw http.ResponseWriter, err error) {
	cErr := normalize(ctx, err)
	body := httpError{Code: cErr.Code.String(), Message: cErr.Msg}
	for _, d := range cErr.Details {
		if v, ok := d.(*validate.Violation); ok {
			body.Details = append(body.Details, errorDetail{RuleID: v.GetRuleId(), Message: v.GetMessage()})
		}
	}
	writeJSON(ctx, rw, cErr.Code.HTTPCode(), errorEnvelope{Error: body})
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, status int, v any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		clog.AddError(ctx, fmt.Errorf("failed to encode response: %w", err))
		status = http.StatusInternalServerError
		buf = bytes.NewBufferString(`{"success":false,"error":{"code":"Internal","message":"server error"}}`)
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, errors.Join(clog.GetError(ctx), err))
	}
}
