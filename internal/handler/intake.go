package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"carvalue-api/internal/intake"
	"carvalue-api/internal/model"
	"carvalue-api/internal/quota"
	"carvalue-api/pkg/apierror"
	"carvalue-api/pkg/response"
)

// maxBodyBytes caps request bodies; messages and submissions are tiny.
const maxBodyBytes = 64 << 10

// Intake is the conversation surface the handlers drive.
type Intake interface {
	Handle(ctx context.Context, identity, text string) intake.Reply
	Submit(ctx context.Context, identity string, s intake.Submission) intake.Reply
	Remaining(ctx context.Context, identity string) (model.Plan, int, error)
}

// IntakeHandler handles message, valuation and quota requests.
type IntakeHandler struct {
	intake Intake
}

// NewIntakeHandler creates a new intake handler.
func NewIntakeHandler(in Intake) *IntakeHandler {
	return &IntakeHandler{intake: in}
}

// MessageRequest is the body of POST /api/v1/messages.
type MessageRequest struct {
	Identity string `json:"identity"`
	Text     string `json:"text"`
}

// ValuationRequest is the body of POST /api/v1/valuations.
type ValuationRequest struct {
	Identity string `json:"identity"`
	intake.Submission
}

// QuotaResponse is returned by GET /api/v1/quota/{identity}.
type QuotaResponse struct {
	Identity  string     `json:"identity"`
	Plan      model.Plan `json:"plan"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
}

// InsufficientDataMeta is attached to a 422 insufficient-data response.
type InsufficientDataMeta struct {
	SampleSize int  `json:"sample_size"`
	Required   int  `json:"required"`
	Remaining  *int `json:"remaining,omitempty"`
}

// SendMessage handles POST /api/v1/messages. Every outcome of the
// conversation, including refusals, is a 200 with a typed reply.
func (h *IntakeHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	req.Identity = strings.TrimSpace(req.Identity)
	if req.Identity == "" {
		response.Error(w, apierror.ValidationError("invalid message",
			apierror.FieldError{Field: "identity", Message: "is required"}))
		return
	}

	response.OK(w, h.intake.Handle(r.Context(), req.Identity, req.Text))
}

// CreateValuation handles POST /api/v1/valuations.
func (h *IntakeHandler) CreateValuation(w http.ResponseWriter, r *http.Request) {
	var req ValuationRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	req.Identity = strings.TrimSpace(req.Identity)

	var details []apierror.FieldError
	if req.Identity == "" {
		details = append(details, apierror.FieldError{Field: "identity", Message: "is required"})
	}
	for _, fe := range req.Submission.Validate() {
		details = append(details, apierror.FieldError{Field: fe.Field, Message: fe.Message})
	}
	if len(details) > 0 {
		response.Error(w, apierror.ValidationError("invalid valuation request", details...))
		return
	}

	reply := h.intake.Submit(r.Context(), req.Identity, req.Submission)
	if err := replyError(reply); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, reply)
}

// GetQuota handles GET /api/v1/quota/{identity}
func (h *IntakeHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(chi.URLParam(r, "identity"))
	if identity == "" {
		response.Error(w, apierror.BadRequest("identity is required"))
		return
	}

	plan, remaining, err := h.intake.Remaining(r.Context(), identity)
	if err != nil {
		response.Error(w, apierror.ServiceUnavailable("quota store unavailable"))
		return
	}

	response.OK(w, QuotaResponse{
		Identity:  identity,
		Plan:      plan,
		Limit:     quota.Limit(plan),
		Remaining: remaining,
	})
}

// replyError maps a refused one-shot valuation to an HTTP error.
func replyError(reply intake.Reply) *apierror.Error {
	switch reply.Kind {
	case intake.KindValuation:
		return nil
	case intake.KindValidationError:
		return apierror.ValidationError(reply.Message)
	case intake.KindDuplicate:
		return apierror.Conflict(reply.Message)
	case intake.KindQuotaExceeded:
		return apierror.TooManyRequests(reply.Message)
	case intake.KindInsufficientData:
		return apierror.UnprocessableEntity("INSUFFICIENT_DATA", reply.Message).WithMeta(InsufficientDataMeta{
			SampleSize: reply.SampleSize,
			Required:   reply.Required,
			Remaining:  reply.Remaining,
		})
	case intake.KindUnavailable:
		return apierror.ServiceUnavailable(reply.Message)
	default:
		return apierror.InternalError("")
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apierror.BadRequest("failed to read request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apierror.BadRequest("invalid JSON")
	}
	return nil
}
