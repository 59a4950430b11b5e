package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/certvault/custody-backend/attestation"
	"github.com/certvault/custody-backend/interfaces"
	"github.com/certvault/custody-backend/pipeline"
	"github.com/go-chi/chi/v5"
)

// Trusted identity headers set by the fronting auth proxy.
const (
	HeaderAuthID    = "X-Auth-Id"
	HeaderAuthEmail = "X-Auth-Email"
	HeaderAuthName  = "X-Auth-Name"
	HeaderAuthRole  = "X-Auth-Role"
)

type contextKey string

const identityContextKey contextKey = "identity"

// maxIssueUploadBytes bounds multipart issue payloads.
const maxIssueUploadBytes = 32 << 20

// Handler holds the request handlers for the custody API.
type Handler struct {
	pipeline *pipeline.Pipeline
	workflow *attestation.Workflow
	registry interfaces.Registry
	log      *slog.Logger
}

// NewHandler creates a handler over the pipeline and workflow.
func NewHandler(p *pipeline.Pipeline, w *attestation.Workflow, registry interfaces.Registry, log *slog.Logger) *Handler {
	return &Handler{
		pipeline: p,
		workflow: w,
		registry: registry,
		log:      log,
	}
}

// IdentityMiddleware builds the caller identity from the trusted headers and
// provisions its registry row on first sight. Requests without a usable
// identity are rejected with 401.
func (h *Handler) IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderAuthID)
		email := r.Header.Get(HeaderAuthEmail)
		if id == "" || email == "" {
			h.writeError(w, r, interfaces.ErrUnauthenticated)
			return
		}

		role, err := interfaces.ParseRole(r.Header.Get(HeaderAuthRole))
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: %v", interfaces.ErrUnauthenticated, err))
			return
		}

		identity, err := h.registry.Identities().Upsert(r.Context(), &interfaces.Identity{
			ID:    id,
			Email: email,
			Name:  r.Header.Get(HeaderAuthName),
			Role:  role,
		})
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: provisioning identity: %v", interfaces.ErrStorageFailure, err))
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(ctx context.Context) *interfaces.Identity {
	identity, _ := ctx.Value(identityContextKey).(*interfaces.Identity)
	return identity
}

type issueRequest struct {
	OwnerEmail  string `json:"ownerEmail"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"` // base64
}

type documentResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ContentID   string    `json:"contentId"`
	AttestedBy  string    `json:"attestedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toDocumentResponse(doc *interfaces.Document) documentResponse {
	return documentResponse{
		ID:          doc.ID,
		OwnerID:     doc.OwnerID,
		Title:       doc.Title,
		Description: doc.Description,
		ContentID:   doc.ContentID.String(),
		AttestedBy:  doc.AttestedBy,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

// HandleIssue issues a document to a student. The payload is either a JSON
// body with base64 content or a multipart form with a "file" part.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := h.parseIssueRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	doc, err := h.pipeline.Issue(r.Context(), identityFrom(r.Context()), issue)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (h *Handler) parseIssueRequest(r *http.Request) (pipeline.IssueRequest, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxIssueUploadBytes); err != nil {
			return pipeline.IssueRequest{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidRequest, err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return pipeline.IssueRequest{}, fmt.Errorf("%w: missing file part", interfaces.ErrInvalidRequest)
		}
		defer file.Close()
		plaintext, err := io.ReadAll(io.LimitReader(file, maxIssueUploadBytes))
		if err != nil {
			return pipeline.IssueRequest{}, fmt.Errorf("%w: reading file part: %v", interfaces.ErrInvalidRequest, err)
		}
		return pipeline.IssueRequest{
			OwnerEmail:  r.FormValue("ownerEmail"),
			Title:       r.FormValue("title"),
			Description: r.FormValue("description"),
			Plaintext:   plaintext,
		}, nil
	}

	var req issueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return pipeline.IssueRequest{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidRequest, err)
	}
	plaintext, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		return pipeline.IssueRequest{}, fmt.Errorf("%w: content must be base64", interfaces.ErrInvalidRequest)
	}
	return pipeline.IssueRequest{
		OwnerEmail:  req.OwnerEmail,
		Title:       req.Title,
		Description: req.Description,
		Plaintext:   plaintext,
	}, nil
}

// HandleList returns the caller's document metadata.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.pipeline.List(r.Context(), identityFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDocumentResponse(doc))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

type viewResponse struct {
	Document documentResponse `json:"document"`
	Content  string           `json:"content"` // base64 plaintext
}

// HandleView decrypts one document.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	result, err := h.pipeline.View(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, viewResponse{
		Document: toDocumentResponse(result.Document),
		Content:  base64.StdEncoding.EncodeToString(result.Plaintext),
	})
}

// HandleViewAll decrypts every document the caller owns, skipping items
// that fail.
func (h *Handler) HandleViewAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.pipeline.ViewAll(r.Context(), identityFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]viewResponse, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, viewResponse{
			Document: toDocumentResponse(item.Document),
			Content:  base64.StdEncoding.EncodeToString(item.Plaintext),
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"attempted": result.Attempted,
	})
}

// HandleDelete removes a document and its verification requests.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.pipeline.Delete(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

type submitRequestBody struct {
	DocumentID       string `json:"documentId"`
	InstitutionEmail string `json:"institutionEmail"`
}

type requestResponse struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"documentId"`
	StudentID     string    `json:"studentId"`
	InstitutionID string    `json:"institutionId"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toRequestResponse(req *interfaces.VerificationRequest) requestResponse {
	return requestResponse{
		ID:            req.ID,
		DocumentID:    req.DocumentID,
		StudentID:     req.StudentID,
		InstitutionID: req.InstitutionID,
		Status:        string(req.Status),
		CreatedAt:     req.CreatedAt,
	}
}

// HandleSubmitRequest submits a verification request.
func (h *Handler) HandleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body submitRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", interfaces.ErrInvalidRequest, err))
		return
	}

	req, err := h.workflow.Submit(r.Context(), identityFrom(r.Context()), attestation.SubmitRequest{
		DocumentID:       body.DocumentID,
		InstitutionEmail: body.InstitutionEmail,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toRequestResponse(req))
}

// HandleListRequests returns the institution's review queue, or the
// student's outstanding submissions.
func (h *Handler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r.Context())

	var reqs []*interfaces.VerificationRequest
	var err error
	if actor != nil && actor.Role == interfaces.RoleInstitution {
		reqs, err = h.workflow.ListForInstitution(r.Context(), actor)
	} else {
		reqs, err = h.workflow.ListForStudent(r.Context(), actor)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]requestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toRequestResponse(req))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

type resolveBody struct {
	Remarks string `json:"remarks"`
}

// HandleApprove approves a verification request.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.workflow.Approve)
}

// HandleReject rejects a verification request.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.workflow.Reject)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, *interfaces.Identity, string, string) (*attestation.Resolution, error)) {

	var body resolveBody
	if r.Body != nil {
		// Remarks are optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	resolution, err := fn(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"), body.Remarks)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"outcome": resolution.Outcome,
		"remarks": resolution.Remarks,
		"request": toRequestResponse(resolution.Request),
	})
}

// HandleDashboard returns role-appropriate counts.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	actor := identityFrom(r.Context())
	if actor == nil {
		h.writeError(w, r, interfaces.ErrUnauthenticated)
		return
	}

	if actor.Role == interfaces.RoleInstitution {
		summary, err := h.pipeline.SummarizeInstitution(r.Context(), actor)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, summary)
		return
	}

	summary, err := h.pipeline.SummarizeStudent(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", slog.String("path", r.URL.Path), "err", err)
	} else {
		h.log.Debug("Request rejected", slog.String("path", r.URL.Path), "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": publicMessage(err)})
}

// statusFromError maps the error taxonomy onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, interfaces.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrIntegrityFailure),
		errors.Is(err, interfaces.ErrUnsupportedAlgorithm):
		return http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, interfaces.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal detail on 5xx responses.
func publicMessage(err error) string {
	if statusFromError(err) >= http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
