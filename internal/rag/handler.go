package rag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/pkg/vectorstore"
)

// maxBodyBytes caps request bodies; add_texts batches can be large.
const maxBodyBytes = 8 << 20

// Retriever is the subset of [*Service] the HTTP handler needs.
type Retriever interface {
	Retrieve(ctx context.Context, question, collection string) ([]vectorstore.ScoredDocument, error)
	Answer(ctx context.Context, question, collection string) (Answer, error)
	AddTexts(ctx context.Context, texts []string, metadatas []map[string]any, collection string) ([]string, error)
	Collection(name string) string
}

// Handler serves the RAG HTTP API.
type Handler struct {
	svc     Retriever
	metrics *observe.Metrics
}

// NewHandler returns a Handler for svc. metrics may be nil.
func NewHandler(svc Retriever, metrics *observe.Metrics) *Handler {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Handler{svc: svc, metrics: metrics}
}

// Register adds the RAG routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /{$}", h.health)
	mux.HandleFunc("POST /retrieve", h.retrieve)
	mux.HandleFunc("POST /rag_answer", h.answer)
	mux.HandleFunc("POST /add_texts", h.addTexts)
}

type queryRequest struct {
	Question       string `json:"question"`
	CollectionName string `json:"collection_name"`
}

type documentResponse struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

type answerResponse struct {
	Answer          string             `json:"answer"`
	SourceDocuments []documentResponse `json:"source_documents"`
}

type addTextsRequest struct {
	Texts          []string         `json:"texts"`
	Metadatas      []map[string]any `json:"metadatas"`
	CollectionName string           `json:"collection_name"`
}

type addTextsResponse struct {
	Message        string   `json:"message"`
	IDs            []string `json:"ids"`
	CollectionName string   `json:"collection_name"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func documents(docs []vectorstore.ScoredDocument) []documentResponse {
	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		meta := d.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		out[i] = documentResponse{PageContent: d.Content, Metadata: meta}
	}
	return out
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) retrieve(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !h.decode(w, r, "retrieve", &req) {
		return
	}
	docs, err := h.svc.Retrieve(r.Context(), req.Question, req.CollectionName)
	if err != nil {
		h.fail(w, r, "retrieve", err)
		return
	}
	h.metrics.RecordRAGRequest(r.Context(), "retrieve", observe.StatusOK)
	writeJSON(w, http.StatusOK, documents(docs))
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !h.decode(w, r, "rag_answer", &req) {
		return
	}
	ans, err := h.svc.Answer(r.Context(), req.Question, req.CollectionName)
	if err != nil {
		h.fail(w, r, "rag_answer", err)
		return
	}
	h.metrics.RecordRAGRequest(r.Context(), "rag_answer", observe.StatusOK)
	writeJSON(w, http.StatusOK, answerResponse{Answer: ans.Text, SourceDocuments: documents(ans.Sources)})
}

func (h *Handler) addTexts(w http.ResponseWriter, r *http.Request) {
	var req addTextsRequest
	if !h.decode(w, r, "add_texts", &req) {
		return
	}
	ids, err := h.svc.AddTexts(r.Context(), req.Texts, req.Metadatas, req.CollectionName)
	if err != nil {
		h.fail(w, r, "add_texts", err)
		return
	}
	h.metrics.RecordRAGRequest(r.Context(), "add_texts", observe.StatusOK)
	writeJSON(w, http.StatusCreated, addTextsResponse{
		Message:        "Texts added successfully",
		IDs:            ids,
		CollectionName: h.svc.Collection(req.CollectionName),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, endpoint string, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.metrics.RecordRAGRequest(r.Context(), endpoint, observe.StatusError)
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	h.metrics.RecordRAGRequest(r.Context(), endpoint, observe.StatusError)
	if isValidation(err) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}
	observe.Logger(r.Context()).Error("rag: request failed", "endpoint", endpoint, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
}

func isValidation(err error) bool {
	return errors.Is(err, ErrEmptyQuestion) ||
		errors.Is(err, ErrNoTexts) ||
		errors.Is(err, ErrMetadataMismatch) ||
		errors.Is(err, vectorstore.ErrLengthMismatch)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("rag: encode response", "err", err)
	}
}
