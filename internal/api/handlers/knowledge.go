package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/Harshitk-cp/beliefgraph/internal/api/middleware"
	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/Harshitk-cp/beliefgraph/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type KnowledgeHandler struct {
	gateway *service.Gateway
	logger  *zap.Logger
}

func NewKnowledgeHandler(g *service.Gateway, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{gateway: g, logger: logger}
}

func (h *KnowledgeHandler) session(r *http.Request) *service.Session {
	return h.gateway.Session(middleware.SessionIDFromContext(r.Context()))
}

func (h *KnowledgeHandler) Learn(w http.ResponseWriter, r *http.Request) {
	var req service.Candidate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.session(r).Learn(r.Context(), req)
	if err != nil {
		h.logFailure(r, "learn", err)
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Outcome == domain.VerdictAlreadyKnown {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

type factsResponse struct {
	Subject string          `json:"subject"`
	Facts   []domain.Triple `json:"facts"`
	Count   int             `json:"count"`
}

func (h *KnowledgeHandler) AskFact(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	facts, err := h.session(r).AskFact(r.Context(), subject, r.URL.Query().Get("relation"))
	if err != nil {
		h.logFailure(r, "ask_fact", err)
		writeServiceError(w, err)
		return
	}
	if facts == nil {
		facts = []domain.Triple{}
	}
	writeJSON(w, http.StatusOK, factsResponse{
		Subject: domain.NormalizeTerm(subject),
		Facts:   facts,
		Count:   len(facts),
	})
}

func (h *KnowledgeHandler) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, b, relation := q.Get("a"), q.Get("b"), q.Get("relation")
	if a == "" || b == "" || relation == "" {
		writeError(w, http.StatusBadRequest, "a, b and relation are required")
		return
	}

	cmp, err := h.session(r).AskComparative(r.Context(), a, b, relation)
	if err != nil {
		h.logFailure(r, "compare", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (h *KnowledgeHandler) Derive(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	relation := r.URL.Query().Get("relation")
	if relation == "" {
		writeError(w, http.StatusBadRequest, "relation is required")
		return
	}

	fact, err := h.session(r).Derive(r.Context(), subject, relation)
	if err != nil {
		h.logFailure(r, "derive", err)
		writeServiceError(w, err)
		return
	}
	if fact == nil {
		writeError(w, http.StatusNotFound, "no value known")
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

type membersResponse struct {
	Class   string          `json:"class"`
	Members []domain.Triple `json:"members"`
	Count   int             `json:"count"`
}

func (h *KnowledgeHandler) Members(w http.ResponseWriter, r *http.Request) {
	class := chi.URLParam(r, "class")
	members, err := h.session(r).Members(r.Context(), class)
	if err != nil {
		h.logFailure(r, "members", err)
		writeServiceError(w, err)
		return
	}
	if members == nil {
		members = []domain.Triple{}
	}
	writeJSON(w, http.StatusOK, membersResponse{
		Class:   domain.NormalizeTerm(class),
		Members: members,
		Count:   len(members),
	})
}

type opinionsResponse struct {
	Topic    string            `json:"topic"`
	Opinions []service.Opinion `json:"opinions"`
	Count    int               `json:"count"`
}

func (h *KnowledgeHandler) AskOpinion(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	ops, err := h.session(r).AskOpinion(r.Context(), topic)
	if err != nil {
		h.logFailure(r, "ask_opinion", err)
		writeServiceError(w, err)
		return
	}
	if ops == nil {
		ops = []service.Opinion{}
	}
	writeJSON(w, http.StatusOK, opinionsResponse{Topic: topic, Opinions: ops, Count: len(ops)})
}

func (h *KnowledgeHandler) Retract(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.session(r).Retract(r.Context(), id); err != nil {
		h.logFailure(r, "retract", err)
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *KnowledgeHandler) Audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.gateway.Audit(r.Context(), chi.URLParam(r, "subject"))
	if err != nil {
		h.logFailure(r, "audit", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type relationsResponse struct {
	Version   int                   `json:"version"`
	Relations []domain.RelationSpec `json:"relations"`
}

func (h *KnowledgeHandler) Relations(w http.ResponseWriter, r *http.Request) {
	v := h.gateway.Vocabulary()
	writeJSON(w, http.StatusOK, relationsResponse{Version: v.Version(), Relations: v.Relations()})
}

func (h *KnowledgeHandler) logFailure(r *http.Request, op string, err error) {
	h.logger.Debug("knowledge request failed",
		zap.String("op", op),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.Error(err),
	)
}
