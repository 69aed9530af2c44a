package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mw "github.com/Harshitk-cp/beliefgraph/internal/api/middleware"
	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/Harshitk-cp/beliefgraph/internal/metrics"
	"github.com/Harshitk-cp/beliefgraph/internal/service"
	"github.com/Harshitk-cp/beliefgraph/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupAppTest(t *testing.T) (*App, *store.InMemoryStore) {
	t.Helper()
	t.Setenv("RATE_LIMIT_BURST", "1000")

	units, err := domain.DefaultUnits()
	require.NoError(t, err)
	vocab, err := domain.DefaultVocabulary()
	require.NoError(t, err)
	seeds, err := domain.DefaultSeedSet()
	require.NoError(t, err)

	logger := zap.NewNop()
	st := store.NewInMemoryStore(units)
	_, err = service.NewSeeder(st, vocab, units, logger).Seed(context.Background(), seeds)
	require.NoError(t, err)

	recorder := metrics.New()
	gateway := service.NewGateway(st, vocab, units, logger)
	gateway.SetMetrics(recorder)

	versions := DataVersions{Vocabulary: vocab.Version(), Units: units.Version(), Constants: seeds.Version}
	return NewApp(st, gateway, recorder, versions, logger), st
}

func doRequest(t *testing.T, app *App, method, path string, body any, session string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(mw.SessionIDHeader, session)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	app, _ := setupAppTest(t)

	rec := doRequest(t, app, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(mw.RequestIDHeader))

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	build, ok := body["build"].(map[string]any)
	require.True(t, ok)
	data, ok := build["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1.0, data["constants"])
}

func TestLearnAndAskFact(t *testing.T) {
	app, _ := setupAppTest(t)

	rec := doRequest(t, app, http.MethodPost, "/v1/facts", service.Candidate{Subject: "car_01", Relation: "color", Text: "red"}, "01")
	require.Equal(t, http.StatusCreated, rec.Code)
	res := decode[service.LearnResult](t, rec)
	assert.Equal(t, domain.VerdictAdmit, res.Outcome)
	assert.Equal(t, "user_01", res.Triple.Source)

	rec = doRequest(t, app, http.MethodPost, "/v1/facts", service.Candidate{Subject: "car_01", Relation: "color", Text: "red"}, "01")
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[service.LearnResult](t, rec)
	assert.Equal(t, domain.VerdictAlreadyKnown, again.Outcome)
	assert.Equal(t, res.ID, again.ID)

	rec = doRequest(t, app, http.MethodGet, "/v1/facts/car_01?relation=*", nil, "01")
	require.Equal(t, http.StatusOK, rec.Code)
	facts := decode[factsBody](t, rec)
	assert.Equal(t, "car_01", facts.Subject)
	assert.Equal(t, 1, facts.Count)
	require.Len(t, facts.Facts, 1)
	assert.Equal(t, "red", facts.Facts[0].Object.Text)

	rec = doRequest(t, app, http.MethodGet, "/v1/facts/nothing_known", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"facts":[]`)
}

type factsBody struct {
	Subject string          `json:"subject"`
	Facts   []domain.Triple `json:"facts"`
	Count   int             `json:"count"`
}

func TestLearnRejected(t *testing.T) {
	app, _ := setupAppTest(t)

	rec := doRequest(t, app, http.MethodPost, "/v1/facts", service.Candidate{Subject: "ball", Relation: "shape", Text: "square"}, "01")
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "contradicts_constant", body["reason"])
	assert.Len(t, body["conflicting"], 1)

	rec = doRequest(t, app, http.MethodGet, "/v1/audit/ball", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[service.AuditReport](t, rec)
	require.Len(t, report.Rejections, 1)
	assert.Equal(t, "user_01", report.Rejections[0].Candidate.Source)
	require.Len(t, report.Beliefs, 1)
	assert.True(t, report.Beliefs[0].Current)
}

func TestLearnBadInput(t *testing.T) {
	app, _ := setupAppTest(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"unknown relation", service.Candidate{Subject: "car_01", Relation: "flies_over", Text: "moon"}, http.StatusBadRequest},
		{"bad unit", service.Candidate{Subject: "car_01", Relation: "length", Text: "4 cubits"}, http.StatusBadRequest},
		{"reserved source", service.Candidate{Subject: "car_01", Relation: "color", Text: "red", Source: "derived"}, http.StatusBadRequest},
		{"not json", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, app, http.MethodPost, "/v1/facts", tt.body, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/facts", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareAndDerive(t *testing.T) {
	app, _ := setupAppTest(t)

	for _, c := range []service.Candidate{
		{Subject: "baseball", Relation: "diameter", Text: "7.5 cm"},
		{Subject: "basketball", Relation: "diameter", Text: "24 cm"},
		{Subject: "softball", Relation: "instance_of", Text: "baseball"},
	} {
		rec := doRequest(t, app, http.MethodPost, "/v1/facts", c, "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := doRequest(t, app, http.MethodGet, "/v1/compare?a=basketball&b=baseball&relation=diameter", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cmp := decode[map[string]any](t, rec)
	assert.Equal(t, "a_greater", cmp["outcome"])
	assert.Equal(t, "basketball", cmp["winner"])
	assert.InDelta(t, 3.2, cmp["ratio"], 1e-9)

	rec = doRequest(t, app, http.MethodGet, "/v1/compare?a=basketball&b=kite&relation=diameter", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, app, http.MethodGet, "/v1/compare?a=basketball&relation=diameter", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, app, http.MethodGet, "/v1/compare?a=basketball&b=baseball&relation=color", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, app, http.MethodGet, "/v1/derive/softball?relation=diameter", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	fact := decode[service.NumericFact](t, rec)
	assert.Equal(t, domain.SourceDerived, fact.Source)
	assert.Equal(t, []string{"baseball"}, fact.Via)

	rec = doRequest(t, app, http.MethodGet, "/v1/derive/kite?relation=diameter", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, app, http.MethodGet, "/v1/derive/kite", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type membersBody struct {
	Class   string          `json:"class"`
	Members []domain.Triple `json:"members"`
	Count   int             `json:"count"`
}

func TestClassMembers(t *testing.T) {
	app, _ := setupAppTest(t)

	for _, e := range [][2]string{{"ball", "toy"}, {"basketball", "ball"}, {"car_01", "vehicle"}} {
		rec := doRequest(t, app, http.MethodPost, "/v1/facts",
			service.Candidate{Subject: e[0], Relation: "instance_of", Text: e[1]}, "01")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doRequest(t, app, http.MethodGet, "/v1/classes/Toy/members", nil, "01")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[membersBody](t, rec)
	assert.Equal(t, "toy", body.Class)
	assert.Equal(t, 2, body.Count)

	var subjects []string
	for _, m := range body.Members {
		subjects = append(subjects, m.Subject)
	}
	assert.ElementsMatch(t, []string{"ball", "basketball"}, subjects)

	rec = doRequest(t, app, http.MethodGet, "/v1/classes/spaceship/members", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"members":[]`)
}

func TestOpinions(t *testing.T) {
	app, _ := setupAppTest(t)

	rec := doRequest(t, app, http.MethodPost, "/v1/facts",
		service.Candidate{Subject: "user_01", Relation: "has_opinion", Text: "dogs are better than cats"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, app, http.MethodGet, "/v1/facts/dogs?relation=better_than", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[factsBody](t, rec).Count)

	rec = doRequest(t, app, http.MethodGet, "/v1/opinions?topic=dogs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Opinions []service.Opinion `json:"opinions"`
		Count    int               `json:"count"`
	}](t, rec)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "user_01", body.Opinions[0].Source)
}

func TestRetract(t *testing.T) {
	app, st := setupAppTest(t)

	rec := doRequest(t, app, http.MethodPost, "/v1/facts", service.Candidate{Subject: "car_01", Relation: "color", Text: "red"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	res := decode[service.LearnResult](t, rec)

	rec = doRequest(t, app, http.MethodDelete, "/v1/triples/"+res.ID.String(), nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, app, http.MethodDelete, "/v1/triples/"+res.ID.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, app, http.MethodDelete, "/v1/triples/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	constants, err := st.Get(context.Background(), "ball", "shape")
	require.NoError(t, err)
	require.NotEmpty(t, constants)
	rec = doRequest(t, app, http.MethodDelete, "/v1/triples/"+constants[0].ID.String(), nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRelations(t *testing.T) {
	app, _ := setupAppTest(t)

	rec := doRequest(t, app, http.MethodGet, "/v1/relations", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Version   int                   `json:"version"`
		Relations []domain.RelationSpec `json:"relations"`
	}](t, rec)
	assert.Equal(t, 1, body.Version)
	assert.NotEmpty(t, body.Relations)
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := setupAppTest(t)

	doRequest(t, app, http.MethodPost, "/v1/facts", service.Candidate{Subject: "ball", Relation: "shape", Text: "square"}, "01")

	rec := doRequest(t, app, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `beliefgraph_gateway_verdicts_total{kind="reject",reason="contradicts_constant"} 1`)
	assert.Contains(t, out, `beliefgraph_gateway_active_sessions 1`)
	assert.Contains(t, out, `beliefgraph_http_requests_total{method="POST",status="409"} 1`)
}
