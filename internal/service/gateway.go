package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Harshitk-cp/beliefgraph/internal/domain"
	"github.com/Harshitk-cp/beliefgraph/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultGatewayTimeout = 5 * time.Second
	anonymousSource       = "user_anonymous"
	rejectionLogTimeout   = 2 * time.Second
)

var (
	ErrUnknownRelation       = errors.New("unknown relation")
	ErrTimeout               = errors.New("gateway timeout")
	ErrUnattributedOpinion   = errors.New("opinion requires a source")
	ErrReservedSource        = errors.New("source is reserved for system use")
	ErrCyclicClassification  = errors.New("instance_of edge would create a cycle")
	ErrTripleNotFound        = errors.New("triple not found")
	ErrNotNumericRelation    = errors.New("relation is not numeric")
	ErrInvalidTriple         = store.ErrInvalidTriple
	errUnexpectedVerdictKind = errors.New("unexpected verdict kind")
)

// RejectionError reports a candidate refused by the conflict detector.
type RejectionError struct {
	Candidate   domain.Triple
	Reason      domain.RejectReason
	Conflicting []uuid.UUID
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected %s %s %s: %s", e.Candidate.Subject, e.Candidate.Relation, e.Candidate.Object, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	if e.Reason == domain.ReasonCyclicClassification {
		return ErrCyclicClassification
	}
	return store.ErrImmutableViolation
}

// Candidate is a triple proposed by the parser. The object is either Text or
// Value plus Unit.
type Candidate struct {
	Subject  string   `json:"subject"`
	Relation string   `json:"relation"`
	Text     string   `json:"text,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Source   string   `json:"source,omitempty"`
}

// LearnResult describes what happened to an admitted candidate.
type LearnResult struct {
	ID         uuid.UUID          `json:"id"`
	Outcome    domain.VerdictKind `json:"outcome"`
	Supersedes *uuid.UUID         `json:"supersedes,omitempty"`
	Triple     domain.Triple      `json:"triple"`
}

// Opinion is an attributed subjective statement. Source is always set.
type Opinion struct {
	Source    string    `json:"source"`
	Holder    string    `json:"holder"`
	Text      string    `json:"text"`
	TripleID  uuid.UUID `json:"triple_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEntry is one stored triple with its standing.
type AuditEntry struct {
	domain.Triple
	Current bool `json:"current"`
}

// AuditReport is the full history kept about a subject.
type AuditReport struct {
	Subject    string             `json:"subject"`
	Beliefs    []AuditEntry       `json:"beliefs"`
	Rejections []domain.Rejection `json:"rejections"`
}

// MetricsRecorder receives gateway and reasoning measurements.
type MetricsRecorder interface {
	ObserveVerdict(kind, reason string)
	ObserveReasoning(operation, outcome string, d time.Duration)
	SetActiveSessions(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveVerdict(string, string)                  {}
func (nopRecorder) ObserveReasoning(string, string, time.Duration) {}
func (nopRecorder) SetActiveSessions(int)                          {}

// Gateway is the read/write surface used by the conversation layer.
type Gateway struct {
	store    domain.KnowledgeStore
	vocab    *domain.Vocabulary
	units    *domain.UnitTable
	detector *ConflictDetector
	reasoner *Reasoner
	sessions *sessionRegistry
	metrics  MetricsRecorder
	logger   *zap.Logger
	timeout  time.Duration
}

func NewGateway(ks domain.KnowledgeStore, vocab *domain.Vocabulary, units *domain.UnitTable, logger *zap.Logger) *Gateway {
	g := &Gateway{
		store:    ks,
		vocab:    vocab,
		units:    units,
		detector: NewConflictDetector(vocab, units),
		reasoner: NewReasoner(ks, vocab, units, logger),
		metrics:  nopRecorder{},
		logger:   logger,
		timeout:  defaultGatewayTimeout,
	}
	g.sessions = newSessionRegistry(g)
	return g
}

func (g *Gateway) SetTimeout(d time.Duration) {
	if d > 0 {
		g.timeout = d
	}
}

func (g *Gateway) SetMaxDepth(n int) {
	g.detector.SetMaxDepth(n)
	g.reasoner.SetMaxDepth(n)
}

func (g *Gateway) SetMetrics(m MetricsRecorder) {
	if m != nil {
		g.metrics = m
	}
}

func (g *Gateway) Vocabulary() *domain.Vocabulary {
	return g.vocab
}

// Learn checks the candidate and persists it when admitted. Verdict and
// write happen under the subject lock in one transaction.
func (g *Gateway) Learn(ctx context.Context, c Candidate) (*LearnResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	t, err := g.buildTriple(c)
	if err != nil {
		return nil, err
	}

	keys := []string{domain.SubjectLockKey(t.Subject)}
	if t.Relation == domain.RelationInstanceOf {
		keys = append(keys, domain.TaxonomyLockKey)
	}

	var (
		res       *LearnResult
		rejection *RejectionError
	)
	err = g.store.WithinLock(ctx, keys, func(ctx context.Context, tx domain.FactStore) error {
		v, err := g.detector.Check(ctx, t, tx)
		if err != nil {
			return err
		}
		switch v.Kind {
		case domain.VerdictReject:
			rejection = &RejectionError{Candidate: *t, Reason: v.Reason, Conflicting: v.Conflicting}
			return rejection
		case domain.VerdictAlreadyKnown:
			existing, err := tx.GetByID(ctx, *v.Existing)
			if err != nil {
				return err
			}
			res = &LearnResult{ID: existing.ID, Outcome: v.Kind, Triple: *existing}
			return nil
		case domain.VerdictAdmitAsSuperseding:
			t.Supersedes = v.Supersedes
		case domain.VerdictAdmit:
		default:
			return fmt.Errorf("%w: %s", errUnexpectedVerdictKind, v.Kind)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := tx.Put(ctx, t)
		if err != nil {
			return err
		}
		res = &LearnResult{ID: id, Outcome: v.Kind, Supersedes: t.Supersedes, Triple: *t}
		return nil
	})

	if rejection != nil {
		g.metrics.ObserveVerdict(string(domain.VerdictReject), string(rejection.Reason))
		g.recordRejection(ctx, rejection)
		return nil, rejection
	}
	if err != nil {
		return nil, g.mapError(ctx, "learn", err)
	}

	g.metrics.ObserveVerdict(string(res.Outcome), "")
	g.logger.Debug("learned",
		zap.String("subject", res.Triple.Subject),
		zap.String("relation", res.Triple.Relation),
		zap.String("object", res.Triple.Object.String()),
		zap.String("outcome", string(res.Outcome)),
		zap.String("source", res.Triple.Source),
	)
	return res, nil
}

// recordRejection writes the audit entry after the subject lock is gone.
// It outlives the caller's deadline so a timed out caller still leaves a trace.
func (g *Gateway) recordRejection(ctx context.Context, rej *RejectionError) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rejectionLogTimeout)
	defer cancel()

	r := &domain.Rejection{
		Candidate:      rej.Candidate,
		Reason:         string(rej.Reason),
		ConflictingIDs: rej.Conflicting,
	}
	if err := g.store.RecordRejection(ctx, r); err != nil {
		g.logger.Error("failed to record rejection",
			zap.String("subject", rej.Candidate.Subject),
			zap.String("relation", rej.Candidate.Relation),
			zap.Error(err),
		)
		return
	}
	g.logger.Info("rejected candidate",
		zap.String("subject", rej.Candidate.Subject),
		zap.String("relation", rej.Candidate.Relation),
		zap.String("object", rej.Candidate.Object.String()),
		zap.String("reason", string(rej.Reason)),
		zap.String("source", rej.Candidate.Source),
	)
}

// buildTriple validates a candidate against the vocabulary and the unit
// table and turns it into a learned triple.
func (g *Gateway) buildTriple(c Candidate) (*domain.Triple, error) {
	subject := domain.NormalizeTerm(c.Subject)
	relation := domain.NormalizeTerm(c.Relation)
	if subject == "" || relation == "" {
		return nil, ErrInvalidTriple
	}
	spec, ok := g.vocab.Lookup(relation)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRelation, c.Relation)
	}

	source := strings.TrimSpace(c.Source)
	if domain.IsReservedSource(source) {
		return nil, fmt.Errorf("%w: %q", ErrReservedSource, source)
	}
	if source == "" {
		switch {
		case spec.IsOpinion() && strings.HasPrefix(subject, "user_"):
			source = subject
		case spec.IsOpinion():
			return nil, ErrUnattributedOpinion
		default:
			source = anonymousSource
		}
	}

	obj, err := g.buildObject(spec, c)
	if err != nil {
		return nil, err
	}

	t := &domain.Triple{
		Subject:     subject,
		Relation:    relation,
		Object:      obj,
		IsImmutable: false,
		Source:      source,
	}
	t.Normalize()
	if t.Object.IsZero() {
		return nil, ErrInvalidTriple
	}
	return t, nil
}

func (g *Gateway) buildObject(spec domain.RelationSpec, c Candidate) (domain.Object, error) {
	if spec.Kind != domain.KindNumeric {
		if c.Value != nil {
			text := strconv.FormatFloat(*c.Value, 'f', -1, 64)
			if u := strings.TrimSpace(c.Unit); u != "" {
				text += " " + u
			}
			return domain.TextObject(text), nil
		}
		return domain.TextObject(c.Text), nil
	}

	var q domain.Quantity
	if c.Value != nil {
		q = domain.Quantity{Value: *c.Value, Unit: c.Unit}
	} else {
		parsed, err := domain.ParseQuantity(c.Text)
		if err != nil {
			return domain.Object{}, fmt.Errorf("%w: %v", store.ErrUnitUnresolvable, err)
		}
		q = parsed
		if q.Unit == "" {
			q.Unit = c.Unit
		}
	}

	u, err := g.units.Resolve(q.Unit)
	if err != nil {
		return domain.Object{}, fmt.Errorf("%w: %v", store.ErrUnitUnresolvable, err)
	}
	if spec.Dimension != "" && u.Dimension != spec.Dimension {
		return domain.Object{}, fmt.Errorf("%w: %s is measured in %s, %q is %s",
			store.ErrUnitUnresolvable, spec.Name, spec.Dimension, q.Unit, u.Dimension)
	}
	return domain.NumericObject(q.Value, q.Unit), nil
}

// AskFact returns the current beliefs about subject, newest first.
// Opinions are never included and superseded beliefs are only visible
// through Audit. An empty relation or "*" matches every relation.
func (g *Gateway) AskFact(ctx context.Context, subject, relation string) ([]domain.Triple, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	relation = domain.NormalizeTerm(relation)
	if relation == "*" {
		relation = ""
	}
	if relation != "" {
		spec, ok := g.vocab.Lookup(relation)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRelation, relation)
		}
		if spec.IsOpinion() {
			return []domain.Triple{}, nil
		}
	}

	triples, err := g.store.Get(ctx, subject, relation)
	if err != nil {
		return nil, g.mapError(ctx, "ask_fact", err)
	}

	facts := make([]domain.Triple, 0, len(triples))
	for _, t := range triples {
		if spec, ok := g.vocab.Lookup(t.Relation); ok && spec.IsOpinion() {
			continue
		}
		facts = append(facts, t)
	}
	return g.vocab.CurrentBeliefs(facts), nil
}

// AskComparative compares a numeric relation between two subjects.
func (g *Gateway) AskComparative(ctx context.Context, a, b, relation string) (*Comparison, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.checkNumeric(relation); err != nil {
		return nil, err
	}

	start := time.Now()
	cmp, err := g.reasoner.Compare(ctx, a, b, relation)
	if err != nil {
		g.metrics.ObserveReasoning("compare", "error", time.Since(start))
		return nil, g.mapError(ctx, "ask_comparative", err)
	}
	g.metrics.ObserveReasoning("compare", string(cmp.Outcome), time.Since(start))
	return cmp, nil
}

// Derive resolves a numeric relation for subject, following its class
// chain. It returns nil, nil when nothing is known.
func (g *Gateway) Derive(ctx context.Context, subject, relation string) (*NumericFact, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.checkNumeric(relation); err != nil {
		return nil, err
	}

	start := time.Now()
	fact, err := g.reasoner.Derive(ctx, subject, relation)
	if err != nil {
		g.metrics.ObserveReasoning("derive", "error", time.Since(start))
		return nil, g.mapError(ctx, "derive", err)
	}
	outcome := "resolved"
	if fact == nil {
		outcome = "unknown"
	}
	g.metrics.ObserveReasoning("derive", outcome, time.Since(start))
	return fact, nil
}

// Members returns the current instance_of edges that reach class, members of
// its subclasses included.
func (g *Gateway) Members(ctx context.Context, class string) ([]domain.Triple, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	class = domain.NormalizeTerm(class)
	if class == "" {
		return nil, fmt.Errorf("%w: class is required", ErrInvalidTriple)
	}
	members, err := g.store.GetByClass(ctx, class)
	if err != nil {
		return nil, g.mapError(ctx, "members", err)
	}
	return members, nil
}

func (g *Gateway) checkNumeric(relation string) error {
	spec, ok := g.vocab.Lookup(relation)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRelation, relation)
	}
	if spec.Kind != domain.KindNumeric {
		return fmt.Errorf("%w: %s", ErrNotNumericRelation, spec.Name)
	}
	return nil
}

// AskOpinion returns the opinions about topic with their sources: those held
// by topic itself and those whose text mentions it. An empty topic returns
// every opinion.
func (g *Gateway) AskOpinion(ctx context.Context, topic string) ([]Opinion, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var opinions []Opinion
	for _, spec := range g.vocab.Relations() {
		if !spec.IsOpinion() {
			continue
		}
		triples, err := g.store.GetByRelation(ctx, spec.Name)
		if err != nil {
			return nil, g.mapError(ctx, "ask_opinion", err)
		}
		for _, t := range triples {
			if !aboutTopic(t, topic) {
				continue
			}
			opinions = append(opinions, Opinion{
				Source:    t.Source,
				Holder:    t.Subject,
				Text:      t.Object.String(),
				TripleID:  t.ID,
				Timestamp: t.Timestamp,
			})
		}
	}
	sort.SliceStable(opinions, func(i, j int) bool {
		return opinions[i].Timestamp.After(opinions[j].Timestamp)
	})
	return opinions, nil
}

func aboutTopic(t domain.Triple, topic string) bool {
	topic = domain.NormalizeTerm(topic)
	if topic == "" || t.Subject == topic {
		return true
	}
	return mentions(t.Object.String(), topic)
}

// mentions reports whether the words of topic appear consecutively in text.
func mentions(text, topic string) bool {
	split := func(s string) []string {
		return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
	}
	words, want := split(text), split(topic)
	if len(want) == 0 {
		return false
	}
	for i := 0; i+len(want) <= len(words); i++ {
		match := true
		for j := range want {
			if words[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// Retract deletes a learned triple. Constants cannot be retracted.
func (g *Gateway) Retract(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	t, err := g.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTripleNotFound
		}
		return g.mapError(ctx, "retract", err)
	}

	keys := []string{domain.SubjectLockKey(t.Subject)}
	if t.Relation == domain.RelationInstanceOf {
		keys = append(keys, domain.TaxonomyLockKey)
	}
	err = g.store.WithinLock(ctx, keys, func(ctx context.Context, tx domain.FactStore) error {
		return tx.Retract(ctx, id)
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return ErrTripleNotFound
	case errors.Is(err, store.ErrImmutableViolation):
		return fmt.Errorf("retract %s: %w", id, err)
	default:
		return g.mapError(ctx, "retract", err)
	}

	g.logger.Info("retracted triple",
		zap.String("id", id.String()),
		zap.String("subject", t.Subject),
		zap.String("relation", t.Relation),
	)
	return nil
}

// Audit lists everything stored about subject, including superseded beliefs,
// opinions and rejected writes.
func (g *Gateway) Audit(ctx context.Context, subject string) (*AuditReport, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	subject = domain.NormalizeTerm(subject)
	triples, err := g.store.Get(ctx, subject, "")
	if err != nil {
		return nil, g.mapError(ctx, "audit", err)
	}
	rejections, err := g.store.Rejections(ctx, subject)
	if err != nil {
		return nil, g.mapError(ctx, "audit", err)
	}

	current := make(map[uuid.UUID]bool)
	for _, t := range g.vocab.CurrentBeliefs(triples) {
		current[t.ID] = true
	}
	report := &AuditReport{
		Subject:    subject,
		Beliefs:    make([]AuditEntry, 0, len(triples)),
		Rejections: rejections,
	}
	for _, t := range triples {
		report.Beliefs = append(report.Beliefs, AuditEntry{Triple: t, Current: current[t.ID]})
	}
	return report, nil
}

// mapError turns deadline failures into ErrTimeout.
func (g *Gateway) mapError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		g.logger.Warn("gateway call timed out", zap.String("op", op), zap.Duration("timeout", g.timeout))
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return err
}
