// Package prediction runs the intake pipeline: persist the transaction,
// rebuild the sender's features, cache them, classify, finalize and notify.
package prediction

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mbd888/txsentinel/internal/events"
	"github.com/mbd888/txsentinel/internal/features"
	"github.com/mbd888/txsentinel/internal/inference"
	"github.com/mbd888/txsentinel/internal/logging"
	"github.com/mbd888/txsentinel/internal/metrics"
	"github.com/mbd888/txsentinel/internal/traces"
	"github.com/mbd888/txsentinel/internal/transactions"
)

// Classifier scores a feature vector.
type Classifier interface {
	Available() bool
	Classify(ctx context.Context, v features.Vector) (*inference.Result, error)
}

// Result is the outcome of a successful submission.
type Result struct {
	TransactionID  string                    `json:"transaction_id"`
	PredictedLabel string                    `json:"predicted_label"`
	Confidence     float64                   `json:"confidence"`
	FeaturesUsed   features.Vector           `json:"features_used"`
	ColdStart      bool                      `json:"cold_start"`
	Transaction    *transactions.Transaction `json:"transaction"`
}

// Service orchestrates a single submission end to end on the caller's
// goroutine. Only event delivery is asynchronous.
type Service struct {
	store      transactions.Store
	features   *features.Service
	classifier Classifier
	emitter    events.Emitter
	now        func() time.Time
}

// NewService wires the pipeline. A nil emitter discards notifications.
func NewService(store transactions.Store, fs *features.Service, classifier Classifier, emitter events.Emitter) *Service {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Service{
		store:      store,
		features:   fs,
		classifier: classifier,
		emitter:    emitter,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Predict validates, stores and classifies a new transaction. Validation
// and model availability are checked before anything is written. A failed
// classification leaves the transaction Pending. A storage failure after the
// insert removes it again and reports a retryable storage error.
func (s *Service) Predict(ctx context.Context, in *transactions.Input) (*Result, error) {
	start := s.now()
	ctx, span := traces.StartSpan(ctx, "prediction.Predict")
	defer span.End()

	res, err := s.predict(ctx, in)
	if err != nil {
		traces.Fail(span, err)
		if pe, ok := AsError(err); ok {
			metrics.PredictionFailuresTotal.WithLabelValues(string(pe.Kind), string(pe.Stage)).Inc()
		}
		return nil, err
	}

	span.SetAttributes(
		traces.TransactionID(res.TransactionID),
		traces.Label(res.PredictedLabel),
		traces.Confidence(res.Confidence),
		traces.ColdStart(res.ColdStart),
	)
	metrics.PredictionsTotal.WithLabelValues(res.PredictedLabel).Inc()
	metrics.PredictionDuration.Observe(s.now().Sub(start).Seconds())
	return res, nil
}

func (s *Service) predict(ctx context.Context, in *transactions.Input) (*Result, error) {
	// Received: submissions always start Pending whatever the body says.
	submission := *in
	submission.Status = ""
	tx, err := submission.Build(s.now().UTC())
	if err != nil {
		return nil, fail(KindValidation, StageReceived, err)
	}
	if !s.classifier.Available() {
		return nil, fail(KindModelUnavailable, StageReceived, inference.ErrModelUnavailable)
	}

	log := logging.ForTransaction(ctx, tx.ID, tx.SenderID)

	// Persisted
	if err := s.stage(ctx, StagePersisted, tx, func(ctx context.Context) error {
		return s.store.Create(ctx, tx)
	}); err != nil {
		return nil, fail(KindStorage, StagePersisted, err)
	}

	// FeaturesComputed, holding the sender lock until the cache write
	unlock, err := s.features.LockSender(ctx, tx.SenderID)
	if err != nil {
		s.rollback(ctx, tx, log)
		return nil, fail(KindStorage, StageFeaturesComputed, err)
	}
	var (
		vec  features.Vector
		cold bool
	)
	if err := s.stage(ctx, StageFeaturesComputed, tx, func(ctx context.Context) error {
		var err error
		vec, cold, err = s.features.Compute(ctx, tx)
		return err
	}); err != nil {
		unlock()
		log.Error("feature computation failed, discarding pending transaction", logging.KeyStage, StageFeaturesComputed, "error", err)
		s.rollback(ctx, tx, log)
		return nil, fail(KindStorage, StageFeaturesComputed, err)
	}

	// Cached: a stale cache row is tolerable, the prediction is not lost.
	if err := s.stage(ctx, StageCached, tx, func(ctx context.Context) error {
		_, err := s.features.Save(ctx, tx.SenderID, vec)
		return err
	}); err != nil {
		metrics.PredictionFailuresTotal.WithLabelValues(string(KindCacheWrite), string(StageCached)).Inc()
		log.Warn("feature cache write failed", logging.KeyStage, StageCached, "error", err)
	}
	unlock()

	// Classified
	var outcome *inference.Result
	if err := s.stage(ctx, StageClassified, tx, func(ctx context.Context) error {
		var err error
		outcome, err = s.classifier.Classify(ctx, vec)
		return err
	}); err != nil {
		log.Error("classification failed", logging.KeyStage, StageClassified, "error", err)
		if errors.Is(err, inference.ErrModelUnavailable) {
			return nil, fail(KindModelUnavailable, StageClassified, err)
		}
		return nil, fail(KindInference, StageClassified, err)
	}

	// Finalized
	var final *transactions.Transaction
	if err := s.stage(ctx, StageFinalized, tx, func(ctx context.Context) error {
		var err error
		final, err = s.store.Finalize(ctx, tx.ID, transactions.Outcome{
			Label:        outcome.Label,
			Confidence:   outcome.Confidence,
			ModelVersion: outcome.ModelVersion,
		})
		return err
	}); err != nil {
		log.Error("finalize failed, discarding pending transaction", logging.KeyStage, StageFinalized, "error", err)
		s.rollback(ctx, tx, log)
		return nil, fail(KindStorage, StageFinalized, err)
	}

	// Notified
	s.emitter.Emit(events.NewPredictionComplete(final, outcome.Label, outcome.Confidence, s.now()))

	log.Info("transaction classified",
		"label", outcome.Label,
		"confidence", outcome.Confidence,
		"cold_start", cold,
	)

	return &Result{
		TransactionID:  final.ID,
		PredictedLabel: outcome.Label,
		Confidence:     outcome.Confidence,
		FeaturesUsed:   vec,
		ColdStart:      cold,
		Transaction:    final,
	}, nil
}

// stage runs one step inside its own child span.
func (s *Service) stage(ctx context.Context, stage Stage, tx *transactions.Transaction, fn func(context.Context) error) error {
	ctx, span := traces.StartSpan(ctx, "prediction."+string(stage),
		traces.TransactionID(tx.ID),
		traces.SenderID(tx.SenderID),
	)
	defer span.End()

	if err := fn(ctx); err != nil {
		traces.Fail(span, err)
		return err
	}
	return nil
}

// rollback removes the pending row and brings the sender's cache back in
// line with the history that remains. Both steps are best effort. The
// caller must not hold the sender lock.
func (s *Service) rollback(ctx context.Context, tx *transactions.Transaction, log *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Discard(ctx, tx.ID); err != nil {
		log.Warn("discard of pending transaction failed", "error", err)
	}
	if _, err := s.features.Recompute(ctx, tx.SenderID); err != nil && !errors.Is(err, features.ErrNoHistory) {
		log.Warn("feature recompute after rollback failed", "error", err)
	}
}
