// Package service orchestrates the payment lifecycle. Every status change,
// whatever its trigger, goes through Transition and the store's
// compare-and-swap, so concurrent webhook, poll, sweep and cancel calls agree
// on a single winner.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/servicefee/internal/audit"
	"github.com/cuongbtq/servicefee/internal/payment/domain"
	"github.com/cuongbtq/servicefee/internal/payment/pricing"
	"github.com/cuongbtq/servicefee/internal/payment/reference"
	"github.com/cuongbtq/servicefee/internal/payment/storage"
	"github.com/cuongbtq/servicefee/internal/payment/throttle"
	"github.com/cuongbtq/servicefee/internal/payment/verifier"
	"github.com/cuongbtq/servicefee/shared/tracing"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultVerifyTimeout = 5 * time.Second
	defaultPageSize      = 20
	maxPageSize          = 100
)

// PaymentStore persists payments and performs conditional status updates
type PaymentStore interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, paymentID string) (*domain.Payment, error)
	FindOpenByJob(ctx context.Context, jobID string) (*domain.Payment, error)
	CompareAndTransition(ctx context.Context, paymentID string, expected, next domain.Status, patch domain.TransitionPatch, onApplied storage.AppliedHook) (*domain.Payment, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Payment, error)
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.Payment, error)
}

// JobStore reads and activates job postings
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	Activate(ctx context.Context, jobID, paymentID string, paidAt time.Time) error
}

// IDGenerator issues payment ids
type IDGenerator interface {
	NewPaymentID() string
}

// Config wires the orchestrator's collaborators. A nil Verifier disables
// backend checks in CheckStatus, which suits expire-only processes.
type Config struct {
	Store         PaymentStore
	Jobs          JobStore
	Audit         audit.Sink
	Verifier      verifier.Verifier
	Throttle      throttle.Throttle
	Pricing       *pricing.Engine
	Payloads      reference.PayloadBuilder
	IDs           IDGenerator
	Metrics       *Metrics
	Logger        *slog.Logger
	PaymentTTL    time.Duration
	VerifyTimeout time.Duration
	Now           func() time.Time
}

// Service is the payment lifecycle orchestrator
type Service struct {
	store         PaymentStore
	jobs          JobStore
	audit         audit.Sink
	verifier      verifier.Verifier
	throttle      throttle.Throttle
	pricing       *pricing.Engine
	payloads      reference.PayloadBuilder
	ids           IDGenerator
	metrics       *Metrics
	logger        *slog.Logger
	paymentTTL    time.Duration
	verifyTimeout time.Duration
	now           func() time.Time
}

// New validates the configuration and fills defaults
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("payment store is required")
	case cfg.Jobs == nil:
		return nil, errors.New("job store is required")
	case cfg.Pricing == nil:
		return nil, errors.New("pricing engine is required")
	case cfg.Payloads == nil:
		return nil, errors.New("payload builder is required")
	case cfg.Logger == nil:
		return nil, errors.New("logger is required")
	}

	s := &Service{
		store:         cfg.Store,
		jobs:          cfg.Jobs,
		audit:         cfg.Audit,
		verifier:      cfg.Verifier,
		throttle:      cfg.Throttle,
		pricing:       cfg.Pricing,
		payloads:      cfg.Payloads,
		ids:           cfg.IDs,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		paymentTTL:    cfg.PaymentTTL,
		verifyTimeout: cfg.VerifyTimeout,
		now:           cfg.Now,
	}

	if s.audit == nil {
		s.audit = audit.NewLogSink(cfg.Logger)
	}
	if s.throttle == nil {
		s.throttle = throttle.NewMemory(0, 0, nil)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ids == nil {
		s.ids = reference.NewGenerator(s.now)
	}
	if s.paymentTTL <= 0 {
		s.paymentTTL = domain.DefaultPaymentTTL
	}
	if s.verifyTimeout <= 0 {
		s.verifyTimeout = defaultVerifyTimeout
	}

	return s, nil
}

// CreateRequest is an employer's request to pay for a job posting
type CreateRequest struct {
	EmployerID string
	JobID      string
	PackageID  string
	BoostIDs   []string
	Method     domain.Method
}

func (r CreateRequest) validate() error {
	switch {
	case r.EmployerID == "":
		return domain.NewValidationError("employer_id", "employer is required")
	case r.JobID == "":
		return domain.NewValidationError("job_id", "job_id is required")
	case !r.Method.Valid():
		return domain.NewValidationError("payment_method", fmt.Sprintf("unsupported payment method %q", r.Method))
	}
	return nil
}

// CreatePayment prices the selection and persists a pending payment
func (s *Service) CreatePayment(ctx context.Context, req CreateRequest) (*domain.Payment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	job, err := s.jobs.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != req.EmployerID {
		return nil, domain.ErrNotOwner
	}
	if job.IsPaid {
		return nil, &domain.ConflictError{Kind: domain.ConflictJobAlreadyPaid, PaymentID: job.PaymentID, Current: domain.StatusPaid}
	}

	breakdown, err := s.pricing.Quote(req.PackageID, req.BoostIDs)
	if err != nil {
		return nil, err
	}
	pkg, extras := s.pricing.Snapshot(breakdown)

	now := s.now()
	p := &domain.Payment{
		PaymentID:          s.ids.NewPaymentID(),
		JobID:              req.JobID,
		EmployerID:         req.EmployerID,
		ServiceFee:         breakdown.TotalServiceFee,
		Status:             domain.StatusPending,
		PaymentMethod:      req.Method,
		FeeBreakdown:       breakdown,
		ServicePackage:     pkg,
		AdditionalServices: extras,
		ExpiresAt:          now.Add(s.paymentTTL),
		SchemaVersion:      domain.CurrentSchemaVersion,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	p.QRCodeData, err = s.payloads.Build(req.Method, p.ServiceFee, p.PaymentID)
	if err != nil {
		return nil, err
	}

	err = s.store.Create(ctx, p)
	if retry, cerr := s.clearOverdue(ctx, err); retry {
		err = s.store.Create(ctx, p)
	} else if cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	s.metrics.created.WithLabelValues(string(p.PaymentMethod)).Inc()
	s.logger.Info("Payment created",
		slog.String("payment_id", p.PaymentID),
		slog.String("job_id", p.JobID),
		slog.Int64("service_fee", p.ServiceFee),
		slog.String("payment_method", string(p.PaymentMethod)),
	)

	s.audit.Record(ctx, audit.NewEvent(p, "", domain.SourceUser, now))
	return p.Clone(), nil
}

// clearOverdue expires a blocking open payment that is pending past its
// deadline. It reports whether creation should be retried.
func (s *Service) clearOverdue(ctx context.Context, createErr error) (bool, error) {
	var conflict *domain.ConflictError
	if !errors.As(createErr, &conflict) || conflict.Kind != domain.ConflictOpenPayment || conflict.Current != domain.StatusPending {
		return false, createErr
	}

	existing, err := s.store.GetByID(ctx, conflict.PaymentID)
	if err != nil || !existing.IsOverdue(s.now()) {
		return false, createErr
	}

	if _, err := s.Transition(ctx, TransitionRequest{
		PaymentID: existing.PaymentID,
		Next:      domain.StatusExpired,
		Source:    domain.SourceUser,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// TransitionRequest asks for a pending payment to move to Next
type TransitionRequest struct {
	PaymentID string
	Next      domain.Status
	Source    domain.Source
	Patch     domain.TransitionPatch
}

// TransitionResult reports the payment after the attempt and whether this call won
type TransitionResult struct {
	Payment *domain.Payment
	Applied bool
}

// Transition is the single entry point for status changes. A payment that has
// already left pending is reported with Applied=false rather than an error.
// Winning pending -> paid activates the job in the same storage transaction.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (res TransitionResult, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "payment.transition",
		attribute.String("payment_id", req.PaymentID),
		attribute.String("to_status", string(req.Next)),
	)
	defer func() { endSpan(err) }()

	if !domain.StatusPending.CanTransitionTo(req.Next) {
		return TransitionResult{}, domain.NewValidationError("status", fmt.Sprintf("cannot transition to %q", req.Next))
	}

	now := s.now()
	patch := req.Patch
	if patch.At.IsZero() {
		patch.At = now
	}
	if req.Next == domain.StatusPaid && patch.PaidAt == nil {
		patch.PaidAt = &patch.At
	}
	if req.Next == domain.StatusCancelled && patch.CancelledAt == nil {
		patch.CancelledAt = &patch.At
	}

	var onApplied storage.AppliedHook
	if req.Next == domain.StatusPaid {
		onApplied = func(ctx context.Context, p *domain.Payment) error {
			if err := s.jobs.Activate(ctx, p.JobID, p.PaymentID, *p.PaidAt); err != nil {
				return fmt.Errorf("%w: job %s: %v", domain.ErrJobActivation, p.JobID, err)
			}
			return nil
		}
	}

	updated, err := s.store.CompareAndTransition(ctx, req.PaymentID, domain.StatusPending, req.Next, patch, onApplied)

	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict) && conflict.Kind == domain.ConflictFinalized:
		s.metrics.transitions.WithLabelValues(string(req.Next), string(req.Source), resultAlreadyFinalized).Inc()
		s.logger.Info("Payment already finalized",
			slog.String("payment_id", req.PaymentID),
			slog.String("current_status", string(conflict.Current)),
			slog.String("requested_status", string(req.Next)),
			slog.String("source", string(req.Source)),
		)

		current, err := s.store.GetByID(ctx, req.PaymentID)
		if err != nil {
			return TransitionResult{}, err
		}
		return TransitionResult{Payment: current}, nil

	case errors.Is(err, domain.ErrNotFound):
		return TransitionResult{}, err

	case err != nil:
		s.metrics.transitions.WithLabelValues(string(req.Next), string(req.Source), resultError).Inc()
		s.logger.Error("Payment transition failed",
			slog.String("payment_id", req.PaymentID),
			slog.String("requested_status", string(req.Next)),
			slog.String("source", string(req.Source)),
			slog.Any("error", err),
		)
		return TransitionResult{}, fmt.Errorf("failed to transition payment: %w", err)
	}

	s.metrics.transitions.WithLabelValues(string(req.Next), string(req.Source), resultApplied).Inc()
	s.logger.Info("Payment transitioned",
		slog.String("payment_id", updated.PaymentID),
		slog.String("job_id", updated.JobID),
		slog.String("status", string(updated.Status)),
		slog.String("source", string(req.Source)),
	)

	evt := audit.NewEvent(updated, domain.StatusPending, req.Source, patch.At)
	if updated.TransactionID != "" {
		evt.Details = map[string]string{"transaction_id": updated.TransactionID}
	}
	if updated.CancelReason != "" {
		if evt.Details == nil {
			evt.Details = map[string]string{}
		}
		evt.Details["cancel_reason"] = updated.CancelReason
	}
	s.audit.Record(ctx, evt)

	return TransitionResult{Payment: updated, Applied: true}, nil
}

// GetPayment loads a payment owned by employerID
func (s *Service) GetPayment(ctx context.Context, paymentID, employerID string) (*domain.Payment, error) {
	p, err := s.store.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.EmployerID != employerID {
		return nil, domain.ErrNotOwner
	}
	return p, nil
}

// CheckStatus returns the payment, first asking the verification backend when
// it is still pending. Backend failures and timeouts leave it pending. An
// overdue pending payment is expired instead of verified.
func (s *Service) CheckStatus(ctx context.Context, paymentID, employerID string) (*domain.Payment, error) {
	p, err := s.GetPayment(ctx, paymentID, employerID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.StatusPending {
		return p, nil
	}

	if p.IsOverdue(s.now()) {
		res, err := s.Transition(ctx, TransitionRequest{PaymentID: p.PaymentID, Next: domain.StatusExpired, Source: domain.SourcePoll})
		if err != nil {
			return nil, err
		}
		return res.Payment, nil
	}

	if s.verifier == nil {
		return p, nil
	}

	if !s.throttle.Allow(ctx, p.PaymentID) {
		s.metrics.verifications.WithLabelValues(verificationThrottled).Inc()
		return p, nil
	}

	verdict, err := s.verify(ctx, p)
	if err != nil {
		return p, nil
	}

	var next domain.Status
	switch verdict.Outcome {
	case verifier.OutcomePaid:
		next = domain.StatusPaid
	case verifier.OutcomeFailed:
		next = domain.StatusFailed
	default:
		return p, nil
	}

	res, err := s.Transition(ctx, TransitionRequest{
		PaymentID: p.PaymentID,
		Next:      next,
		Source:    domain.SourcePoll,
		Patch: domain.TransitionPatch{
			TransactionID:   verdict.TransactionID,
			GatewayResponse: verdict.GatewayData,
		},
	})
	if err != nil {
		return nil, err
	}
	return res.Payment, nil
}

// verify calls the backend under a bounded timeout without holding any lock
func (s *Service) verify(ctx context.Context, p *domain.Payment) (_ verifier.Verdict, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "payment.verify", attribute.String("payment_id", p.PaymentID))
	defer func() { endSpan(err) }()

	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	start := time.Now()
	verdict, err := s.verifier.CheckPaid(vctx, p.Clone())
	s.metrics.verifyDuration.Observe(time.Since(start).Seconds())

	if err == nil && vctx.Err() != nil {
		err = fmt.Errorf("%w: %v", domain.ErrVerificationUnavailable, vctx.Err())
	}
	if err != nil {
		s.metrics.verifications.WithLabelValues(verificationUnavailable).Inc()
		s.logger.Warn("Payment verification unavailable",
			slog.String("payment_id", p.PaymentID),
			slog.Any("error", err),
		)
		return verifier.Verdict{}, err
	}

	s.metrics.verifications.WithLabelValues(string(verdict.Outcome)).Inc()
	return verdict, nil
}

// CancelRequest is an owner's request to abandon a pending payment
type CancelRequest struct {
	PaymentID  string
	EmployerID string
	Reason     string
}

// Cancel moves a pending payment to cancelled. Finalized payments yield a
// *domain.ConflictError such as "payment already paid".
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*domain.Payment, error) {
	p, err := s.GetPayment(ctx, req.PaymentID, req.EmployerID)
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return nil, domain.NewFinalizedError(p.PaymentID, p.Status)
	}

	res, err := s.Transition(ctx, TransitionRequest{
		PaymentID: p.PaymentID,
		Next:      domain.StatusCancelled,
		Source:    domain.SourceUser,
		Patch: domain.TransitionPatch{
			CancelReason: req.Reason,
			CancelledBy:  req.EmployerID,
		},
	})
	if err != nil {
		return nil, err
	}
	if !res.Applied {
		return nil, domain.NewFinalizedError(p.PaymentID, res.Payment.Status)
	}
	return res.Payment, nil
}

// ExpireOverdue expires up to limit pending payments past their deadline and
// returns how many this call expired. One failing payment does not stop the batch.
func (s *Service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	overdue, err := s.store.ListOverdue(ctx, s.now(), limit)
	if err != nil {
		s.metrics.ObserveSweep(0, err)
		return 0, err
	}

	var (
		expired int
		errs    []error
	)
	for _, p := range overdue {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		res, err := s.Transition(ctx, TransitionRequest{PaymentID: p.PaymentID, Next: domain.StatusExpired, Source: domain.SourceSweeper})
		if err != nil {
			errs = append(errs, fmt.Errorf("payment %s: %w", p.PaymentID, err))
			continue
		}
		if res.Applied {
			expired++
		}
	}

	err = errors.Join(errs...)
	s.metrics.ObserveSweep(expired, err)
	return expired, err
}

// Page is one page of an employer's payments
type Page struct {
	Payments   []*domain.Payment
	NextCursor *domain.Cursor
}

// ListPayments returns the employer's payments, newest first
func (s *Service) ListPayments(ctx context.Context, filter domain.ListFilter) (Page, error) {
	if filter.EmployerID == "" {
		return Page{}, domain.NewValidationError("employer_id", "employer is required")
	}
	if filter.Status != "" {
		if _, ok := domain.ParseStatus(string(filter.Status)); !ok {
			return Page{}, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
		}
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	payments, err := s.store.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}

	page := Page{Payments: payments}
	if len(payments) > filter.PageSize {
		page.Payments = payments[:filter.PageSize]
		last := page.Payments[len(page.Payments)-1]
		page.NextCursor = &domain.Cursor{CreatedAt: last.CreatedAt, PaymentID: last.PaymentID}
	}
	return page, nil
}

// Quote prices a selection without persisting anything
func (s *Service) Quote(packageID string, boostIDs []string) (domain.FeeBreakdown, error) {
	return s.pricing.Quote(packageID, boostIDs)
}

// Metrics exposes the service's collectors for registration
func (s *Service) Metrics() *Metrics {
	return s.metrics
}
