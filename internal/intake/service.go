package intake

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Inaralmeida/smilink-sub001/internal/address"
	"github.com/Inaralmeida/smilink-sub001/internal/metrics"
	redisclient "github.com/Inaralmeida/smilink-sub001/internal/redis"
)

var ErrLookupInFlight = errors.New("a postal code lookup for this form is already running")

var intakeTracer = otel.Tracer("clinic.internal.intake")

type Service struct {
	store    Store
	resolver Resolver
	locker   redisclient.Locker
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	loc      *time.Location
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the clinic time zone that ages and "today" are taken in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, resolver Resolver, locker redisclient.Locker, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    store,
		resolver: resolver,
		locker:   locker,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Validate(ctx context.Context, r Record) (Record, error) {
	_, span := intakeTracer.Start(ctx, "intake.validate")
	defer span.End()

	normalized, err := Validate(r, s.today())
	s.metrics.ObserveIntake(err == nil)
	if err != nil {
		span.SetStatus(codes.Error, "rejected")
		return Record{}, err
	}
	return normalized, nil
}

// Register validates r and stores it as a new patient.
func (s *Service) Register(ctx context.Context, r Record) (*Registration, error) {
	ctx, span := intakeTracer.Start(ctx, "intake.register")
	defer span.End()

	normalized, err := s.Validate(ctx, r)
	if err != nil {
		return nil, err
	}

	reg, err := s.store.SavePatient(ctx, uuid.New(), normalized)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic.patient_id", reg.PatientID.String()))

	s.logger.Info("patient registered",
		zap.String("patient_id", reg.PatientID.String()),
		zap.Bool("minor", facts(normalized, s.today()).Minor()),
		zap.Bool("has_insurance", normalized.HasInsurance),
	)
	return reg, nil
}

// LookupAddress resolves a postal code for one intake form. A second lookup
// for the same form while the first is running gets ErrLookupInFlight.
func (s *Service) LookupAddress(ctx context.Context, formID, postalCode string) (addr address.Address, err error) {
	code := Digits(postalCode)
	if len(code) != 8 {
		return address.Address{}, &ValidationError{Fields: map[string]string{"address.postal_code": MsgPostalCode}}
	}

	err = s.withFormLock(ctx, formID, func(ctx context.Context) error {
		var lookupErr error
		addr, lookupErr = s.resolve(ctx, code)
		return lookupErr
	})
	return addr, err
}

// AutoFill runs the postal code auto fill for one intake form under the same
// per form lock as LookupAddress.
func (s *Service) AutoFill(ctx context.Context, formID string, r Record) (filled Record, failures map[string]string, err error) {
	filled = r
	err = s.withFormLock(ctx, formID, func(ctx context.Context) error {
		filled, failures = AutoFill(ctx, resolverFunc(s.resolve), r)
		return nil
	})
	return filled, failures, err
}

func (s *Service) today() time.Time {
	if s.loc == nil {
		return s.now()
	}
	return s.now().In(s.loc)
}

type resolverFunc func(ctx context.Context, postalCode string) (address.Address, error)

func (f resolverFunc) Resolve(ctx context.Context, postalCode string) (address.Address, error) {
	return f(ctx, postalCode)
}

func (s *Service) resolve(ctx context.Context, code string) (address.Address, error) {
	ctx, span := intakeTracer.Start(ctx, "intake.address_lookup")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.postal_code", code))

	addr, err := s.resolver.Resolve(ctx, code)
	switch {
	case err == nil:
		s.metrics.ObserveLookup("found")
	case errors.Is(err, address.ErrLookupNotFound):
		s.metrics.ObserveLookup("not_found")
	default:
		s.metrics.ObserveLookup("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn("postal code lookup failed", zap.String("postal_code", code), zap.Error(err))
	}
	return addr, err
}

func (s *Service) withFormLock(ctx context.Context, formID string, fn func(ctx context.Context) error) error {
	if formID == "" || s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, "lookup:"+formID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		s.metrics.ObserveLookup("in_flight")
		return ErrLookupInFlight
	}
	return err
}
