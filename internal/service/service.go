package service

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cafepos/backend/internal/domain"
	"cafepos/backend/internal/lock"
	"cafepos/backend/internal/store"
	"cafepos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Locker           lock.Locker
	Logger           *zerolog.Logger
	Location         *time.Location
	CutoffHour       int
	InvoiceRetries   int
	OperationTimeout time.Duration
	Clock            func() time.Time
}

type Service struct {
	store          store.Store
	locker         lock.Locker
	logger         zerolog.Logger
	validate       *validator.Validate
	loc            *time.Location
	cutoffHour     int
	invoiceRetries int
	opTimeout      time.Duration
	now            func() time.Time
}

func New(st store.Store, opts Options) *Service {
	if opts.Locker == nil {
		opts.Locker = lock.NewLocal()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.CutoffHour < 0 || opts.CutoffHour > 23 {
		opts.CutoffHour = 2
	}
	if opts.InvoiceRetries < 1 {
		opts.InvoiceRetries = 3
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 15 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := log.Logger.With().Str("component", "service").Logger()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "service").Logger()
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	return &Service{
		store:          st,
		locker:         opts.Locker,
		logger:         logger,
		validate:       validate,
		loc:            opts.Location,
		cutoffHour:     opts.CutoffHour,
		invoiceRetries: opts.InvoiceRetries,
		opTimeout:      opts.OperationTimeout,
		now:            opts.Clock,
	}
}

// authorize returns the calling actor when its role is one of roles. Admin
// passes every check; an empty roles list admits any authenticated actor.
func (s *Service) authorize(ctx context.Context, op string, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, domain.Permission(op)
	}
	if actor.Role == domain.RoleAdmin || len(roles) == 0 || slices.Contains(roles, actor.Role) {
		return actor, nil
	}
	return domain.Actor{}, domain.Permission(op)
}

func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		_, field, _ := strings.Cut(first.Namespace(), ".")
		return domain.Validation(field, "failed "+first.Tag()+" check")
	}
	return domain.Validation("", err.Error())
}

// withDeadline bounds long operations when the caller has not set a deadline.
func (s *Service) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// trace logs a failed operation with its error kind and identifying keys.
func (s *Service) trace(op string, errp *error, keys ...string) {
	if errp == nil || *errp == nil {
		return
	}
	err := *errp
	kind := domain.KindOf(err)
	event := s.logger.Warn()
	if kind == "" {
		event = s.logger.Error()
	}
	event = event.Err(err).Str("op", op).Str("kind", string(kind))
	for i := 0; i+1 < len(keys); i += 2 {
		event = event.Str(keys[i], keys[i+1])
	}
	event.Msg("operation failed")
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	err := s.store.WithTx(context.WithoutCancel(ctx), func(ctx context.Context, repo store.Repository) error {
		return repo.CreateAuditLog(ctx, domain.AuditLog{
			ID:            xid.New("audit"),
			ActorUsername: actor.Username,
			ActorRole:     actor.Role,
			Action:        action,
			EntityType:    entityType,
			EntityID:      entityID,
			Detail:        detail,
			CreatedAt:     s.clock(),
		})
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("action", action).Str("entity", entityType+"/"+entityID).Msg("failed to write audit log")
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) (logs []domain.AuditLog, err error) {
	defer s.trace("list_audit_logs", &err, "report_date", date)
	if _, err := s.authorize(ctx, "list_audit_logs", domain.RoleManager); err != nil {
		return nil, err
	}

	var from, to time.Time
	if date != "" {
		from, to, err = s.businessWindow(date)
		if err != nil {
			return nil, err
		}
	}
	err = s.store.View(ctx, func(ctx context.Context, repo store.Repository) error {
		logs, err = repo.ListAuditLogs(ctx, from, to, limit)
		return err
	})
	return logs, err
}

// businessWindow returns [cutoff on date, cutoff on date+1) in the business
// timezone.
func (s *Service) businessWindow(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, domain.Validation("report_date", "must be YYYY-MM-DD")
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), s.cutoffHour, 0, 0, 0, s.loc)
	return from, from.AddDate(0, 0, 1), nil
}

// businessDate is the business day a timestamp falls in.
func (s *Service) businessDate(t time.Time) string {
	local := t.In(s.loc)
	if local.Hour() < s.cutoffHour {
		local = local.AddDate(0, 0, -1)
	}
	return local.Format("2006-01-02")
}

func requireID(field string, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.Validation(field, "is required")
	}
	return nil
}
