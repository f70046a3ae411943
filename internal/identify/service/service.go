// Package service implements contact cluster resolution: matching incoming
// identifier observations to existing clusters, merging clusters an
// observation bridges, and recording genuinely new identifying information.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/akanksha509/backend-task/internal/audit"
	identifymetrics "github.com/akanksha509/backend-task/internal/identify/metrics"
	"github.com/akanksha509/backend-task/internal/identify/models"
	"github.com/akanksha509/backend-task/internal/identify/normalize"
	dErrors "github.com/akanksha509/backend-task/pkg/domain-errors"
	"github.com/akanksha509/backend-task/pkg/platform/sentinel"
	pstrings "github.com/akanksha509/backend-task/pkg/platform/strings"
	"github.com/akanksha509/backend-task/pkg/requestcontext"
)

// Store is the persistence contract consumed by the resolution core. All
// methods see only non-deleted records. Implementations surface uniqueness
// violations as sentinel.ErrConflict and retryable contention as
// sentinel.ErrUnavailable.
type Store interface {
	// FindMatching returns records whose email or phone equals the given
	// values; only supplied (non-nil) predicates participate.
	FindMatching(ctx context.Context, email, phone *string) ([]*models.Contact, error)
	// FindByIDs returns the records for ids ordered by creation time
	// ascending, ties by id ascending.
	FindByIDs(ctx context.Context, ids []int64) ([]*models.Contact, error)
	// Create inserts a record, failing with sentinel.ErrConflict when a
	// non-deleted record already holds the same non-null (email, phone) pair.
	Create(ctx context.Context, email, phone *string, precedence models.Precedence, linkedID *int64) (*models.Contact, error)
	// ReparentChildren points every record linked to one of oldPrimaryIDs at
	// newPrimaryID in one set-based update.
	ReparentChildren(ctx context.Context, oldPrimaryIDs []int64, newPrimaryID int64) error
	// Demote converts the given primaries into secondaries of newPrimaryID.
	Demote(ctx context.Context, ids []int64, newPrimaryID int64) error
	// FindCluster returns the root records plus every record whose linkedId
	// is one of rootIDs, ordered by creation time ascending.
	FindCluster(ctx context.Context, rootIDs []int64) ([]*models.Contact, error)
}

const defaultMaxAttempts = 3

// Service resolves identify requests against the contact store. The matched
// path runs inside one serializable transaction supplied by the StoreTx; the
// service itself holds no mutable state, so instances are safe for
// concurrent use.
type Service struct {
	store       Store
	tx          StoreTx
	logger      *slog.Logger
	metrics     *identifymetrics.Metrics
	auditor     audit.Publisher
	maxAttempts int
}

type Option func(s *Service)

func WithTx(tx StoreTx) Option {
	return func(s *Service) { s.tx = tx }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *identifymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

// WithMaxAttempts overrides the conflict retry budget.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New constructs a Service. Without WithTx the store runs under a single
// in-process lock, which is only appropriate for the in-memory store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newInMemoryStoreTx()
	}
	return s
}

// outcome carries what one committed attempt did, for metrics and audit.
type outcome struct {
	bundle    *models.ContactBundle
	created   *models.Contact
	demoted   []int64
	newlyBorn bool // created is a brand-new primary
}

// Identify resolves one (email, phoneNumber) observation to its consolidated
// cluster, creating, merging, or extending clusters as needed. Raw input is
// normalized first; requests where neither identifier normalizes to a usable
// value are rejected.
func (s *Service) Identify(ctx context.Context, rawEmail, rawPhone string) (*models.ContactBundle, error) {
	email := normalize.Email(rawEmail)
	phone := normalize.Phone(rawPhone)
	if email == nil && phone == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one of email or phoneNumber is required")
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "identify aborted: context cancelled")
		}

		var result *outcome
		err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			out, err := s.identifyOnce(txCtx, email, phone)
			if err != nil {
				return err
			}
			result = out
			return nil
		})
		if err == nil {
			s.finish(ctx, result)
			return result.bundle, nil
		}

		switch {
		case errors.Is(err, sentinel.ErrConflict):
			// A concurrent equivalent request won the insert race. Resolve by
			// re-reading outside the failed transaction instead of
			// re-inserting.
			bundle, found, rerr := s.recoverFromConflict(ctx, email, phone)
			if rerr != nil {
				return nil, dErrors.Wrap(rerr, dErrors.CodeInternal, "conflict recovery failed")
			}
			if found {
				s.incrementIdentify(identifymetrics.OutcomeNoNewInformation)
				return bundle, nil
			}
			// The winning row is not visible yet; restart from scratch.
			s.incrementConflictRetry()
			lastErr = err

		case errors.Is(err, sentinel.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "identify aborted: context cancelled")
			}
			s.incrementConflictRetry()
			lastErr = err

		case dErrors.HasCode(err, dErrors.CodeTimeout):
			return nil, err

		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "identify failed")
		}

		s.logger.WarnContext(ctx, "identify attempt failed, retrying",
			"request_id", requestcontext.RequestID(ctx),
			"attempt", attempt,
			"error", err.Error(),
		)
	}

	s.incrementConflictFailure()
	return nil, dErrors.Wrap(lastErr, dErrors.CodeUnavailable, "identify conflicts persisted across the retry budget")
}

// identifyOnce runs the matched-path sequence once inside the caller's
// transaction context.
func (s *Service) identifyOnce(ctx context.Context, email, phone *string) (*outcome, error) {
	matches, err := s.store.FindMatching(ctx, email, phone)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		created, err := s.store.Create(ctx, email, phone, models.PrecedencePrimary, nil)
		if err != nil {
			return nil, err
		}
		return &outcome{
			bundle:    assembleBundle(created, []*models.Contact{created}),
			created:   created,
			newlyBorn: true,
		}, nil
	}

	truePrimary, superseded, err := s.resolvePrimary(ctx, matches)
	if err != nil {
		return nil, err
	}

	demotedIDs := contactIDs(superseded)
	if len(demotedIDs) > 0 {
		// Flatten before demoting: re-parent every dependent of a superseded
		// primary first so no secondary ever points at another secondary.
		if err := s.store.ReparentChildren(ctx, demotedIDs, truePrimary.ID); err != nil {
			return nil, err
		}
		if err := s.store.Demote(ctx, demotedIDs, truePrimary.ID); err != nil {
			return nil, err
		}
	}

	rootIDs := append([]int64{truePrimary.ID}, demotedIDs...)
	cluster, err := s.store.FindCluster(ctx, rootIDs)
	if err != nil {
		return nil, err
	}

	created, err := s.recordNewInformation(ctx, truePrimary, cluster, email, phone)
	if err != nil {
		return nil, err
	}
	if created != nil {
		cluster = append(cluster, created)
	}

	return &outcome{
		bundle:  assembleBundle(truePrimary, cluster),
		created: created,
		demoted: demotedIDs,
	}, nil
}

// resolvePrimary determines the authoritative primary for the clusters the
// matches touch. The senior candidate (earliest createdAt, ties by smallest
// id) wins; the rest are superseded and require demotion.
func (s *Service) resolvePrimary(ctx context.Context, matches []*models.Contact) (*models.Contact, []*models.Contact, error) {
	seen := make(map[int64]struct{}, len(matches))
	candidateIDs := make([]int64, 0, len(matches))
	for _, c := range matches {
		id := c.PrimaryID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		candidateIDs = append(candidateIDs, id)
	}

	candidates, err := s.store.FindByIDs(ctx, candidateIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(candidates) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeInternal, "matched records reference no primary")
	}
	return candidates[0], candidates[1:], nil
}

// recordNewInformation decides whether the observation introduces data not
// yet present in the cluster and creates at most one secondary carrying only
// the new piece(s).
//
// A single-identifier observation against an existing cluster always records
// a new dependent touchpoint, even when the value is already present. This
// mirrors how repeat visits are tracked; do not dedupe it.
func (s *Service) recordNewInformation(ctx context.Context, truePrimary *models.Contact, cluster []*models.Contact, email, phone *string) (*models.Contact, error) {
	if email == nil || phone == nil {
		return s.store.Create(ctx, email, phone, models.PrecedenceSecondary, &truePrimary.ID)
	}

	hasEmail, hasPhone := false, false
	for _, c := range cluster {
		if c.Email != nil && *c.Email == *email {
			hasEmail = true
		}
		if c.Phone != nil && *c.Phone == *phone {
			hasPhone = true
		}
	}
	if hasEmail && hasPhone {
		return nil, nil
	}

	var newEmail, newPhone *string
	if !hasEmail {
		newEmail = email
	}
	if !hasPhone {
		newPhone = phone
	}
	return s.store.Create(ctx, newEmail, newPhone, models.PrecedenceSecondary, &truePrimary.ID)
}

// recoverFromConflict re-reads after losing an insert race: full pair first,
// then email alone, then phone alone, oldest match each. Runs outside the
// failed transaction. Returns found=false when the winning row is not
// visible yet.
func (s *Service) recoverFromConflict(ctx context.Context, email, phone *string) (*models.ContactBundle, bool, error) {
	matches, err := s.store.FindMatching(ctx, email, phone)
	if err != nil {
		return nil, false, err
	}
	winner := selectConflictWinner(matches, email, phone)
	if winner == nil {
		return nil, false, nil
	}

	primaries, err := s.store.FindByIDs(ctx, []int64{winner.PrimaryID()})
	if err != nil {
		return nil, false, err
	}
	if len(primaries) == 0 {
		return nil, false, dErrors.New(dErrors.CodeInternal, "conflict winner references a missing primary")
	}
	primary := primaries[0]

	cluster, err := s.store.FindCluster(ctx, []int64{primary.ID})
	if err != nil {
		return nil, false, err
	}
	return assembleBundle(primary, cluster), true, nil
}

func selectConflictWinner(matches []*models.Contact, email, phone *string) *models.Contact {
	var pair, byEmail, byPhone *models.Contact
	for _, c := range matches {
		emailMatch := email != nil && c.Email != nil && *c.Email == *email
		phoneMatch := phone != nil && c.Phone != nil && *c.Phone == *phone
		if emailMatch && phoneMatch {
			pair = older(pair, c)
		}
		if emailMatch {
			byEmail = older(byEmail, c)
		}
		if phoneMatch {
			byPhone = older(byPhone, c)
		}
	}
	switch {
	case pair != nil:
		return pair
	case byEmail != nil:
		return byEmail
	default:
		return byPhone
	}
}

func older(a, b *models.Contact) *models.Contact {
	if a == nil {
		return b
	}
	if b.CreatedAt.Before(a.CreatedAt) || (b.CreatedAt.Equal(a.CreatedAt) && b.ID < a.ID) {
		return b
	}
	return a
}

// assembleBundle builds the response view: the primary's identifiers first,
// then each secondary's in cluster order, first occurrence kept.
func assembleBundle(primary *models.Contact, cluster []*models.Contact) *models.ContactBundle {
	emails := make([]string, 0, len(cluster)+1)
	phones := make([]string, 0, len(cluster)+1)
	secondaryIDs := make([]int64, 0, len(cluster))

	appendContact := func(c *models.Contact) {
		if c.Email != nil {
			emails = append(emails, *c.Email)
		}
		if c.Phone != nil {
			phones = append(phones, *c.Phone)
		}
	}

	appendContact(primary)
	for _, c := range cluster {
		if c.ID == primary.ID {
			continue
		}
		appendContact(c)
		secondaryIDs = append(secondaryIDs, c.ID)
	}

	return &models.ContactBundle{
		PrimaryContactID:    primary.ID,
		Emails:              pstrings.DedupeAndTrim(emails),
		PhoneNumbers:        pstrings.DedupeAndTrim(phones),
		SecondaryContactIDs: secondaryIDs,
	}
}

func contactIDs(contacts []*models.Contact) []int64 {
	if len(contacts) == 0 {
		return nil
	}
	ids := make([]int64, len(contacts))
	for i, c := range contacts {
		ids[i] = c.ID
	}
	return ids
}

// finish records metrics and audit events for a committed attempt.
func (s *Service) finish(ctx context.Context, out *outcome) {
	requestID := requestcontext.RequestID(ctx)

	switch {
	case out.newlyBorn:
		s.incrementIdentify(identifymetrics.OutcomePrimaryCreated)
	case out.created != nil:
		s.incrementIdentify(identifymetrics.OutcomeSecondaryAdded)
	default:
		s.incrementIdentify(identifymetrics.OutcomeNoNewInformation)
	}
	if len(out.demoted) > 0 && s.metrics != nil {
		s.metrics.ClustersMerged.Add(float64(len(out.demoted)))
	}

	if s.auditor == nil {
		return
	}
	if out.newlyBorn {
		event := audit.NewEvent(audit.ActionContactCreated, out.bundle.PrimaryContactID)
		event.ContactID = out.created.ID
		event.RequestID = requestID
		s.emit(ctx, event)
		return
	}
	if len(out.demoted) > 0 {
		event := audit.NewEvent(audit.ActionClusterMerged, out.bundle.PrimaryContactID)
		event.DemotedIDs = out.demoted
		event.RequestID = requestID
		s.emit(ctx, event)
	}
	if out.created != nil {
		event := audit.NewEvent(audit.ActionSecondaryAdded, out.bundle.PrimaryContactID)
		event.ContactID = out.created.ID
		event.RequestID = requestID
		s.emit(ctx, event)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", string(event.Action),
			"error", err.Error(),
		)
	}
}

func (s *Service) incrementIdentify(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementIdentify(outcome)
	}
}

func (s *Service) incrementConflictRetry() {
	if s.metrics != nil {
		s.metrics.ConflictRetries.Inc()
	}
}

func (s *Service) incrementConflictFailure() {
	if s.metrics != nil {
		s.metrics.ConflictFailures.Inc()
	}
}
