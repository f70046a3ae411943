//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/akanksha509/backend-task/internal/identify/models"
	"github.com/akanksha509/backend-task/internal/identify/service"
	"github.com/akanksha509/backend-task/internal/identify/store"
	"github.com/akanksha509/backend-task/pkg/platform/sentinel"
	"github.com/akanksha509/backend-task/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	tx       *store.TxRunner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(store.EnsureSchema(context.Background(), s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
	s.tx = store.NewTxRunner(s.postgres.DB, 5*time.Second)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.postgres != nil {
		_ = s.postgres.DB.Close()
		_ = s.postgres.Container.Terminate(context.Background())
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateContacts(context.Background()))
}

func ptr(v string) *string { return &v }

func (s *PostgresStoreSuite) TestCreateAndFindMatching() {
	ctx := context.Background()

	created, err := s.store.Create(ctx, ptr("doc@hillvalley.edu"), ptr("123456"), models.PrecedencePrimary, nil)
	s.Require().NoError(err)
	s.NotZero(created.ID)
	s.Equal(models.PrecedencePrimary, created.Precedence)
	s.Nil(created.LinkedID)

	byEmail, err := s.store.FindMatching(ctx, ptr("doc@hillvalley.edu"), nil)
	s.Require().NoError(err)
	s.Require().Len(byEmail, 1)
	s.Equal(created.ID, byEmail[0].ID)

	byPhone, err := s.store.FindMatching(ctx, nil, ptr("123456"))
	s.Require().NoError(err)
	s.Require().Len(byPhone, 1)

	none, err := s.store.FindMatching(ctx, ptr("nobody@x.com"), nil)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *PostgresStoreSuite) TestPairUniquenessMapsToConflict() {
	ctx := context.Background()

	_, err := s.store.Create(ctx, ptr("a@x.com"), ptr("111"), models.PrecedencePrimary, nil)
	s.Require().NoError(err)

	_, err = s.store.Create(ctx, ptr("a@x.com"), ptr("111"), models.PrecedenceSecondary, nil)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	// Partial rows are exempt from the pair constraint.
	_, err = s.store.Create(ctx, ptr("a@x.com"), nil, models.PrecedenceSecondary, nil)
	s.Require().NoError(err)
	_, err = s.store.Create(ctx, nil, ptr("111"), models.PrecedenceSecondary, nil)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestReparentDemoteAndCluster() {
	ctx := context.Background()

	winner, err := s.store.Create(ctx, ptr("w@x.com"), ptr("1"), models.PrecedencePrimary, nil)
	s.Require().NoError(err)
	loser, err := s.store.Create(ctx, ptr("l@x.com"), ptr("2"), models.PrecedencePrimary, nil)
	s.Require().NoError(err)
	_, err = s.store.Create(ctx, ptr("c@x.com"), nil, models.PrecedenceSecondary, &loser.ID)
	s.Require().NoError(err)

	s.Require().NoError(s.store.ReparentChildren(ctx, []int64{loser.ID}, winner.ID))
	s.Require().NoError(s.store.Demote(ctx, []int64{loser.ID}, winner.ID))

	cluster, err := s.store.FindCluster(ctx, []int64{winner.ID})
	s.Require().NoError(err)
	s.Require().Len(cluster, 3)
	for _, c := range cluster {
		if c.ID == winner.ID {
			s.Equal(models.PrecedencePrimary, c.Precedence)
			continue
		}
		s.Equal(models.PrecedenceSecondary, c.Precedence)
		s.Require().NotNil(c.LinkedID)
		s.Equal(winner.ID, *c.LinkedID)
	}
}

func (s *PostgresStoreSuite) TestFindByIDsOrdersBySeniority() {
	ctx := context.Background()

	first, err := s.store.Create(ctx, ptr("first@x.com"), nil, models.PrecedencePrimary, nil)
	s.Require().NoError(err)
	second, err := s.store.Create(ctx, ptr("second@x.com"), nil, models.PrecedencePrimary, nil)
	s.Require().NoError(err)

	// Request in reverse; the store owns the ordering.
	contacts, err := s.store.FindByIDs(ctx, []int64{second.ID, first.ID})
	s.Require().NoError(err)
	s.Require().Len(contacts, 2)
	s.Equal(first.ID, contacts[0].ID)
	s.Equal(second.ID, contacts[1].ID)
}

// TestIdentifyEndToEnd runs the full resolution flow against real
// serializable transactions.
func (s *PostgresStoreSuite) TestIdentifyEndToEnd() {
	ctx := context.Background()
	svc := service.New(s.store, service.WithTx(s.tx))

	first, err := svc.Identify(ctx, "lorraine@hillvalley.edu", "123456")
	s.Require().NoError(err)
	s.Empty(first.SecondaryContactIDs)

	second, err := svc.Identify(ctx, "mcfly@hillvalley.edu", "123456")
	s.Require().NoError(err)
	s.Equal(first.PrimaryContactID, second.PrimaryContactID)
	s.Equal([]string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"}, second.Emails)
	s.Len(second.SecondaryContactIDs, 1)

	// Bridge a second cluster and verify the merge persists.
	third, err := svc.Identify(ctx, "biff@hillvalley.edu", "717171")
	s.Require().NoError(err)
	merged, err := svc.Identify(ctx, "biff@hillvalley.edu", "123456")
	s.Require().NoError(err)
	s.Equal(first.PrimaryContactID, merged.PrimaryContactID)
	s.Contains(merged.SecondaryContactIDs, third.PrimaryContactID)
}

// TestConcurrentIdentifyConverges hammers one unseen pair from many
// goroutines; the serializable envelope plus conflict recovery must land every
// caller on the same primary.
func (s *PostgresStoreSuite) TestConcurrentIdentifyConverges() {
	svc := service.New(s.store, service.WithTx(s.tx))
	const goroutines = 10

	var wg sync.WaitGroup
	results := make([]*models.ContactBundle, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Identify(context.Background(), "race@x.com", "424242")
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		s.Require().NoError(errs[i])
	}
	primaryID := results[0].PrimaryContactID
	for _, result := range results {
		s.Equal(primaryID, result.PrimaryContactID)
	}

	// Exactly one record exists for the pair.
	matches, err := s.store.FindMatching(context.Background(), ptr("race@x.com"), ptr("424242"))
	s.Require().NoError(err)
	s.Len(matches, 1)
}
