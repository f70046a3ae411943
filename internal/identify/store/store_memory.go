// Package store provides the contact persistence implementations: an
// in-memory store for tests and demo mode, and a PostgreSQL store for
// production.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/akanksha509/backend-task/internal/identify/models"
	"github.com/akanksha509/backend-task/pkg/platform/sentinel"
	"github.com/akanksha509/backend-task/pkg/requestcontext"
)

// InMemory implements the service store contract with map-backed state. The
// (email, phone) uniqueness constraint is enforced the same way the database
// does, so race-path tests exercise real conflict behavior.
type InMemory struct {
	mu       sync.RWMutex
	contacts map[int64]*models.Contact
	nextID   int64
}

func NewInMemory() *InMemory {
	return &InMemory{contacts: make(map[int64]*models.Contact)}
}

func (s *InMemory) FindMatching(_ context.Context, email, phone *string) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Contact
	for _, c := range s.contacts {
		if c.DeletedAt != nil {
			continue
		}
		if email != nil && c.Email != nil && *c.Email == *email {
			out = append(out, c.Clone())
			continue
		}
		if phone != nil && c.Phone != nil && *c.Phone == *phone {
			out = append(out, c.Clone())
		}
	}
	sortBySeniority(out)
	return out, nil
}

func (s *InMemory) FindByIDs(_ context.Context, ids []int64) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Contact, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.contacts[id]; ok && c.DeletedAt == nil {
			out = append(out, c.Clone())
		}
	}
	sortBySeniority(out)
	return out, nil
}

func (s *InMemory) Create(ctx context.Context, email, phone *string, precedence models.Precedence, linkedID *int64) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if email != nil && phone != nil {
		for _, c := range s.contacts {
			if c.DeletedAt != nil || c.Email == nil || c.Phone == nil {
				continue
			}
			if *c.Email == *email && *c.Phone == *phone {
				return nil, sentinel.ErrConflict
			}
		}
	}

	now := requestcontext.Now(ctx)
	s.nextID++
	contact := &models.Contact{
		ID:         s.nextID,
		Precedence: precedence,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if email != nil {
		v := *email
		contact.Email = &v
	}
	if phone != nil {
		v := *phone
		contact.Phone = &v
	}
	if linkedID != nil {
		v := *linkedID
		contact.LinkedID = &v
	}
	s.contacts[contact.ID] = contact
	return contact.Clone(), nil
}

func (s *InMemory) ReparentChildren(ctx context.Context, oldPrimaryIDs []int64, newPrimaryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx)
	old := idSet(oldPrimaryIDs)
	for _, c := range s.contacts {
		if c.DeletedAt != nil || c.LinkedID == nil {
			continue
		}
		if _, ok := old[*c.LinkedID]; ok {
			v := newPrimaryID
			c.LinkedID = &v
			c.UpdatedAt = now
		}
	}
	return nil
}

func (s *InMemory) Demote(ctx context.Context, ids []int64, newPrimaryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx)
	for _, id := range ids {
		c, ok := s.contacts[id]
		if !ok || c.DeletedAt != nil {
			continue
		}
		v := newPrimaryID
		c.Precedence = models.PrecedenceSecondary
		c.LinkedID = &v
		c.UpdatedAt = now
	}
	return nil
}

func (s *InMemory) FindCluster(_ context.Context, rootIDs []int64) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roots := idSet(rootIDs)
	var out []*models.Contact
	for _, c := range s.contacts {
		if c.DeletedAt != nil {
			continue
		}
		if _, ok := roots[c.ID]; ok {
			out = append(out, c.Clone())
			continue
		}
		if c.LinkedID != nil {
			if _, ok := roots[*c.LinkedID]; ok {
				out = append(out, c.Clone())
			}
		}
	}
	sortBySeniority(out)
	return out, nil
}

// SoftDelete marks a contact deleted without removing it. Not part of the
// service contract; used by tests to verify deleted records stay invisible.
func (s *InMemory) SoftDelete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	now := requestcontext.Now(ctx)
	c.DeletedAt = &now
	c.UpdatedAt = now
	return nil
}

func sortBySeniority(contacts []*models.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].ID < contacts[j].ID
		}
		return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
	})
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
