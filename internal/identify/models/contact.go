package models

import "time"

// Precedence marks a contact as the senior record of its cluster or a
// dependent of one.
type Precedence string

const (
	PrecedencePrimary   Precedence = "primary"
	PrecedenceSecondary Precedence = "secondary"
)

// Contact is one observed identity record. A cluster is one primary contact
// plus every secondary whose LinkedID points at it; the hierarchy is always
// exactly two levels deep.
type Contact struct {
	ID         int64
	Email      *string
	Phone      *string
	LinkedID   *int64
	Precedence Precedence
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// IsPrimary reports whether the contact anchors its cluster.
func (c *Contact) IsPrimary() bool {
	return c.Precedence == PrecedencePrimary
}

// PrimaryID returns the id of the cluster's primary as seen from this
// record: its own id when primary, otherwise the record it links to.
func (c *Contact) PrimaryID() int64 {
	if c.LinkedID != nil {
		return *c.LinkedID
	}
	return c.ID
}

// Clone returns a deep copy so store internals never alias caller state.
func (c *Contact) Clone() *Contact {
	dup := *c
	if c.Email != nil {
		v := *c.Email
		dup.Email = &v
	}
	if c.Phone != nil {
		v := *c.Phone
		dup.Phone = &v
	}
	if c.LinkedID != nil {
		v := *c.LinkedID
		dup.LinkedID = &v
	}
	if c.DeletedAt != nil {
		v := *c.DeletedAt
		dup.DeletedAt = &v
	}
	return &dup
}

// ContactBundle is the consolidated view of one cluster returned to callers.
// Emails and PhoneNumbers start with the primary's own values followed by
// each secondary's in cluster order, first occurrence kept.
type ContactBundle struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}
