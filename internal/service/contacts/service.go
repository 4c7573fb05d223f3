package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/nichat/nichat-server/internal/store"
)

// Common errors for contact operations.
var (
	ErrSelfReference = errors.New("cannot target yourself")
	ErrUserNotFound  = errors.New("user not found")
	ErrBlocked       = errors.New("blocked")
	ErrNotFollowing  = errors.New("not following this user")
	ErrNotBlocked    = errors.New("user is not blocked")
)

// Service provides contact management business logic. Contacts are
// directional: a follow belongs to its owner, a block belongs to the
// blocker but affects both directions.
type Service struct {
	store store.Store
}

// New creates a new contacts Service.
func New(st store.Store) *Service {
	return &Service{
		store: st,
	}
}

// Follow adds targetID to userID's contact list.
func (s *Service) Follow(ctx context.Context, userID, targetID int64) (*store.Contact, error) {
	if userID == targetID {
		return nil, ErrSelfReference
	}

	if _, err := s.store.GetUserByID(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup target user: %w", err)
	}

	// A block in either direction prevents following.
	blocked, err := s.store.IsBlocked(ctx, userID, targetID)
	if err != nil {
		return nil, fmt.Errorf("check block: %w", err)
	}
	if blocked {
		return nil, ErrBlocked
	}

	contact, err := s.store.UpsertContact(ctx, userID, targetID, store.ContactStatusFollowing)
	if err != nil {
		return nil, fmt.Errorf("upsert contact: %w", err)
	}
	return contact, nil
}

// Unfollow removes targetID from userID's contact list.
func (s *Service) Unfollow(ctx context.Context, userID, targetID int64) error {
	existing, err := s.store.GetContact(ctx, userID, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFollowing
		}
		return fmt.Errorf("lookup contact: %w", err)
	}
	if existing.Status != store.ContactStatusFollowing {
		return ErrNotFollowing
	}

	return s.store.DeleteContact(ctx, userID, targetID)
}

// Block marks targetID as blocked by userID. Any follow relation between
// the two, in either direction, is removed.
func (s *Service) Block(ctx context.Context, userID, targetID int64) error {
	if userID == targetID {
		return ErrSelfReference
	}

	if _, err := s.store.GetUserByID(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup target user: %w", err)
	}

	// The upsert replaces userID's own follow of targetID; the reverse
	// follow has to go separately. A block owned by targetID stays.
	reverse, err := s.store.GetContact(ctx, targetID, userID)
	if err == nil && reverse.Status == store.ContactStatusFollowing {
		if err := s.store.DeleteContact(ctx, targetID, userID); err != nil {
			return fmt.Errorf("remove reverse follow: %w", err)
		}
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup reverse contact: %w", err)
	}

	if _, err := s.store.UpsertContact(ctx, userID, targetID, store.ContactStatusBlocked); err != nil {
		return fmt.Errorf("upsert block: %w", err)
	}
	return nil
}

// Unblock removes userID's block of targetID.
func (s *Service) Unblock(ctx context.Context, userID, targetID int64) error {
	existing, err := s.store.GetContact(ctx, userID, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotBlocked
		}
		return fmt.Errorf("lookup contact: %w", err)
	}
	if existing.Status != store.ContactStatusBlocked {
		return ErrNotBlocked
	}

	return s.store.DeleteContact(ctx, userID, targetID)
}

// ListFollowing returns the users userID follows.
func (s *Service) ListFollowing(ctx context.Context, userID int64) ([]*store.Contact, error) {
	status := store.ContactStatusFollowing
	list, err := s.store.ListContacts(ctx, userID, &status)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return list, nil
}

// ListBlocked returns the users userID has blocked.
func (s *Service) ListBlocked(ctx context.Context, userID int64) ([]*store.Contact, error) {
	status := store.ContactStatusBlocked
	list, err := s.store.ListContacts(ctx, userID, &status)
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	return list, nil
}

// IsBlocked reports whether a block exists between two users in either
// direction.
func (s *Service) IsBlocked(ctx context.Context, userID, otherID int64) (bool, error) {
	return s.store.IsBlocked(ctx, userID, otherID)
}
