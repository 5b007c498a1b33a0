package store

import (
	"context"
	"sync"
	"time"

	"healthpass/internal/emergency/models"
	id "healthpass/pkg/domain"
)

// InMemoryStore holds credentials for all owners behind one mutex, so the
// single-active-per-owner and global PIN-uniqueness invariants are enforced
// in the same critical section. A validator can never observe two active
// credentials for an owner, or two active credentials sharing a PIN.
type InMemoryStore struct {
	mu            sync.RWMutex
	byID          map[id.CredentialID]*models.Credential
	byTokenDigest map[string]id.CredentialID
	activeByOwner map[id.OwnerID]id.CredentialID
	activeByPIN   map[string]id.CredentialID
}

// New constructs an empty in-memory credential store.
func New() *InMemoryStore {
	return &InMemoryStore{
		byID:          make(map[id.CredentialID]*models.Credential),
		byTokenDigest: make(map[string]id.CredentialID),
		activeByOwner: make(map[id.OwnerID]id.CredentialID),
		activeByPIN:   make(map[string]id.CredentialID),
	}
}

// Put stores a new active credential, atomically superseding the owner's
// previous active credential. Returns ErrPINConflict without mutating
// anything when another owner's active credential already claims the PIN.
func (s *InMemoryStore) Put(_ context.Context, credential *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, ok := s.activeByPIN[credential.PINDigest]; ok {
		// The owner's own active credential is about to be superseded, so
		// its PIN is only a conflict when held by someone else.
		if prev, exists := s.activeByOwner[credential.OwnerID]; !exists || holder != prev {
			return ErrPINConflict
		}
	}

	if prevID, ok := s.activeByOwner[credential.OwnerID]; ok {
		prev := s.byID[prevID]
		prev.Status = models.StatusSuperseded
		delete(s.activeByPIN, prev.PINDigest)
	}

	copyCredential := *credential
	s.byID[credential.ID] = &copyCredential
	s.byTokenDigest[credential.TokenDigest] = credential.ID
	s.activeByOwner[credential.OwnerID] = credential.ID
	s.activeByPIN[credential.PINDigest] = credential.ID
	return nil
}

// GetActive returns the owner's active credential, or ErrNotFound.
func (s *InMemoryStore) GetActive(_ context.Context, ownerID id.OwnerID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credentialID, ok := s.activeByOwner[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	copyCredential := *s.byID[credentialID]
	return &copyCredential, nil
}

// FindByTokenDigest looks up a credential in any lifecycle state, so the
// validator can distinguish superseded/revoked/expired from unknown.
func (s *InMemoryStore) FindByTokenDigest(_ context.Context, digest string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credentialID, ok := s.byTokenDigest[digest]
	if !ok {
		return nil, ErrNotFound
	}
	copyCredential := *s.byID[credentialID]
	return &copyCredential, nil
}

// FindByPINDigest looks up by PIN among active credentials only. PINs are
// not unique across superseded or expired credentials, so there is nothing
// meaningful to return for them.
func (s *InMemoryStore) FindByPINDigest(_ context.Context, digest string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credentialID, ok := s.activeByPIN[digest]
	if !ok {
		return nil, ErrNotFound
	}
	copyCredential := *s.byID[credentialID]
	return &copyCredential, nil
}

// Revoke transitions the owner's active credential to Revoked in a single
// atomic step. Returns the updated credential or ErrNotFound when the owner
// has no active credential.
func (s *InMemoryStore) Revoke(_ context.Context, ownerID id.OwnerID, _ time.Time) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credentialID, ok := s.activeByOwner[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	credential := s.byID[credentialID]
	credential.Status = models.StatusRevoked
	delete(s.activeByOwner, ownerID)
	delete(s.activeByPIN, credential.PINDigest)
	copyCredential := *credential
	return &copyCredential, nil
}

// MarkExpired persists lazy expiry observed at validation time. Only an
// Active credential transitions; terminal statuses stay as recorded. The
// boolean reports whether this call performed the transition, so two
// concurrent observers of the same expiry cannot both claim it.
func (s *InMemoryStore) MarkExpired(_ context.Context, credentialID id.CredentialID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.byID[credentialID]
	if !ok {
		return false, ErrNotFound
	}
	if credential.Status != models.StatusActive {
		return false, nil
	}
	credential.Status = models.StatusExpired
	delete(s.activeByOwner, credential.OwnerID)
	delete(s.activeByPIN, credential.PINDigest)
	return true, nil
}
