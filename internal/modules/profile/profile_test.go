package profile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"foodtrack/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	profiles map[types.ID]Profile
	failSave bool
}

func newMemStore() *memStore { return &memStore{profiles: make(map[types.ID]Profile)} }

func (m *memStore) Get(_ context.Context, id types.ID) (Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	return p, ok, nil
}

func (m *memStore) Save(_ context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("db down")
	}
	m.profiles[p.DriverID] = p
	return nil
}

type recordingNotifier struct{ got []Profile }

func (r *recordingNotifier) VerificationChanged(_ context.Context, p Profile) { r.got = append(r.got, p) }

func TestGetDefaultsForUnknownDriver(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil)
	p, err := svc.Get(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.ShareLocation || p.HasSharedLocation || p.IsAvailable {
		t.Fatalf("expected all flags off, got %+v", p)
	}
	if p.VerificationStatus != VerificationPending {
		t.Fatalf("expected pending verification, got %s", p.VerificationStatus)
	}
}

func TestLocationSharingRemembersFirstActivation(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	p, err := svc.SetLocationSharing(ctx, "d1", true)
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !p.ShareLocation || !p.HasSharedLocation {
		t.Fatalf("expected sharing on and remembered, got %+v", p)
	}
	p, err = svc.SetLocationSharing(ctx, "d1", false)
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if p.ShareLocation || !p.HasSharedLocation {
		t.Fatalf("disable must keep hasSharedLocation, got %+v", p)
	}
}

func TestSaveFailureSurfaces(t *testing.T) {
	store := newMemStore()
	store.failSave = true
	svc := NewService(store, nil, nil)

	if _, err := svc.SetAvailability(context.Background(), "d1", true); err == nil {
		t.Fatal("expected save error")
	}
}

func TestVerificationNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewService(newMemStore(), notifier, nil)
	ctx := context.Background()

	if _, err := svc.SetVerification(ctx, "d1", "maybe", ""); err != ErrInvalidVerification {
		t.Fatalf("expected ErrInvalidVerification, got %v", err)
	}
	if _, err := svc.SetVerification(ctx, "d1", VerificationRejected, strings.Repeat("x", MaxNoteLength+1)); err != ErrNoteTooLong {
		t.Fatalf("expected ErrNoteTooLong, got %v", err)
	}
	p, err := svc.SetVerification(ctx, "d1", VerificationApproved, "documents ok")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.VerificationStatus != VerificationApproved {
		t.Fatalf("unexpected status %s", p.VerificationStatus)
	}
	if len(notifier.got) != 1 || notifier.got[0].VerificationNote != "documents ok" {
		t.Fatalf("expected one notification, got %+v", notifier.got)
	}
}
