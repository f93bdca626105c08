package pasetotoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func newLocalManager(t *testing.T, accessTTL time.Duration) *Manager {
	t.Helper()

	mgr, err := New(Config{
		Mode:      ModeLocal,
		Issuer:    "telecare",
		Audience:  "telecare-api",
		AccessTTL: accessTTL,
	}, NewLocalKeys())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return mgr
}

// Tokens are issued for the lifetime of the process, long after the manager
// is built; verification must judge validity at call time.
func TestVerifyTokenIssuedAfterConstruction(t *testing.T) {
	mgr := newLocalManager(t, 15*time.Minute)
	userID := uuid.New()

	time.Sleep(2 * time.Second)

	token, err := mgr.IssueAccess(userID, "patient", nil)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	claims, err := mgr.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("Verify() UserID = %v, want %v", claims.UserID, userID)
	}
	if claims.Type != TokenTypeAccess {
		t.Errorf("Verify() Type = %q, want %q", claims.Type, TokenTypeAccess)
	}
	if claims.Role != "patient" {
		t.Errorf("Verify() Role = %q, want %q", claims.Role, "patient")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	mgr := newLocalManager(t, time.Nanosecond)

	token, err := mgr.IssueAccess(uuid.New(), "doctor", nil)
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := mgr.Verify(token); err == nil {
		t.Fatal("Verify() of an expired token succeeded, want error")
	}
}

func TestVerifyCarriesSessionID(t *testing.T) {
	mgr := newLocalManager(t, 15*time.Minute)
	sid := uuid.New()

	token, err := mgr.IssueRefresh(uuid.New(), "patient", &sid)
	if err != nil {
		t.Fatalf("IssueRefresh() error = %v", err)
	}

	claims, err := mgr.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Type != TokenTypeRefresh {
		t.Errorf("Verify() Type = %q, want %q", claims.Type, TokenTypeRefresh)
	}
	if claims.SessionID == nil || *claims.SessionID != sid {
		t.Errorf("Verify() SessionID = %v, want %v", claims.SessionID, sid)
	}
}
