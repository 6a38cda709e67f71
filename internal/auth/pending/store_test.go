package pending

import (
	"testing"
	"time"

	"github.com/nexusmods/modlink/internal/db/models"
)

func TestConsumeIsSingleUse(t *testing.T) {
	s := NewStore()
	link := Link{DiscordID: "D1", Name: "someone#1234", Tokens: models.TokenBundle{AccessToken: "a"}}

	if err := s.Put("tok-1", link); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := s.Consume("tok-1")
	if !ok {
		t.Fatal("expected first consume to succeed")
	}
	if got.DiscordID != "D1" || got.Tokens.AccessToken != "a" {
		t.Fatalf("unexpected payload: %+v", got)
	}

	if _, ok := s.Consume("tok-1"); ok {
		t.Fatal("second consume must report absent, never a stale payload")
	}
}

func TestPutRejectsDuplicateToken(t *testing.T) {
	s := NewStore()
	if err := s.Put("tok-1", Link{DiscordID: "D1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("tok-1", Link{DiscordID: "D2"}); err != ErrDuplicateToken {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}
}

func TestExpiredEntryIsAbsentWithoutSweep(t *testing.T) {
	s := NewStoreTTL(10 * time.Millisecond)
	if err := s.Put("tok-1", Link{DiscordID: "D1"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	time.Sleep(25 * time.Millisecond)

	if _, ok := s.Consume("tok-1"); ok {
		t.Fatal("entry past its TTL must be treated as absent even if never swept")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	s := NewStoreTTL(10 * time.Millisecond)
	if err := s.Put("tok-1", Link{DiscordID: "D1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put("tok-2", Link{DiscordID: "D2"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	time.Sleep(25 * time.Millisecond)
	s.Sweep()

	if n := s.Len(); n != 0 {
		t.Fatalf("expected empty store after sweep, got %d entries", n)
	}
}
