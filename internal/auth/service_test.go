package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func testService(t *testing.T) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore()
	codec, err := NewCodec(testSecret, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := NewService(store, codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func register(t *testing.T, svc *Service, name, org, email string) (Profile, TokenPair) {
	t.Helper()
	profile, pair, err := svc.Register(context.Background(), name, org, email, "correct horse battery")
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return profile, pair
}

func TestRegisterThenLogin(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	profile, pair, err := svc.Register(ctx, "Alice", "acme", "Alice@Example.com", "s3cret-enough")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if profile.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", profile.Email)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected token pair")
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatal("refresh must outlive access")
	}

	got, _, err := svc.Login(ctx, "alice@example.com", "s3cret-enough")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != profile.ID {
		t.Fatalf("login resolved wrong identity: %s != %s", got.ID, profile.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		args  [4]string // name, org, email, password
	}{
		{"empty name", [4]string{"", "acme", "a@example.com", "long-enough-pw"}},
		{"empty organization", [4]string{"Alice", "", "a@example.com", "long-enough-pw"}},
		{"empty email", [4]string{"Alice", "acme", "", "long-enough-pw"}},
		{"malformed email", [4]string{"Alice", "acme", "not-an-email", "long-enough-pw"}},
		{"short password", [4]string{"Alice", "acme", "a@example.com", "short"}},
		{"overlong password", [4]string{"Alice", "acme", "a@example.com", strings.Repeat("x", 73)}},
		{"overlong name", [4]string{strings.Repeat("n", 81), "acme", "a@example.com", "long-enough-pw"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Register(ctx, tc.args[0], tc.args[1], tc.args[2], tc.args[3])
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	register(t, svc, "Alice", "acme", "alice@example.com")

	_, _, err := svc.Register(ctx, "Mallory", "globex", "ALICE@example.com", "another-password")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	register(t, svc, "Alice", "acme", "alice@example.com")

	_, _, unknownErr := svc.Login(ctx, "nobody@example.com", "whatever-password")
	_, _, wrongErr := svc.Login(ctx, "alice@example.com", "wrong-password!!")

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongErr)
	}
	// Same sentinel either way; nothing to distinguish the cases by.
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error shapes differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestLoginStartsFreshLineage(t *testing.T) {
	svc, store := testService(t)
	ctx := context.Background()

	profile, first := register(t, svc, "Alice", "acme", "alice@example.com")

	_, second, err := svc.Login(ctx, "alice@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	u, err := store.Find(ctx, profile.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.RefreshHash != Fingerprint(second.RefreshToken) {
		t.Fatal("stored verifier must match the latest refresh token")
	}

	// The first session's refresh token is now stale.
	if _, _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected stale refresh to fail, got %v", err)
	}
}

func TestRefreshRotates(t *testing.T) {
	svc, store := testService(t)
	ctx := context.Background()

	profile, pair := register(t, svc, "Alice", "acme", "alice@example.com")

	got, rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got.ID != profile.ID {
		t.Fatalf("refresh resolved wrong identity: %s", got.ID)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	u, err := store.Find(ctx, profile.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.RefreshHash != Fingerprint(rotated.RefreshToken) {
		t.Fatal("stored verifier must track the rotated token")
	}
}

func TestRefreshReuseKillsLineage(t *testing.T) {
	svc, store := testService(t)
	ctx := context.Background()

	profile, pair := register(t, svc, "Alice", "acme", "alice@example.com")

	_, rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	// Replaying the original token is a theft signal.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on reuse, got %v", err)
	}

	u, err := store.Find(ctx, profile.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.RefreshHash != "" {
		t.Fatal("reuse must clear the stored verifier")
	}

	// Even the legitimately rotated token is dead now: forced re-login.
	if _, _, err := svc.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected rotated token to be dead after reuse, got %v", err)
	}
}

func TestRefreshAfterLogout(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	profile, pair := register(t, svc, "Alice", "acme", "alice@example.com")

	if err := svc.Logout(ctx, profile.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh to fail after logout, got %v", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, _, err := svc.Refresh(ctx, token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	_, pair := register(t, svc, "Alice", "acme", "alice@example.com")

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		failures int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrInvalidToken):
				failures++
			default:
				t.Errorf("unexpected refresh error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins > 1 {
		t.Fatalf("rotation must have at most one winner, got %d", wins)
	}
	if wins+failures != callers {
		t.Fatalf("accounted %d of %d callers", wins+failures, callers)
	}
}

func TestProfile(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	profile, _ := register(t, svc, "Alice", "acme", "alice@example.com")

	got, err := svc.Profile(ctx, profile.ID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if got != profile {
		t.Fatalf("profile mismatch: %+v != %+v", got, profile)
	}

	if _, err := svc.Profile(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
