package token

import (
	"context"
	"errors"
	"testing"
	"time"

	"sitefoundry.io/foreman/internal/pkg/logger"
)

// fakeRepo is an in-memory Repository for gateway tests.
type fakeRepo struct {
	records     []PushToken
	findErr     error
	deactivated []string
	upserted    []PushToken
	deviceCalls []string
	failMutate  bool
}

func (f *fakeRepo) FindByUserIDs(ctx context.Context, userIDs []string) ([]PushToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	want := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	var out []PushToken
	for _, rec := range f.records {
		if want[rec.UserID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindByUserID(ctx context.Context, userID string) ([]PushToken, error) {
	return f.FindByUserIDs(ctx, []string{userID})
}

func (f *fakeRepo) FindActive(ctx context.Context) ([]PushToken, error) {
	var out []PushToken
	for _, rec := range f.records {
		if rec.IsActive {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountAll(ctx context.Context) ([]PushToken, error) { return f.records, nil }

func (f *fakeRepo) Upsert(ctx context.Context, rec PushToken) error {
	if f.failMutate {
		return errors.New("write failed")
	}
	f.upserted = append(f.upserted, rec)
	return nil
}

func (f *fakeRepo) DeactivateDevice(ctx context.Context, userID, deviceID, keepToken string) error {
	f.deviceCalls = append(f.deviceCalls, userID+"/"+deviceID)
	return nil
}

func (f *fakeRepo) DeactivateByToken(ctx context.Context, token, reason string) error {
	if f.failMutate {
		return errors.New("write failed")
	}
	f.deactivated = append(f.deactivated, token)
	return nil
}

func (f *fakeRepo) DeactivateMatching(ctx context.Context, filter DeactivateFilter, reason string) (int64, error) {
	return 1, nil
}

func (f *fakeRepo) UpdateLastUsed(ctx context.Context, tokens []string, when time.Time) error {
	return nil
}

func (f *fakeRepo) UpdateHealthScore(ctx context.Context, token string, score int) error {
	return nil
}

func (f *fakeRepo) DeactivateUnusedSince(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestGateway(repo *fakeRepo) *Gateway {
	_ = logger.Init("error", "console")
	return NewGateway(repo, NewValidator())
}

func TestActiveTokensForUsersPartitionsRequestedSet(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{records: []PushToken{
		{UserID: "u1", Token: sampleExpo, IsActive: true},
		{UserID: "u1", Token: "short", IsActive: true},     // invalid format
		{UserID: "u2", Token: sampleAPNS, IsActive: false}, // inactive, dropped
	}}
	g := newTestGateway(repo)

	res := g.ActiveTokensForUsers(context.Background(), []string{"u1", "u2", "u3"})

	if len(res.Tokens) != 1 || res.Tokens[0].Token != sampleExpo {
		t.Fatalf("Tokens = %+v, want exactly the valid active expo token", res.Tokens)
	}
	for _, rec := range res.Tokens {
		if !rec.IsActive {
			t.Fatalf("returned inactive token %q", rec.Token)
		}
	}
	if len(res.InvalidTokens) != 1 || res.InvalidTokens[0].Token != "short" {
		t.Fatalf("InvalidTokens = %+v, want the malformed token", res.InvalidTokens)
	}
	if len(res.MissingUsers) != 1 || res.MissingUsers[0] != "u3" {
		t.Fatalf("MissingUsers = %v, want [u3]", res.MissingUsers)
	}

	// tokens ∪ invalid ∪ missing partitions the requested ids without overlap.
	covered := map[string]int{}
	for _, rec := range res.Tokens {
		covered[rec.UserID]++
	}
	for _, rec := range res.InvalidTokens {
		covered[rec.UserID]++
	}
	for _, id := range res.MissingUsers {
		covered[id]++
	}
	for _, id := range []string{"u1", "u2", "u3"} {
		if id == "u2" {
			continue // inactive-only user: found, neither valid nor invalid
		}
		if covered[id] == 0 {
			t.Fatalf("user %s not covered by any partition", id)
		}
	}

	if res.Stats.Requested != 3 || res.Stats.Valid != 1 || res.Stats.Invalid != 1 || res.Stats.Missing != 1 {
		t.Fatalf("Stats = %+v", res.Stats)
	}
}

func TestActiveTokensForUsersDegradesOnStoreError(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{findErr: errors.New("connection reset")}
	g := newTestGateway(repo)

	res := g.ActiveTokensForUsers(context.Background(), []string{"u1", "u2"})
	if len(res.Tokens) != 0 || len(res.InvalidTokens) != 0 {
		t.Fatalf("degraded result not empty: %+v", res)
	}
	if len(res.MissingUsers) != 2 {
		t.Fatalf("MissingUsers = %v, want both requested users", res.MissingUsers)
	}
}

func TestMarkInvalidSwallowsStoreFailure(t *testing.T) {
	t.Parallel()

	g := newTestGateway(&fakeRepo{failMutate: true})
	// Must not panic or propagate.
	g.MarkInvalid(context.Background(), sampleExpo, "DeviceNotRegistered")
}

func TestRegisterDeactivatesPriorDeviceTokens(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	g := newTestGateway(repo)

	rec, err := g.Register(context.Background(), Registration{
		UserID:   "u1",
		UserType: "staff",
		Token:    sampleExpo,
		Platform: PlatformAndroid,
		DeviceID: "device-9",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !rec.IsActive {
		t.Fatal("registered token not active")
	}
	if rec.HealthScore <= 0 {
		t.Fatalf("HealthScore = %d, want > 0", rec.HealthScore)
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("upserts = %d, want 1", len(repo.upserted))
	}
	if len(repo.deviceCalls) != 1 || repo.deviceCalls[0] != "u1/device-9" {
		t.Fatalf("deviceCalls = %v, want [u1/device-9]", repo.deviceCalls)
	}
}

func TestRegisterRejectsMalformedToken(t *testing.T) {
	t.Parallel()

	g := newTestGateway(&fakeRepo{})
	if _, err := g.Register(context.Background(), Registration{
		UserID: "u1",
		Token:  "UNREGISTERED",
	}); err == nil {
		t.Fatal("Register() = nil error, want rejection")
	}
}
