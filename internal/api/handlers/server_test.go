package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"sitefoundry.io/foreman/internal/api/middleware"
	"sitefoundry.io/foreman/internal/composer"
	"sitefoundry.io/foreman/internal/dispatch"
	"sitefoundry.io/foreman/internal/domain"
	"sitefoundry.io/foreman/internal/maintenance"
	"sitefoundry.io/foreman/internal/notify"
	"sitefoundry.io/foreman/internal/pkg/logger"
	"sitefoundry.io/foreman/internal/resolver"
	"sitefoundry.io/foreman/internal/retry"
	"sitefoundry.io/foreman/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

// fakeTokenRepo is an in-memory token.Repository for handler tests.
type fakeTokenRepo struct {
	records     []token.PushToken
	deactivated int64
	findErr     error
}

func (f *fakeTokenRepo) FindByUserIDs(ctx context.Context, userIDs []string) ([]token.PushToken, error) {
	return f.records, f.findErr
}

func (f *fakeTokenRepo) FindByUserID(ctx context.Context, userID string) ([]token.PushToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []token.PushToken
	for _, rec := range f.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeTokenRepo) FindActive(ctx context.Context) ([]token.PushToken, error) {
	return f.records, nil
}

func (f *fakeTokenRepo) CountAll(ctx context.Context) ([]token.PushToken, error) {
	return f.records, nil
}

func (f *fakeTokenRepo) Upsert(ctx context.Context, rec token.PushToken) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeTokenRepo) DeactivateDevice(ctx context.Context, userID, deviceID, keepToken string) error {
	return nil
}

func (f *fakeTokenRepo) DeactivateByToken(ctx context.Context, tokenValue, reason string) error {
	return nil
}

func (f *fakeTokenRepo) DeactivateMatching(ctx context.Context, filter token.DeactivateFilter, reason string) (int64, error) {
	return f.deactivated, nil
}

func (f *fakeTokenRepo) UpdateLastUsed(ctx context.Context, tokens []string, when time.Time) error {
	return nil
}

func (f *fakeTokenRepo) UpdateHealthScore(ctx context.Context, tokenValue string, score int) error {
	return nil
}

func (f *fakeTokenRepo) DeactivateUnusedSince(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	return 0, nil
}

func (f *fakeTokenRepo) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// fakeDirectory serves scripted recipients.
type fakeDirectory struct {
	admins []domain.Recipient
	staff  []domain.Recipient
	err    error
}

func (f *fakeDirectory) AdminsByClient(ctx context.Context, clientID string) ([]domain.Recipient, error) {
	return f.admins, f.err
}

func (f *fakeDirectory) StaffByClient(ctx context.Context, clientID string) ([]domain.Recipient, error) {
	return f.staff, f.err
}

func (f *fakeDirectory) ProjectAssignedStaff(ctx context.Context, projectID string) ([]domain.Recipient, error) {
	return nil, f.err
}

// fakeDispatcher reports every message as delivered.
type fakeDispatcher struct {
	result dispatch.Result
}

func (f *fakeDispatcher) SendToUsers(ctx context.Context, userIDs []string, content composer.Content, opts *dispatch.Options) dispatch.Result {
	if f.result.MessagesSent == 0 && f.result.Success {
		return dispatch.Result{Success: true, MessagesSent: len(userIDs)}
	}
	return f.result
}

type serverFixture struct {
	server *Server
	repo   *fakeTokenRepo
	dir    *fakeDirectory
	disp   *fakeDispatcher
}

const testCronSecret = "cron-secret-for-tests-0123456789abcdef"

func newFixture() *serverFixture {
	repo := &fakeTokenRepo{}
	dir := &fakeDirectory{}
	gateway := token.NewGateway(repo, token.NewValidator())
	res := resolver.New(dir, resolver.NewCache(), resolver.DefaultOptions())

	cfg := retry.DefaultConfig()
	cfg.Jitter = retry.JitterNone
	retries := retry.NewManager(nil, nil, cfg)

	sched := maintenance.NewScheduler(repo, token.NewValidator(), nil, maintenance.Config{
		Interval:       time.Hour,
		TokenMaxAge:    30 * 24 * time.Hour,
		DeleteInactive: 90 * 24 * time.Hour,
		HistorySize:    5,
	})

	disp := &fakeDispatcher{result: dispatch.Result{Success: true}}
	server := NewServer(ServerDeps{
		Tokens:      gateway,
		Resolver:    res,
		Retries:     retries,
		Maintenance: sched,
		Notifier:    notify.New(res, disp, retries, nil),
		CronSecret:  testCronSecret,
	})
	return &serverFixture{server: server, repo: repo, dir: dir, disp: disp}
}

// newRouter wires the handlers under the error middleware the way the
// application router does, with an optional authenticated user id.
func (f *serverFixture) newRouter(userID string) *gin.Engine {
	router := gin.New()
	router.Use(middleware.ErrorHandler())
	if userID != "" {
		router.Use(func(c *gin.Context) {
			c.Set("user_id", userID)
			c.Next()
		})
	}

	router.GET("/recipients", f.server.GetRecipients)
	router.DELETE("/recipients", f.server.DeleteRecipients)
	router.HEAD("/recipients", f.server.HeadRecipients)
	router.POST("/push-token", f.server.PostPushToken)
	router.GET("/push-token", f.server.GetPushTokens)
	router.DELETE("/push-token", f.server.DeletePushToken)
	router.GET("/retry", f.server.GetRetryStatus)
	router.POST("/retry", f.server.PostRetryAction)
	router.PUT("/retry", f.server.PutRetryConfig)
	router.DELETE("/retry", f.server.DeleteRetries)
	router.POST("/notifications/dispatch", f.server.PostDispatch)
	router.POST("/maintenance", f.server.PostMaintenance)
	router.GET("/maintenance", f.server.GetMaintenance)
	router.GET("/health/live", f.server.GetLiveness)
	router.GET("/health/ready", f.server.GetReadiness)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	decoded := map[string]interface{}{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

var errStoreDown = errors.New("store down")
