package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/altafino/order-mail-extractor/internal/config"
	"github.com/altafino/order-mail-extractor/internal/email"
	"github.com/altafino/order-mail-extractor/internal/errorlog"
	"github.com/altafino/order-mail-extractor/internal/extractor"
	"github.com/altafino/order-mail-extractor/internal/jobs"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/rules"
	"github.com/altafino/order-mail-extractor/internal/store"
	"github.com/altafino/order-mail-extractor/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRunner struct {
	job     *models.Job
	busy    bool
	stopped bool
}

func (f *fakeRunner) Submit(ctx context.Context, t models.JobType, s *types.Settings) (*models.Job, error) {
	if f.busy {
		return nil, jobs.ErrJobRunning
	}
	if t != "" && t != models.JobPlain && t != models.JobRulePreloaded {
		return nil, fmt.Errorf("%w: %s", jobs.ErrUnknownJobType, t)
	}
	f.job = &models.Job{ID: "job-1", Type: t, Status: models.JobRunning}
	f.busy = true
	return f.job, nil
}

func (f *fakeRunner) Get(id string) (*models.Job, bool) {
	if f.job == nil || f.job.ID != id {
		return nil, false
	}
	return f.job, true
}

func (f *fakeRunner) Current() (*models.Job, bool) {
	if !f.busy {
		return nil, false
	}
	return f.job, true
}

func (f *fakeRunner) List() []models.Job {
	if f.job == nil {
		return []models.Job{}
	}
	return []models.Job{*f.job}
}

func (f *fakeRunner) RequestStop() bool {
	f.stopped = true
	return f.busy
}

type fakeSettings struct {
	current  *types.Settings
	replaced *types.Settings
	err      error
}

func (f *fakeSettings) Get() *types.Settings { return f.current }

func (f *fakeSettings) Replace(next *types.Settings) error {
	if f.err != nil {
		return f.err
	}
	f.replaced = next
	f.current = next
	return nil
}

type fakeExtractor struct{ calls int }

func (f *fakeExtractor) Extract(ctx context.Context, e *models.Email, s *types.Settings, saveFiles bool) extractor.Result {
	f.calls++
	return extractor.Result{Type: models.TypeOrder, Confidence: 0.9, Data: &models.ParsedData{}}
}

type fakeSession struct {
	email.Session
	envelopes []email.Envelope
}

func (f *fakeSession) Search(ctx context.Context, c email.Criteria) ([]uint32, error) {
	uids := make([]uint32, 0, len(f.envelopes))
	for _, e := range f.envelopes {
		uids = append(uids, e.UID)
	}
	return uids, nil
}

func (f *fakeSession) FetchEnvelopes(ctx context.Context, uids []uint32) ([]email.Envelope, error) {
	var out []email.Envelope
	for _, e := range f.envelopes {
		for _, uid := range uids {
			if e.UID == uid {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

type fakeMailbox struct {
	session *fakeSession
	err     error
}

func (f *fakeMailbox) Open(ctx context.Context, s *types.Settings, fn func(email.Session) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(f.session)
}

type fixture struct {
	router   *Router
	runner   *fakeRunner
	store    *store.SQLiteStore
	settings *fakeSettings
	ext      *fakeExtractor
	mailbox  *fakeMailbox
}

func newFixture(t *testing.T, metricsEnabled bool) *fixture {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	s := &types.Settings{}
	s.Meta.ID = "test"
	s.Monitoring.MetricsEnabled = metricsEnabled

	f := &fixture{
		runner:   &fakeRunner{},
		store:    st,
		settings: &fakeSettings{current: s},
		ext:      &fakeExtractor{},
		mailbox:  &fakeMailbox{session: &fakeSession{}},
	}
	f.router = NewRouter(Deps{
		Runner:    f.runner,
		Store:     st,
		Settings:  f.settings,
		Extractor: f.ext,
		Mailbox:   f.mailbox,
	}, testLogger())
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.Engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	if w := f.do(http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics with metrics disabled = %d, want 404", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, true)
	if w := f.do(http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", w.Code)
	}
}

func TestJobEndpoints(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/api/jobs", `{"type":"rule-preloaded"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("POST /api/jobs = %d: %s", w.Code, w.Body)
	}
	var job models.Job
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatal(err)
	}
	if job.Type != models.JobRulePreloaded {
		t.Errorf("job type = %s", job.Type)
	}

	if w := f.do(http.MethodPost, "/api/jobs", ""); w.Code != http.StatusConflict {
		t.Errorf("second POST /api/jobs = %d, want 409", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/jobs/current", ""); w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("job-1")) {
		t.Errorf("GET /api/jobs/current = %d %s", w.Code, w.Body)
	}
	if w := f.do(http.MethodGet, "/api/jobs/job-1", ""); w.Code != http.StatusOK {
		t.Errorf("GET /api/jobs/job-1 = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/jobs/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET /api/jobs/nope = %d, want 404", w.Code)
	}
	if w := f.do(http.MethodPost, "/api/jobs/stop", ""); w.Code != http.StatusAccepted || !f.runner.stopped {
		t.Errorf("POST /api/jobs/stop = %d, stopped = %v", w.Code, f.runner.stopped)
	}

	f.runner.busy = false
	if w := f.do(http.MethodPost, "/api/jobs", `{"type":"hourly"}`); w.Code != http.StatusBadRequest {
		t.Errorf("POST /api/jobs with unknown type = %d, want 400", w.Code)
	}
}

func TestRuleEndpoints(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/api/rules", `{"type":"blacklist","pattern":" Spam.COM "}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /api/rules = %d: %s", w.Code, w.Body)
	}
	var rule models.Rule
	if err := json.Unmarshal(w.Body.Bytes(), &rule); err != nil {
		t.Fatal(err)
	}
	if rule.Pattern != "spam.com" || !rule.Active {
		t.Errorf("rule = %+v, want lowercased active rule", rule)
	}

	if w := f.do(http.MethodPost, "/api/rules", `{"type":"greylist","pattern":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("POST invalid rule = %d, want 400", w.Code)
	}

	w = f.do(http.MethodGet, "/api/rules", "")
	var rules []models.Rule
	if err := json.Unmarshal(w.Body.Bytes(), &rules); err != nil || len(rules) != 1 {
		t.Fatalf("GET /api/rules = %s (%v)", w.Body, err)
	}

	if w := f.do(http.MethodDelete, "/api/rules/"+rule.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("DELETE rule = %d", w.Code)
	}
	if w := f.do(http.MethodDelete, "/api/rules/"+rule.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("second DELETE rule = %d, want 404", w.Code)
	}
}

func TestEmailEndpoints(t *testing.T) {
	f := newFixture(t, false)

	e := &models.Email{Subject: "PO 77", SenderEmail: "buyer@example.com", Status: models.StatusProcessed}
	if err := f.store.AddEmail(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	w := f.do(http.MethodGet, "/api/emails?status=processed&limit=5", "")
	var emails []models.Email
	if err := json.Unmarshal(w.Body.Bytes(), &emails); err != nil || len(emails) != 1 {
		t.Fatalf("GET /api/emails = %s (%v)", w.Body, err)
	}
	if w := f.do(http.MethodGet, "/api/emails?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", w.Code)
	}

	if w := f.do(http.MethodPost, "/api/emails/"+e.ID+"/extract", `{"save_files":false}`); w.Code != http.StatusOK {
		t.Fatalf("extract = %d: %s", w.Code, w.Body)
	}
	got, err := f.store.GetEmail(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Parsed == nil || got.Parsed.Type != models.TypeOrder || got.Parsed.Data == nil {
		t.Errorf("parsed = %+v, want stored extraction", got.Parsed)
	}

	if w := f.do(http.MethodPost, "/api/emails/missing/extract", ""); w.Code != http.StatusNotFound {
		t.Errorf("extract missing = %d, want 404", w.Code)
	}
	if w := f.do(http.MethodDelete, "/api/emails/"+e.ID, ""); w.Code != http.StatusNoContent {
		t.Errorf("DELETE email = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/emails/"+e.ID, ""); w.Code != http.StatusNotFound {
		t.Errorf("GET deleted email = %d, want 404", w.Code)
	}
}

func TestExtractRejectsBlacklistedSender(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	flagged := &models.Email{Subject: "spam", SenderEmail: "promo@spam.com", Classification: models.ClassBlacklist}
	if err := f.store.AddEmail(ctx, flagged); err != nil {
		t.Fatal(err)
	}

	if w := f.do(http.MethodPost, "/api/emails/"+flagged.ID+"/extract", ""); w.Code != http.StatusConflict {
		t.Errorf("extract blacklisted = %d, want 409", w.Code)
	}
	if f.ext.calls != 0 {
		t.Errorf("extractor called %d times for blacklisted mail", f.ext.calls)
	}
	if _, err := f.store.GetEmail(ctx, flagged.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("blacklisted email kept: %v", err)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	f := newFixture(t, false)

	if w := f.do(http.MethodGet, "/api/settings", ""); w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"id":"test"`)) {
		t.Errorf("GET /api/settings = %d %s", w.Code, w.Body)
	}

	w := f.do(http.MethodPut, "/api/settings", `{"meta":{"id":"next"},"protocol":"pop3"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT /api/settings = %d: %s", w.Code, w.Body)
	}
	if f.settings.replaced == nil || f.settings.replaced.Protocol != "pop3" || f.settings.replaced.Monitoring.MetricsEnabled {
		t.Errorf("replaced = %+v, want full replacement", f.settings.replaced)
	}

	f.settings.err = fmt.Errorf("%w: meta validation failed", config.ErrInvalidSettings)
	if w := f.do(http.MethodPut, "/api/settings", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("PUT invalid settings = %d, want 400", w.Code)
	}
	if w := f.do(http.MethodPut, "/api/settings", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("PUT malformed body = %d, want 400", w.Code)
	}
}

func TestPreviewUnseen(t *testing.T) {
	f := newFixture(t, false)
	f.mailbox.session.envelopes = []email.Envelope{
		{UID: 4, Subject: "PO 1", SenderEmail: "buyer@good.com"},
		{UID: 9, Subject: "Win a prize", SenderEmail: "promo@spam.com"},
		{UID: 7, Subject: "Hello", SenderEmail: "someone@else.com"},
	}
	ctx := context.Background()
	for _, r := range []models.Rule{
		{Type: models.RuleWhitelist, Pattern: "good.com", Active: true},
		{Type: models.RuleBlacklist, Pattern: "spam.com", Active: true},
	} {
		if err := f.store.AddRule(ctx, &r); err != nil {
			t.Fatal(err)
		}
	}

	w := f.do(http.MethodGet, "/api/mailbox/unseen?limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/mailbox/unseen = %d: %s", w.Code, w.Body)
	}
	var got []unseenMessage
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want newest 2", len(got))
	}
	routes := map[uint32]rules.Destination{}
	for _, m := range got {
		routes[m.UID] = m.Route
	}
	if routes[9] != rules.RouteSkip || routes[7] != rules.RouteUnsorted {
		t.Errorf("routes = %v, want 9 skip and 7 unsorted", routes)
	}

	f.mailbox.err = &email.ConnectError{Server: "imap.example.com:993", Err: fmt.Errorf("connection refused")}
	if w := f.do(http.MethodGet, "/api/mailbox/unseen", ""); w.Code != http.StatusBadGateway {
		t.Errorf("preview with mailbox down = %d, want 502", w.Code)
	}
}

func TestListErrors(t *testing.T) {
	f := newFixture(t, false)
	f.settings.current.ErrorLogging.Enabled = true
	f.settings.current.ErrorLogging.StoragePath = t.TempDir()

	journal, err := errorlog.NewManager(f.settings.current, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	journal.LogError(errorlog.EmailError{JobID: "job-1", UID: 3, Stage: errorlog.StageParse, ErrorMsg: "bad mime", ErrorTime: time.Now()})
	journal.LogError(errorlog.EmailError{JobID: "job-2", UID: 4, Stage: errorlog.StagePersist, ErrorMsg: "disk full", ErrorTime: time.Now()})
	journal.Close()

	w := f.do(http.MethodGet, "/api/errors?job_id=job-1", "")
	var entries []errorlog.EmailError
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("GET /api/errors = %d %s", w.Code, w.Body)
	}
	if len(entries) != 1 || entries[0].UID != 3 {
		t.Errorf("entries = %+v, want the job-1 entry", entries)
	}
}
