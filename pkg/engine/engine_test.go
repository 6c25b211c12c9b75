package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-crawler/internal/testutil"
	"github.com/Sternrassler/catalog-crawler/pkg/client"
	"github.com/Sternrassler/catalog-crawler/pkg/product"
	"github.com/Sternrassler/catalog-crawler/pkg/source"
)

type report struct {
	batch  int
	id     string
	reason string
}

// recordingReporter collects reports and optionally fails.
type recordingReporter struct {
	mu      sync.Mutex
	reports []report
	err     error
	panic   bool
}

func (r *recordingReporter) Report(batch int, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report{batch, id, reason})
	if r.panic {
		panic("reporter exploded")
	}
	return r.err
}

func (r *recordingReporter) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.reports))
	for _, rep := range r.reports {
		ids = append(ids, rep.id)
	}
	sort.Strings(ids)
	return ids
}

// fakeFetcher returns canned outcomes without network I/O.
type fakeFetcher struct {
	outcomes map[string]client.OutcomeKind
}

func (f fakeFetcher) Fetch(ctx context.Context, id string) client.Outcome {
	kind, ok := f.outcomes[id]
	if !ok {
		kind = client.OutcomeSuccess
	}
	out := client.Outcome{ID: id, Kind: kind}
	switch kind {
	case client.OutcomeSuccess:
		out.Record = product.Record{ID: product.ID(id), Name: "Product " + id}
	case client.OutcomeFailed:
		out.Err = fmt.Errorf("%w after 3 attempts: boom", client.ErrRetryExhausted)
	}
	return out
}

func newTestClient(t *testing.T, api *testutil.MockAPI, maxAttempts int) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig(api.URLTemplate())
	cfg.Timeout = 2 * time.Second
	cfg.Retry.MaxAttempts = maxAttempts
	cfg.Retry.BaseBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = 5 * time.Millisecond
	cfg.Retry.Jitter = 0

	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

func recordIDs(records []product.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID.String())
	}
	sort.Strings(ids)
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEngine_OutcomeAggregation(t *testing.T) {
	reporter := &recordingReporter{}
	fetcher := fakeFetcher{outcomes: map[string]client.OutcomeKind{
		"2": client.OutcomeNotFound,
		"3": client.OutcomeClientRejected,
		"4": client.OutcomeFailed,
	}}

	eng := New(fetcher, reporter, Config{Concurrency: 2})
	res, err := eng.Run(context.Background(), source.Batch{Index: 7, IDs: []string{"1", "2", "3", "4", "5"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Batch != 7 || res.Total != 5 {
		t.Errorf("Batch/Total = %d/%d, want 7/5", res.Batch, res.Total)
	}
	if res.Succeeded != 2 || res.NotFound != 1 || res.Rejected != 1 || res.Failed != 1 {
		t.Errorf("counts = %+v", res)
	}
	if got := recordIDs(res.Records); !equalStrings(got, []string{"1", "5"}) {
		t.Errorf("record ids = %v, want [1 5]", got)
	}

	// NotFound is not reported by default
	if got := reporter.ids(); !equalStrings(got, []string{"3", "4"}) {
		t.Errorf("reported ids = %v, want [3 4]", got)
	}
	for _, rep := range reporter.reports {
		if rep.batch != 7 {
			t.Errorf("report batch = %d, want 7", rep.batch)
		}
		if rep.reason == "" {
			t.Errorf("report for %s has empty reason", rep.id)
		}
	}
}

func TestEngine_ReportNotFound(t *testing.T) {
	reporter := &recordingReporter{}
	fetcher := fakeFetcher{outcomes: map[string]client.OutcomeKind{"2": client.OutcomeNotFound}}

	eng := New(fetcher, reporter, Config{Concurrency: 2, ReportNotFound: true})
	if _, err := eng.Run(context.Background(), source.Batch{Index: 1, IDs: []string{"1", "2"}}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := reporter.ids(); !equalStrings(got, []string{"2"}) {
		t.Errorf("reported ids = %v, want [2]", got)
	}
}

func TestEngine_ReporterFailureIsSwallowed(t *testing.T) {
	tests := []struct {
		name     string
		reporter *recordingReporter
	}{
		{"error", &recordingReporter{err: errors.New("disk full")}},
		{"panic", &recordingReporter{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := fakeFetcher{outcomes: map[string]client.OutcomeKind{
				"1": client.OutcomeFailed,
				"2": client.OutcomeClientRejected,
			}}

			eng := New(fetcher, tt.reporter, Config{Concurrency: 1})
			res, err := eng.Run(context.Background(), source.Batch{Index: 1, IDs: []string{"1", "2", "3"}})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Succeeded != 1 {
				t.Errorf("Succeeded = %d, want 1", res.Succeeded)
			}
			if len(tt.reporter.ids()) != 2 {
				t.Errorf("reporter called %d times, want 2", len(tt.reporter.ids()))
			}
		})
	}
}

func TestEngine_NilReporter(t *testing.T) {
	fetcher := fakeFetcher{outcomes: map[string]client.OutcomeKind{"1": client.OutcomeFailed}}
	eng := New(fetcher, nil, Config{})

	res, err := eng.Run(context.Background(), source.Batch{Index: 1, IDs: []string{"1"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
}

func TestEngine_EmptyBatch(t *testing.T) {
	eng := New(fakeFetcher{}, nil, DefaultConfig())

	res, err := eng.Run(context.Background(), source.Batch{Index: 1})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Total != 0 || len(res.Records) != 0 {
		t.Errorf("empty batch result = %+v", res)
	}
	if res.Records == nil {
		t.Error("Records should be non-nil")
	}
}

func TestEngine_ConcurrencyBound(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetDelay(20 * time.Millisecond)

	ids := make([]string, 40)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", 1000+i)
	}

	eng := New(newTestClient(t, api, 3), nil, Config{Concurrency: 4})
	res, err := eng.Run(context.Background(), source.Batch{Index: 1, IDs: ids})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Succeeded != len(ids) {
		t.Errorf("Succeeded = %d, want %d", res.Succeeded, len(ids))
	}
	if peak := api.PeakInFlight(); peak > 4 {
		t.Errorf("server saw %d concurrent requests, want <= 4", peak)
	}
	if peak := api.PeakInFlight(); peak < 2 {
		t.Errorf("server saw %d concurrent requests, expected parallelism", peak)
	}
}

func TestEngine_RetryThenSuccess(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()

	const maxAttempts = 4
	script := make([]testutil.MockResponse, 0, maxAttempts)
	for i := 0; i < maxAttempts-1; i++ {
		script = append(script, testutil.NewServerErrorResponse())
	}
	script = append(script, testutil.NewProductResponse("1001"))
	api.SetResponses("1001", script...)

	reporter := &recordingReporter{}
	eng := New(newTestClient(t, api, maxAttempts), reporter, Config{Concurrency: 2})

	res, err := eng.Run(context.Background(), source.Batch{Index: 1, IDs: []string{"1001"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Succeeded != 1 {
		t.Fatalf("Succeeded = %d, want 1", res.Succeeded)
	}
	if got := res.Records[0].ID.String(); got != "1001" {
		t.Errorf("record id = %q, want 1001", got)
	}
	if got := api.RequestsFor("1001"); got != maxAttempts {
		t.Errorf("requests = %d, want %d", got, maxAttempts)
	}
	if len(reporter.ids()) != 0 {
		t.Errorf("unexpected reports: %v", reporter.ids())
	}
}

func TestEngine_NotFoundSingleRequest(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetResponses("1002", testutil.NewNotFoundResponse())

	eng := New(newTestClient(t, api, 3), nil, Config{Concurrency: 2})
	res, err := eng.Run(context.Background(), source.Batch{Index: 1, IDs: []string{"1001", "1002"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.NotFound != 1 || res.Succeeded != 1 {
		t.Errorf("NotFound/Succeeded = %d/%d, want 1/1", res.NotFound, res.Succeeded)
	}
	if got := api.RequestsFor("1002"); got != 1 {
		t.Errorf("requests for 404 id = %d, want 1", got)
	}
}

func TestEngine_ExhaustedRetriesReported(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetResponses("9", testutil.MockResponse{StatusCode: http.StatusBadGateway})

	reporter := &recordingReporter{}
	eng := New(newTestClient(t, api, 3), reporter, Config{Concurrency: 1})

	res, err := eng.Run(context.Background(), source.Batch{Index: 2, IDs: []string{"9"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if got := api.RequestsFor("9"); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
	if got := reporter.ids(); !equalStrings(got, []string{"9"}) {
		t.Errorf("reported ids = %v, want [9]", got)
	}
}

func TestEngine_Cancellation(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetDelay(time.Second)

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", i+1)
	}

	reporter := &recordingReporter{}
	eng := New(newTestClient(t, api, 3), reporter, Config{Concurrency: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := eng.Run(ctx, source.Batch{Index: 1, IDs: ids})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 900*time.Millisecond {
		t.Errorf("Run() took %v after cancellation", elapsed)
	}
	if res.Cancelled != len(ids) {
		t.Errorf("Cancelled = %d, want %d", res.Cancelled, len(ids))
	}
	if len(reporter.ids()) != 0 {
		t.Errorf("cancelled fetches should not be reported, got %v", reporter.ids())
	}
}
