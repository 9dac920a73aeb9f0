package filter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

func strPtr(s string) *string { return &s }
func i64Ptr(i int64) *int64   { return &i }
func intPtr(i int) *int       { return &i }

type fakeInfluencers struct {
	byImport map[string][]*domain.InfluencerContext
}

func (f *fakeInfluencers) ListContextsByImport(_ context.Context, importID string, _ int) ([]*domain.InfluencerContext, error) {
	out := append([]*domain.InfluencerContext(nil), f.byImport[importID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeInfluencers) GetContext(_ context.Context, id string, _ int) (*domain.InfluencerContext, error) {
	for _, list := range f.byImport {
		for _, inf := range list {
			if inf.InfluencerID == id {
				return inf, nil
			}
		}
	}
	return nil, nil
}

type fakeCampaigns struct {
	campaigns map[string]*domain.Campaign
}

func (f *fakeCampaigns) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	return f.campaigns[id], nil
}

type fakeRuns struct {
	mu       sync.Mutex
	runs     map[string]*domain.AiFilterRun
	evals    map[string]*domain.Evaluation
	order    []string
	history  []domain.Counters
	failEval bool
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: map[string]*domain.AiFilterRun{}, evals: map[string]*domain.Evaluation{}}
}

func (f *fakeRuns) CreateRun(_ context.Context, run *domain.AiFilterRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeRuns) GetRun(_ context.Context, id string) (*domain.AiFilterRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRuns) UpdateRunCounters(_ context.Context, id string, c domain.Counters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[id].Counters = c
	f.history = append(f.history, c)
	return nil
}

func (f *fakeRuns) FinishRun(_ context.Context, id string, status domain.RunStatus, msg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[id].Status = status
	f.runs[id].ErrorMessage = msg
	return nil
}

func (f *fakeRuns) UpsertEvaluation(_ context.Context, e *domain.Evaluation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEval {
		return apperrors.NewServiceError("db down", "postgres", "upsert", nil)
	}
	if _, ok := f.evals[e.ID]; !ok {
		f.order = append(f.order, e.ID)
	}
	cp := *e
	f.evals[e.ID] = &cp
	return nil
}

func (f *fakeRuns) ListEvaluations(_ context.Context, runID string) ([]*domain.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Evaluation
	for _, id := range f.order {
		if e, ok := f.evals[id]; ok && e.RunID == runID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRuns) GetEvaluations(_ context.Context, runID string, ids []string) ([]*domain.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Evaluation
	for _, id := range ids {
		if e, ok := f.evals[id]; ok && e.RunID == runID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRuns) DiscardEvaluations(_ context.Context, runID string, ids []string, reason string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range ids {
		if e, ok := f.evals[id]; ok && e.RunID == runID {
			e.Bucket = domain.BucketRejected
			e.ReviewStatus = domain.ReviewDiscarded
			e.Score = nil
			e.Reasons = reason
			e.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (f *fakeRuns) MarkBucketSaved(_ context.Context, runID string, b domain.Bucket) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.evals {
		if e.RunID == runID && e.Bucket == b {
			e.ReviewStatus = domain.ReviewSaved
			n++
		}
	}
	return n, nil
}

func (f *fakeRuns) DeleteBucket(_ context.Context, runID string, b domain.Bucket) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, e := range f.evals {
		if e.RunID == runID && e.Bucket == b {
			delete(f.evals, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeRuns) ListSaved(_ context.Context) ([]*domain.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Evaluation
	for _, id := range f.order {
		if e, ok := f.evals[id]; ok && e.ReviewStatus == domain.ReviewSaved {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRuns) SetReviewStatus(_ context.Context, id string, s domain.ReviewStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.evals[id]
	if !ok {
		return apperrors.NewNotFoundError("evaluation", id)
	}
	e.ReviewStatus = s
	return nil
}

func (f *fakeRuns) evalsByUsername(runID string) map[string]*domain.Evaluation {
	list, _ := f.ListEvaluations(context.Background(), runID)
	out := make(map[string]*domain.Evaluation, len(list))
	for _, e := range list {
		out[e.Username] = e
	}
	return out
}

// fakeScorer answers by username; unknown usernames fail.
type fakeScorer struct {
	mu     sync.Mutex
	scores map[string]int
	errs   map[string]error
	calls  []string
}

func (f *fakeScorer) Score(_ context.Context, inf *domain.InfluencerContext, _ *domain.CampaignContext) (*ScoreResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inf.Username)
	if err, ok := f.errs[inf.Username]; ok {
		return nil, err
	}
	if s, ok := f.scores[inf.Username]; ok {
		return &ScoreResult{Score: s, Reasons: "fit " + inf.Username}, nil
	}
	return nil, apperrors.NewScoringError("model returned invalid JSON: nope", inf.Username, nil)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
}
