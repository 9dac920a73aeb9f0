package imports

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/service/media"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

func strPtr(s string) *string { return &s }

type fakeStore struct {
	mu       sync.Mutex
	imports  map[string]*domain.Import
	statuses []domain.ImportStatus
	progress [][2]int
	deleted  []string
	drafts   []string
	cutoff   time.Time
	// afterGet runs once GetImport has copied the row
	afterGet func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{imports: map[string]*domain.Import{}}
}

func (f *fakeStore) CreateImport(_ context.Context, imp *domain.Import) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imports[imp.ID] = imp
	return nil
}

func (f *fakeStore) GetImport(_ context.Context, id string) (*domain.Import, error) {
	f.mu.Lock()
	imp, ok := f.imports[id]
	var cp domain.Import
	if ok {
		cp = *imp
	}
	f.mu.Unlock()
	if !ok {
		return nil, nil
	}
	if f.afterGet != nil {
		f.afterGet()
	}
	return &cp, nil
}

func (f *fakeStore) TransitionImportStatus(_ context.Context, id string, from, to domain.ImportStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	imp, ok := f.imports[id]
	if !ok || imp.Status != from {
		return false, nil
	}
	f.statuses = append(f.statuses, to)
	imp.Status = to
	imp.ErrorMessage = nil
	return true, nil
}

func (f *fakeStore) UpdateImportStatus(_ context.Context, id string, status domain.ImportStatus, msg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	if imp, ok := f.imports[id]; ok {
		imp.Status = status
		imp.ErrorMessage = msg
	}
	return nil
}

func (f *fakeStore) UpdateSaveProgress(_ context.Context, id string, done, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, [2]int{done, total})
	if imp, ok := f.imports[id]; ok {
		imp.SaveProgress, imp.SaveTotal = done, total
	}
	return nil
}

func (f *fakeStore) ListDraftIDsBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	f.cutoff = cutoff
	return f.drafts, nil
}

func (f *fakeStore) DeleteWithData(_ context.Context, ids []string) (int, error) {
	f.deleted = append(f.deleted, ids...)
	return 2 * len(ids), nil
}

type fakeInfluencers struct {
	mu         sync.Mutex
	counts     map[string]int
	byImport   map[string][]*domain.Influencer
	listErr    error
	avatars    map[string]string
	thumbnails map[string]string
}

func (f *fakeInfluencers) VideoCounts(_ context.Context, usernames []string) (map[string]int, error) {
	out := map[string]int{}
	for _, u := range usernames {
		if c, ok := f.counts[u]; ok {
			out[u] = c
		}
	}
	return out, nil
}

func (f *fakeInfluencers) ListByImport(_ context.Context, importID string) ([]*domain.Influencer, error) {
	return f.byImport[importID], f.listErr
}

func (f *fakeInfluencers) UpdateAvatarURL(_ context.Context, id, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.avatars[id] = url
	return nil
}

func (f *fakeInfluencers) UpdateThumbnailURL(_ context.Context, id, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.thumbnails[id] = url
	return nil
}

type fakeMedia struct {
	mu      sync.Mutex
	fail    map[string]bool
	stored  []string
	deletes []string
}

func (f *fakeMedia) Store(_ context.Context, sourceURL, importID string, kind media.Kind, username string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[sourceURL] {
		return "", stderrors.New("fetch failed")
	}
	f.stored = append(f.stored, sourceURL)
	return "gcs://bkt/imports/" + importID + "/" + string(kind) + "/" + username + "/" + sourceURL[strings.LastIndex(sourceURL, "/")+1:], nil
}

func (f *fakeMedia) DeleteImport(_ context.Context, importID string) (int, int, error) {
	f.deletes = append(f.deletes, importID)
	return 3, 1, nil
}

type fakeNotifier struct {
	sent []domain.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n domain.Notification) {
	f.sent = append(f.sent, n)
}

func TestParseUsernames(t *testing.T) {
	csvData := "\xef\xbb\xbfName,\"Username\",Followers\n" +
		"Anna,@Anna_Beauty,100\n" +
		"\n" +
		"Bob,\"bob.news\",5\n" +
		"Anna again,anna_beauty,100\n" +
		"No handle,,1\n" +
		"Carl,carl,\n"

	parsed, err := ParseUsernames([]byte(csvData), -1)
	require.NoError(t, err)
	assert.Equal(t, 4, parsed.RowCount)
	assert.Equal(t, []string{"anna_beauty", "bob.news", "carl"}, parsed.Unique)
	assert.Equal(t, parsed.Unique, parsed.Usernames)

	limited, err := ParseUsernames([]byte(csvData), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"anna_beauty", "bob.news"}, limited.Usernames)
	assert.Len(t, limited.Unique, 3)
}

func TestParseUsernames_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"header only":    "Username\n",
		"missing column": "Name,Handle\nAnna,anna\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseUsernames([]byte(data), -1)
			assert.True(t, errors.IsValidation(err), "got %v", err)
		})
	}
}

func TestBuildPlan(t *testing.T) {
	plan := BuildPlan(
		[]string{"new_one", "thin", "full", "over"},
		map[string]int{"thin": 5, "full": 20, "over": 40},
		20,
	)
	assert.Equal(t, []string{"new_one"}, plan.ToScrape)
	assert.Equal(t, []string{"thin"}, plan.ToRescrape)
	assert.Equal(t, []string{"full", "over"}, plan.Skipped)

	empty := BuildPlan(nil, nil, 20)
	assert.NotNil(t, empty.ToScrape)
	assert.Empty(t, empty.Skipped)
}

func TestCreateImport(t *testing.T) {
	store := newFakeStore()
	infs := &fakeInfluencers{counts: map[string]int{"bob": 30}}
	svc := NewService(store, infs, nil, nil, zap.NewNop())

	intake, err := svc.CreateImport(context.Background(), CreateRequest{
		Filename:      "creators.CSV",
		Data:          []byte("username\nanna\nbob\nanna\n"),
		UsernameLimit: 0,
		VideoCount:    0,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusPending, intake.Import.Status)
	assert.Equal(t, 3, intake.Import.RowCount)
	assert.Equal(t, -1, intake.Import.UsernameLimit)
	assert.Equal(t, 20, intake.Import.VideoCount)
	assert.Equal(t, 2, intake.UniqueCount)
	assert.Equal(t, 2, intake.FinalCount)
	assert.Equal(t, []string{"anna"}, intake.Plan.ToScrape)
	assert.Equal(t, []string{"bob"}, intake.Plan.Skipped)
	assert.Contains(t, store.imports, intake.Import.ID)

	_, err = svc.CreateImport(context.Background(), CreateRequest{Filename: "creators.xlsx", Data: []byte("username\na\n")})
	assert.True(t, errors.IsValidation(err))
}

func saveFixture() (*fakeStore, *fakeInfluencers, *fakeMedia, *fakeNotifier, *Service) {
	store := newFakeStore()
	store.imports["imp-1"] = &domain.Import{ID: "imp-1", SourceFilename: "a.csv", Status: domain.ImportStatusDraft}

	infs := &fakeInfluencers{
		avatars:    map[string]string{},
		thumbnails: map[string]string{},
		byImport: map[string][]*domain.Influencer{
			"imp-1": {
				{
					ID:        "inf-1",
					Username:  "anna",
					AvatarURL: strPtr("https://cdn/avatar-anna.jpg"),
					Videos: []*domain.Video{
						{ID: "vid-1", ThumbnailURL: strPtr("https://cdn/t1.jpg")},
						{ID: "vid-2", ThumbnailURL: strPtr("gcs://bkt/already.jpg")},
						{ID: "vid-3", ThumbnailURL: strPtr("https://cdn/broken.jpg")},
					},
				},
				{ID: "inf-2", Username: "bob"},
			},
		},
	}
	med := &fakeMedia{fail: map[string]bool{"https://cdn/broken.jpg": true}}
	notifier := &fakeNotifier{}
	return store, infs, med, notifier, NewService(store, infs, med, notifier, zap.NewNop())
}

func TestSaveImport(t *testing.T) {
	store, infs, med, notifier, svc := saveFixture()

	result, err := svc.SaveImport(context.Background(), "imp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Cached)
	assert.Equal(t, 1, result.Failed)

	assert.Equal(t, []domain.ImportStatus{domain.ImportStatusProcessing, domain.ImportStatusCompleted}, store.statuses)
	assert.Equal(t, [2]int{0, 3}, store.progress[0])
	assert.Equal(t, [2]int{3, 3}, store.progress[len(store.progress)-1])

	assert.Equal(t, "gcs://bkt/imports/imp-1/avatars/anna/avatar-anna.jpg", infs.avatars["inf-1"])
	assert.Equal(t, "gcs://bkt/imports/imp-1/thumbnails/anna/t1.jpg", infs.thumbnails["vid-1"])
	assert.NotContains(t, infs.thumbnails, "vid-2")
	assert.NotContains(t, med.stored, "gcs://bkt/already.jpg")

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, domain.NotificationImportSave, notifier.sent[0].Type)
	assert.Equal(t, domain.NotificationSuccess, notifier.sent[0].Status)

	_, err = svc.SaveImport(context.Background(), "imp-1")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "Import is already COMPLETED")
}

func TestSaveImport_FailureReturnsToDraft(t *testing.T) {
	store, infs, _, notifier, svc := saveFixture()
	infs.listErr = stderrors.New("db gone")

	_, err := svc.SaveImport(context.Background(), "imp-1")
	require.Error(t, err)
	assert.Equal(t, []domain.ImportStatus{domain.ImportStatusProcessing, domain.ImportStatusDraft}, store.statuses)
	require.NotNil(t, store.imports["imp-1"].ErrorMessage)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, domain.NotificationError, notifier.sent[0].Status)
}

func TestSaveImport_LosingConcurrentSaveIsConflict(t *testing.T) {
	store, _, med, notifier, svc := saveFixture()
	store.afterGet = func() {
		store.mu.Lock()
		defer store.mu.Unlock()
		store.imports["imp-1"].Status = domain.ImportStatusProcessing
	}

	_, err := svc.SaveImport(context.Background(), "imp-1")
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Empty(t, store.statuses)
	assert.Empty(t, med.stored)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, domain.ImportStatusProcessing, store.imports["imp-1"].Status)
}

func TestSaveImport_WithoutMediaStorage(t *testing.T) {
	store, infs, _, _, _ := saveFixture()
	svc := NewService(store, infs, nil, nil, zap.NewNop())

	result, err := svc.SaveImport(context.Background(), "imp-1")
	require.NoError(t, err)
	assert.Zero(t, result.Cached)
	assert.Equal(t, domain.ImportStatusCompleted, store.imports["imp-1"].Status)
	assert.Empty(t, infs.avatars)
}

func TestDeleteAndCleanup(t *testing.T) {
	store, _, med, _, svc := saveFixture()
	ctx := context.Background()

	res, err := svc.DeleteWithData(ctx, "imp-1")
	require.NoError(t, err)
	assert.Equal(t, &DeleteResult{DeletedInfluencers: 2, DeletedMediaFiles: 3, FailedMediaDeletes: 1}, res)
	assert.Equal(t, []string{"imp-1"}, med.deletes)

	_, err = svc.DeleteWithData(ctx, "nope")
	assert.True(t, errors.IsNotFound(err))

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	store.drafts = []string{"d1", "d2"}
	store.deleted = nil

	n, err := svc.CleanupDrafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, now.Add(-24*time.Hour), store.cutoff)
	assert.Equal(t, []string{"d1", "d2"}, store.deleted)
	assert.Equal(t, []string{"imp-1", "d1", "d2"}, med.deletes)
}

func TestGetSaveStatus(t *testing.T) {
	_, _, _, _, svc := saveFixture()

	st, err := svc.GetSaveStatus(context.Background(), "imp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusDraft, st.Status)

	_, err = svc.GetSaveStatus(context.Background(), "")
	assert.True(t, errors.IsValidation(err))
}
