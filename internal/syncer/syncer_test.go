package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailpro-dashboard/internal/mailpro"
	"github.com/ignite/mailpro-dashboard/internal/pkg/distlock"
	"github.com/ignite/mailpro-dashboard/internal/store"
)

// fakeSource serves canned upstream data.
type fakeSource struct {
	campaigns    []mailpro.Campaign
	campaignsErr error
	stats        map[string]*mailpro.CampaignStats
	lists        []mailpro.EmailList
	unsubs       map[string][]mailpro.Subscriber
	suppressed   []mailpro.SuppressedEmail

	inFlight   int32
	peak       int32
	statsCalls int32
	delay      time.Duration
	mu         sync.Mutex
	listCalls  []string
}

func (f *fakeSource) ListCampaigns(ctx context.Context) ([]mailpro.Campaign, error) {
	return f.campaigns, f.campaignsErr
}

func (f *fakeSource) GetCampaignStats(ctx context.Context, uid string) *mailpro.CampaignStats {
	atomic.AddInt32(&f.statsCalls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.stats[uid]
}

func (f *fakeSource) GetLists(ctx context.Context) []mailpro.EmailList {
	return f.lists
}

func (f *fakeSource) GetUnsubscribedSubscribers(ctx context.Context, listUID string) []mailpro.Subscriber {
	f.mu.Lock()
	f.listCalls = append(f.listCalls, listUID)
	f.mu.Unlock()
	return f.unsubs[listUID]
}

func (f *fakeSource) GetSuppressionEmails(ctx context.Context, uid string) []mailpro.SuppressedEmail {
	return f.suppressed
}

func sampleSource() *fakeSource {
	return &fakeSource{
		campaigns: []mailpro.Campaign{
			{UID: "c1", Name: "June Promo", Subject: "Deals", Status: mailpro.StatusSent, SendAt: "2024-06-15 09:00:00"},
			{UID: "c2", Name: "Newsletter", Subject: "News", Status: mailpro.StatusProcessing, SendAt: "2024-06-14 10:00:00"},
			{UID: "c3", Name: "Draft", Status: mailpro.StatusDraft},
		},
		stats: map[string]*mailpro.CampaignStats{
			"c1": {CampaignUID: "c1", ProcessedCount: 100, DeliverySuccessCount: 90, UniqueOpensCount: 30, UniqueClicksCount: 3},
			"c2": {CampaignUID: "c2", ProcessedCount: 50, DeliverySuccessCount: 50, UniqueOpensCount: 10},
		},
		lists: []mailpro.EmailList{{UID: "l1", Name: "Main"}, {UID: "l2", Name: "VIP"}},
		unsubs: map[string][]mailpro.Subscriber{
			"l1": {
				{UID: "s1", Status: mailpro.SubscriberUnsubscribed, ListUID: "l1", Fields: map[string]string{"EMAIL": "a@example.com"}},
				{UID: "s2", Status: mailpro.SubscriberUnsubscribed, ListUID: "l1"},
			},
			"l2": {
				{UID: "s1", Status: mailpro.SubscriberUnsubscribed, ListUID: "l2", Fields: map[string]string{"EMAIL": "a@example.com"}},
			},
		},
	}
}

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestSyncer(src Source, st store.Store, opts Options) *Syncer {
	s := New(src, st, nil, opts)
	s.SetClock(func() time.Time { return fixedNow })
	return s
}

func TestSyncAll(t *testing.T) {
	src := sampleSource()
	mem := store.NewMemoryStore(0)
	ctx := context.Background()

	res, err := newTestSyncer(src, mem, Options{}).SyncAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Campaigns)
	assert.Equal(t, 2, res.Stats)
	assert.Equal(t, 2, res.Lists)
	assert.Equal(t, 2, res.Unsubscribers)
	assert.Equal(t, 2, res.Reports)
	assert.Empty(t, res.Failed())
	assert.Equal(t, "Synced 3 campaigns, 2 stats, 2 lists, 2 unsubscribers", res.Message())
	assert.NotEmpty(t, res.RunID)

	campaigns, err := mem.List(ctx, store.RawCampaigns)
	require.NoError(t, err)
	require.Len(t, campaigns, 3)
	assert.Equal(t, "c1", campaigns[0].ID)
	assert.Equal(t, "2024-06-15T12:00:00Z", campaigns[0].Fields[store.FieldLastUpdated])
	assert.Equal(t, fixedNow.UnixMilli(), campaigns[0].Fields[store.FieldSyncedAt])

	stat, err := mem.Get(ctx, store.RawStats, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", stat.Fields["campaign_uid"])

	sub, err := mem.Get(ctx, store.RawUnsubscribers, "s1")
	require.NoError(t, err)
	assert.Equal(t, "l2", sub.Fields["list_uid"], "last list wins for duplicate subscribers")

	report, err := mem.Get(ctx, store.DailyReports, "2024-06-15_june-promo")
	require.NoError(t, err)
	assert.Equal(t, 33.33, report.Fields["open_rate"])
	assert.Equal(t, "06/15/2024", report.Fields["date"])
}

func TestSyncAll_UsesRunIDFromContext(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-7")
	res, err := newTestSyncer(sampleSource(), store.NewMemoryStore(0), Options{}).SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-7", res.RunID)
	assert.Equal(t, "run-7", res.Details()["runId"])
}

func TestSyncAll_Idempotent(t *testing.T) {
	src := sampleSource()
	ctx := context.Background()

	once := store.NewMemoryStore(0)
	_, err := newTestSyncer(src, once, Options{}).SyncAll(ctx)
	require.NoError(t, err)

	twice := store.NewMemoryStore(0)
	s := newTestSyncer(src, twice, Options{})
	_, err = s.SyncAll(ctx)
	require.NoError(t, err)
	_, err = s.SyncAll(ctx)
	require.NoError(t, err)

	for _, coll := range []string{store.RawCampaigns, store.RawStats, store.RawLists, store.RawUnsubscribers, store.DailyReports} {
		a, err := once.List(ctx, coll)
		require.NoError(t, err)
		b, err := twice.List(ctx, coll)
		require.NoError(t, err)
		assert.Equal(t, a, b, coll)
	}
}

func TestSyncAll_NoCampaignsShortCircuits(t *testing.T) {
	src := &fakeSource{}
	mem := store.NewMemoryStore(0)

	res, err := newTestSyncer(src, mem, Options{}).SyncAll(context.Background())
	require.NoError(t, err)
	assert.True(t, res.NoCampaigns)
	assert.Equal(t, "No campaigns found; nothing to sync", res.Message())
	assert.Empty(t, mem.Commits())
	assert.Zero(t, src.statsCalls)
}

func TestSyncAll_CampaignFetchFailure(t *testing.T) {
	src := &fakeSource{campaignsErr: errors.New("MailPro API error (status 503): down")}
	mem := store.NewMemoryStore(0)

	_, err := newTestSyncer(src, mem, Options{}).SyncAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Empty(t, mem.Commits())
}

func TestSyncAll_WriteFailureIsPerCollection(t *testing.T) {
	src := sampleSource()
	mem := store.NewMemoryStore(0)
	mem.FailCollection(store.RawLists, errors.New("throughput exceeded"))

	res, err := newTestSyncer(src, mem, Options{}).SyncAll(context.Background())
	require.NoError(t, err)

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, store.RawLists, failed[0].Collection)
	assert.Equal(t, 2, failed[0].Count)
	assert.EqualError(t, failed[0].Err, "throughput exceeded")
	assert.Contains(t, res.Message(), "(write failed: rawLists)")
	assert.Equal(t, map[string]any{store.RawLists: "throughput exceeded"}, res.Details()["writeErrors"])

	unsubs, err := mem.List(context.Background(), store.RawUnsubscribers)
	require.NoError(t, err)
	assert.Len(t, unsubs, 2, "other collections are still written")
}

func TestSyncAll_DropsMissingStats(t *testing.T) {
	src := sampleSource()
	delete(src.stats, "c2")

	res, err := newTestSyncer(src, store.NewMemoryStore(0), Options{}).SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats)
	assert.Equal(t, 1, res.Reports)
}

func TestSyncAll_BoundedFanOut(t *testing.T) {
	src := &fakeSource{stats: map[string]*mailpro.CampaignStats{}, delay: 5 * time.Millisecond}
	for i := 0; i < 20; i++ {
		uid := string(rune('a' + i))
		src.campaigns = append(src.campaigns, mailpro.Campaign{UID: uid, Status: mailpro.StatusSent})
		src.stats[uid] = &mailpro.CampaignStats{CampaignUID: uid}
	}

	res, err := newTestSyncer(src, store.NewMemoryStore(0), Options{MaxConcurrency: 3}).SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, res.Stats)
	assert.LessOrEqual(t, atomic.LoadInt32(&src.peak), int32(3))
}

func TestSyncAll_Suppressions(t *testing.T) {
	src := sampleSource()
	src.suppressed = []mailpro.SuppressedEmail{{UID: "e1", Email: "x@example.com"}, {Email: "Y@Example.com"}}
	mem := store.NewMemoryStore(0)

	res, err := newTestSyncer(src, mem, Options{SuppressionListUID: "sup1"}).SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Suppressions)

	docs, err := mem.List(context.Background(), store.RawSuppressions)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "e1", docs[0].ID)
	assert.Equal(t, "y@example.com", docs[1].ID)
}

func TestSyncAll_SkipsWhenLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locks := distlock.NewFactory(client)

	held := locks(syncLockKey, time.Minute)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	src := sampleSource()
	mem := store.NewMemoryStore(0)
	s := New(src, mem, locks, Options{})

	res, err := s.SyncAll(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, "Sync already running; skipped", res.Message())
	assert.Empty(t, mem.Commits())

	require.NoError(t, held.Release(context.Background()))
	res, err = s.SyncAll(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.NotEmpty(t, mem.Commits())
}
