package mailpro

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMailPro serves a small upstream account for fetcher tests.
func fakeMailPro(t *testing.T) http.HandlerFunc {
	t.Helper()
	details := map[string]string{
		"c1": `{"campaign_uid":"c1","name":"Spring Sale","subject":"Save 20%","status":"sent","from_name":"Shop","send_at":"2024-06-15 09:00:00","date_added":"2024-06-10 08:00:00"}`,
		"c2": `{"campaign_uid":"c2","name":"Farm Fresh Weekly","subject":"Veg","status":"sent","from_name":"Shop"}`,
		"c3": `{"campaign_uid":"c3","name":"QA TEST blast","subject":"x","status":"draft","from_name":"Shop"}`,
		"c4": `{"campaign_uid":"c4","name":"Newsletter","subject":"News","status":"processing","from_name":"Shop","date_added":"2024-06-14 10:00:00"}`,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case path == "/campaigns":
			assert.Equal(t, "1", r.URL.Query().Get("page"))
			w.Write([]byte(`{"status":"success","data":{"count":"5","records":[
				{"campaign_uid":"c1","name":"Spring Sale"},
				{"campaign_uid":"c2","name":"Farm Fresh Weekly"},
				{"campaign_uid":"c3","name":"QA TEST blast"},
				{"campaign_uid":"c4","name":"Newsletter"},
				{"campaign_uid":"c5","name":"Broken"}]}}`))
		case strings.HasSuffix(path, "/stats"):
			uid := strings.TrimSuffix(strings.TrimPrefix(path, "/campaigns/"), "/stats")
			switch uid {
			case "c1":
				w.Write([]byte(`{"status":"success","data":{"processed_count":"100","delivery_success_count":"90","unique_opens_count":30,"unique_clicks_count":"9","unsubscribes_count":"1","bounces_count":"10"}}`))
			case "c4":
				w.Write([]byte(`[]`))
			default:
				w.WriteHeader(http.StatusInternalServerError)
			}
		case strings.HasPrefix(path, "/campaigns/"):
			uid := strings.TrimPrefix(path, "/campaigns/")
			body, ok := details[uid]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"status":"error","error":"not found"}`))
				return
			}
			fmt.Fprintf(w, `{"status":"success","data":{"record":%s}}`, body)
		case path == "/lists":
			w.Write([]byte(`{"status":"success","data":{"records":[
				{"general":{"list_uid":"l1","name":"Customers","display_name":"Customers"}},
				{"general":{"list_uid":"l2","name":"farm partners"}},
				{"general":{"list_uid":"l3","name":"Test Seeds"}}]}}`))
		case path == "/lists/l1/subscribers":
			assert.Equal(t, "unsubscribed", r.URL.Query().Get("status"))
			w.Write([]byte(`{"status":"success","data":{"records":[
				{"subscriber_uid":"s1","EMAIL":"a@example.com","status":"unsubscribed"},
				{"subscriber_uid":"s2","EMAIL":"b@example.com","status":"confirmed"}]}}`))
		case path == "/suppression-lists/sup1/emails":
			w.Write([]byte(`{"status":"success","data":{"records":[{"email_uid":"e1","email":"x@example.com"},{"email_uid":"e2","email":""}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestListCampaignsFiltersAndToleratesFailures(t *testing.T) {
	client := newTestClient(t, fakeMailPro(t))

	campaigns, err := client.ListCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, campaigns, 2)

	assert.Equal(t, "c1", campaigns[0].UID)
	assert.Equal(t, StatusSent, campaigns[0].Status)
	assert.Equal(t, "2024-06-15 09:00:00", campaigns[0].SendAt)
	assert.Equal(t, "c4", campaigns[1].UID)
}

func TestListCampaignsSummaryFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Invalid API key"}`))
	})

	_, err := client.ListCampaigns(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")

	assert.Empty(t, client.GetCampaigns(context.Background()))
}

func TestListCampaignsBoundedFanOut(t *testing.T) {
	var inFlight, peak int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/campaigns" {
			var recs []string
			for i := 0; i < 12; i++ {
				recs = append(recs, fmt.Sprintf(`{"campaign_uid":"c%d"}`, i))
			}
			fmt.Fprintf(w, `{"status":"success","data":{"records":[%s]}}`, strings.Join(recs, ","))
			return
		}
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		uid := strings.TrimPrefix(r.URL.Path, "/campaigns/")
		fmt.Fprintf(w, `{"status":"success","data":{"record":{"campaign_uid":%q,"name":"N","status":"sent"}}}`, uid)
	})
	client.maxConcurrency = 2

	campaigns, err := client.ListCampaigns(context.Background())
	require.NoError(t, err)
	assert.Len(t, campaigns, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestGetCampaignReturnsNilOnFailure(t *testing.T) {
	client := newTestClient(t, fakeMailPro(t))

	assert.Nil(t, client.GetCampaign(context.Background(), "missing"))
	c := client.GetCampaign(context.Background(), "c1")
	require.NotNil(t, c)
	assert.Equal(t, "Spring Sale", c.Name)
}

func TestGetCampaignStats(t *testing.T) {
	client := newTestClient(t, fakeMailPro(t))
	ctx := context.Background()

	stats := client.GetCampaignStats(ctx, "c1")
	require.NotNil(t, stats)
	assert.Equal(t, "c1", stats.CampaignUID)
	assert.Equal(t, Count(100), stats.ProcessedCount)
	assert.Equal(t, Count(90), stats.DeliverySuccessCount)
	assert.Equal(t, Count(30), stats.UniqueOpensCount)
	assert.Equal(t, Count(9), stats.UniqueClicksCount)

	assert.Nil(t, client.GetCampaignStats(ctx, "c4"), "empty array means no stats")
	assert.Nil(t, client.GetCampaignStats(ctx, "c2"), "server error means no stats")
}

func TestGetListsFiltersNames(t *testing.T) {
	client := newTestClient(t, fakeMailPro(t))

	lists := client.GetLists(context.Background())
	require.Len(t, lists, 1)
	assert.Equal(t, EmailList{UID: "l1", Name: "Customers", DisplayName: "Customers"}, lists[0])
}

func TestGetUnsubscribedSubscribers(t *testing.T) {
	client := newTestClient(t, fakeMailPro(t))
	ctx := context.Background()

	subs := client.GetUnsubscribedSubscribers(ctx, "l1")
	require.Len(t, subs, 1)
	assert.Equal(t, "s1", subs[0].UID)
	assert.Equal(t, "l1", subs[0].ListUID)
	assert.Equal(t, "a@example.com", subs[0].Email())

	assert.Empty(t, client.GetUnsubscribedSubscribers(ctx, "unknown"))
}

func TestGetSuppressionEmails(t *testing.T) {
	client := newTestClient(t, fakeMailPro(t))

	emails := client.GetSuppressionEmails(context.Background(), "sup1")
	require.Len(t, emails, 1)
	assert.Equal(t, "e1", emails[0].Key())
}

func TestExcluded(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://x"})

	for _, name := range []string{"Farm Update", "TEST", "my-testing-list", "FARMERS"} {
		assert.True(t, client.Excluded(name), name)
	}
	for _, name := range []string{"Spring Sale", "Newsletter", ""} {
		assert.False(t, client.Excluded(name), name)
	}

	custom := NewClient(Config{BaseURL: "http://x", ExcludeTerms: []string{}})
	assert.False(t, custom.Excluded("Farm test"))
}
