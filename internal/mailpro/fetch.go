package mailpro

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ignite/mailpro-dashboard/internal/pkg/fanout"
)

// ========== Campaign Methods ==========

// GetCampaign retrieves one detailed campaign. It returns nil, never an
// error: callers treat nil as "unavailable".
func (c *Client) GetCampaign(ctx context.Context, uid string) *Campaign {
	resp, err := c.Request(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(uid), nil, nil)
	if err != nil {
		c.log.Warn("campaign detail unavailable", "campaign", uid, "err", err)
		return nil
	}
	if resp.Empty() {
		return nil
	}

	var campaign Campaign
	if err := resp.Decode(&campaign); err != nil {
		c.log.Warn("campaign detail undecodable", "campaign", uid, "err", err)
		return nil
	}
	if campaign.UID == "" {
		campaign.UID = uid
	}
	return &campaign
}

// ListCampaigns fetches one summary page and then the detail of every
// campaign on it. Detail failures are dropped; a failure of the summary
// fetch itself is returned.
func (c *Client) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/campaigns", c.pageParams(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching campaign list: %w", err)
	}

	var summaries []campaignSummary
	if err := resp.Decode(&summaries); err != nil {
		return nil, err
	}

	details := fanout.Collect(ctx, c.maxConcurrency, summaries, func(ctx context.Context, s campaignSummary) (Campaign, bool) {
		if s.UID == "" {
			return Campaign{}, false
		}
		detail := c.GetCampaign(ctx, s.UID)
		if detail == nil {
			return Campaign{}, false
		}
		return *detail, true
	})

	campaigns := make([]Campaign, 0, len(details))
	for _, campaign := range details {
		if c.Excluded(campaign.Name) {
			continue
		}
		campaigns = append(campaigns, campaign)
	}

	c.log.Info("fetched campaigns", "summaries", len(summaries), "details", len(details), "kept", len(campaigns))
	return campaigns, nil
}

// GetCampaigns is ListCampaigns with failures logged and turned into an
// empty result.
func (c *Client) GetCampaigns(ctx context.Context) []Campaign {
	campaigns, err := c.ListCampaigns(ctx)
	if err != nil {
		c.log.Error("campaign list unavailable", "err", err)
		return []Campaign{}
	}
	return campaigns
}

// GetCampaignStats returns the counters for one campaign, or nil when the
// call fails or the API answers with an empty array.
func (c *Client) GetCampaignStats(ctx context.Context, uid string) *CampaignStats {
	resp, err := c.Request(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(uid)+"/stats", nil, nil)
	if err != nil {
		c.log.Warn("campaign stats unavailable", "campaign", uid, "err", err)
		return nil
	}
	if resp.Empty() {
		return nil
	}

	var stats CampaignStats
	if err := resp.Decode(&stats); err != nil {
		c.log.Warn("campaign stats undecodable", "campaign", uid, "err", err)
		return nil
	}
	stats.CampaignUID = uid
	return &stats
}

// ========== List Methods ==========

// ListLists fetches one page of subscriber lists, applying the name filter.
func (c *Client) ListLists(ctx context.Context) ([]EmailList, error) {
	resp, err := c.Request(ctx, http.MethodGet, "/lists", c.pageParams(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching lists: %w", err)
	}

	var lists []EmailList
	if err := resp.Decode(&lists); err != nil {
		return nil, err
	}

	kept := make([]EmailList, 0, len(lists))
	for _, l := range lists {
		if l.UID == "" || c.Excluded(l.Name) {
			continue
		}
		kept = append(kept, l)
	}
	return kept, nil
}

// GetLists is ListLists with failures logged and turned into an empty result.
func (c *Client) GetLists(ctx context.Context) []EmailList {
	lists, err := c.ListLists(ctx)
	if err != nil {
		c.log.Error("lists unavailable", "err", err)
		return []EmailList{}
	}
	return lists
}

// GetUnsubscribedSubscribers returns the unsubscribed members of a list.
// Failures yield an empty result.
func (c *Client) GetUnsubscribedSubscribers(ctx context.Context, listUID string) []Subscriber {
	params := c.pageParams()
	params.Set("status", string(SubscriberUnsubscribed))

	resp, err := c.Request(ctx, http.MethodGet, "/lists/"+url.PathEscape(listUID)+"/subscribers", params, nil)
	if err != nil {
		c.log.Warn("subscribers unavailable", "list", listUID, "err", err)
		return []Subscriber{}
	}

	var subscribers []Subscriber
	if err := resp.Decode(&subscribers); err != nil {
		c.log.Warn("subscribers undecodable", "list", listUID, "err", err)
		return []Subscriber{}
	}

	unsubscribed := make([]Subscriber, 0, len(subscribers))
	for _, s := range subscribers {
		if s.UID == "" || s.Status != SubscriberUnsubscribed {
			continue
		}
		if s.ListUID == "" {
			s.ListUID = listUID
		}
		unsubscribed = append(unsubscribed, s)
	}
	return unsubscribed
}

// GetSuppressionEmails returns one page of addresses on a suppression list.
func (c *Client) GetSuppressionEmails(ctx context.Context, suppressionListUID string) []SuppressedEmail {
	resp, err := c.Request(ctx, http.MethodGet,
		"/suppression-lists/"+url.PathEscape(suppressionListUID)+"/emails", c.pageParams(), nil)
	if err != nil {
		c.log.Warn("suppression emails unavailable", "suppression_list", suppressionListUID, "err", err)
		return []SuppressedEmail{}
	}

	var emails []SuppressedEmail
	if err := resp.Decode(&emails); err != nil {
		c.log.Warn("suppression emails undecodable", "suppression_list", suppressionListUID, "err", err)
		return []SuppressedEmail{}
	}

	kept := emails[:0]
	for _, e := range emails {
		if e.Email != "" {
			kept = append(kept, e)
		}
	}
	return kept
}

// ========== Helpers ==========

// MaxConcurrency is the cap on simultaneous per-item calls.
func (c *Client) MaxConcurrency() int { return c.maxConcurrency }

// Excluded reports whether a campaign or list name matches the exclusion terms.
func (c *Client) Excluded(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range c.excludeTerms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func (c *Client) pageParams() url.Values {
	params := url.Values{}
	params.Set("page", "1")
	params.Set("per_page", strconv.Itoa(c.pageSize))
	return params
}
