package mailpro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds MailPro API client configuration
type Config struct {
	BaseURL        string
	PublicKey      string
	Timeout        time.Duration
	Retries        int
	PageSize       int
	MaxConcurrency int
	// ExcludeTerms drops campaigns and lists whose name contains any of
	// these, case-insensitively.
	ExcludeTerms []string
}

// CampaignStatus is the lifecycle state of a campaign upstream.
type CampaignStatus string

const (
	StatusDraft      CampaignStatus = "draft"
	StatusScheduled  CampaignStatus = "scheduled"
	StatusProcessing CampaignStatus = "processing"
	StatusSent       CampaignStatus = "sent"
	StatusPaused     CampaignStatus = "paused"
)

// Reportable reports whether campaigns in this state get a daily report.
func (s CampaignStatus) Reportable() bool {
	return s == StatusSent || s == StatusProcessing
}

// SubscriberStatus is the list-membership state of a subscriber.
type SubscriberStatus string

const (
	SubscriberConfirmed    SubscriberStatus = "confirmed"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
)

// Campaign is a single outbound blast as returned by the campaign detail endpoint.
type Campaign struct {
	UID       string         `json:"campaign_uid"`
	Name      string         `json:"name"`
	Subject   string         `json:"subject"`
	Status    CampaignStatus `json:"status"`
	FromName  string         `json:"from_name"`
	SendAt    string         `json:"send_at,omitempty"`
	DateAdded string         `json:"date_added,omitempty"`
}

// campaignSummary is one row of the paged campaign index.
type campaignSummary struct {
	UID    string `json:"campaign_uid"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Count is a counter the API may send either as a JSON number or as a
// numeric string. Empty strings and null decode to zero.
type Count int64

func (c *Count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		s = strings.TrimSpace(str)
		if s == "" {
			*c = 0
			return nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*c = Count(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid counter %q: %w", s, err)
	}
	*c = Count(f)
	return nil
}

// CampaignStats holds aggregate delivery and engagement counters for one
// campaign. The stats endpoint does not echo the campaign UID, so the
// fetcher fills CampaignUID in.
type CampaignStats struct {
	CampaignUID          string `json:"campaign_uid"`
	CampaignStatus       string `json:"campaign_status,omitempty"`
	SubscribersCount     Count  `json:"subscribers_count"`
	ProcessedCount       Count  `json:"processed_count"`
	DeliverySuccessCount Count  `json:"delivery_success_count"`
	DeliveryErrorCount   Count  `json:"delivery_error_count"`
	OpensCount           Count  `json:"opens_count"`
	UniqueOpensCount     Count  `json:"unique_opens_count"`
	ClicksCount          Count  `json:"clicks_count"`
	UniqueClicksCount    Count  `json:"unique_clicks_count"`
	UnsubscribesCount    Count  `json:"unsubscribes_count"`
	ComplaintsCount      Count  `json:"complaints_count"`
	BouncesCount         Count  `json:"bounces_count"`
	HardBouncesCount     Count  `json:"hard_bounces_count"`
	SoftBouncesCount     Count  `json:"soft_bounces_count"`
}

// EmailList is a subscriber list. The API nests list attributes under
// "general" in list responses; the flat form is what we persist.
type EmailList struct {
	UID         string `json:"list_uid"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
}

func (l *EmailList) UnmarshalJSON(b []byte) error {
	type flat EmailList
	var wrapper struct {
		General *flat `json:"general"`
	}
	if err := json.Unmarshal(b, &wrapper); err != nil {
		return err
	}
	if wrapper.General != nil {
		*l = EmailList(*wrapper.General)
		return nil
	}
	var f flat
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*l = EmailList(f)
	return nil
}

// Subscriber is a list member. Custom list fields (EMAIL, FNAME, ...) come
// back as top-level keys; they are collected into Fields.
type Subscriber struct {
	UID       string            `json:"subscriber_uid"`
	Status    SubscriberStatus  `json:"status"`
	ListUID   string            `json:"list_uid,omitempty"`
	DateAdded string            `json:"date_added,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Email returns the subscriber's address from its field map, if any.
func (s Subscriber) Email() string {
	for _, k := range []string{"EMAIL", "email", "Email"} {
		if v := s.Fields[k]; v != "" {
			return v
		}
	}
	return ""
}

func (s *Subscriber) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	out := Subscriber{}
	str := func(key string) string {
		var v string
		if r, ok := raw[key]; ok {
			_ = json.Unmarshal(r, &v)
		}
		return v
	}
	out.UID = str("subscriber_uid")
	out.Status = SubscriberStatus(str("status"))
	out.ListUID = str("list_uid")
	out.DateAdded = str("date_added")

	for k, v := range raw {
		switch k {
		case "subscriber_uid", "status", "list_uid", "date_added":
			continue
		case "lastUpdated", "syncedAt":
			// mirror stamps, not list fields
			continue
		case "fields":
			var nested map[string]string
			if err := json.Unmarshal(v, &nested); err == nil {
				for fk, fv := range nested {
					out.setField(fk, fv)
				}
			}
		default:
			if isNull(v) {
				continue
			}
			var sv string
			if err := json.Unmarshal(v, &sv); err == nil {
				out.setField(k, sv)
			}
		}
	}

	*s = out
	return nil
}

func (s *Subscriber) setField(k, v string) {
	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	s.Fields[k] = v
}

// SuppressedEmail is one address on a suppression list.
type SuppressedEmail struct {
	UID       string `json:"email_uid,omitempty"`
	Email     string `json:"email"`
	DateAdded string `json:"date_added,omitempty"`
}

// Key returns the identifier used to persist the entry.
func (e SuppressedEmail) Key() string {
	if e.UID != "" {
		return e.UID
	}
	return strings.ToLower(e.Email)
}
