package domain

import (
	"encoding/json"
	"time"
)

// SessionRecord is the read-only row shape produced by the session
// ingestion pipeline. The context builder projects it into a MatchContext;
// nothing here is trusted to be well-formed.
type SessionRecord struct {
	SessionID          string    `db:"session_id"            json:"session_id"`
	OccurredAt         time.Time `db:"occurred_at"           json:"occurred_at"`
	EntryURL           string    `db:"entry_url"             json:"entry_url"`
	ReferrerURL        string    `db:"referrer_url"          json:"referrer_url"`
	UTMSource          string    `db:"utm_source"            json:"utm_source"`
	UTMMedium          string    `db:"utm_medium"            json:"utm_medium"`
	UTMCampaign        string    `db:"utm_campaign"          json:"utm_campaign"`
	UTMContent         string    `db:"utm_content"           json:"utm_content"`
	UTMTerm            string    `db:"utm_term"              json:"utm_term"`
	TrafficSourceKeyV1 string    `db:"traffic_source_key_v1" json:"traffic_source_key_v1"`
	Converted          bool      `db:"converted"             json:"converted"`
}

// AffiliateEvidence carries auxiliary affiliate-attribution signals for a
// session. ClickParams is an opaque JSON object of click-identifier keys
// recovered by the affiliate pipeline (e.g. {"gclid": "..."}).
type AffiliateEvidence struct {
	Network     string          `db:"network"      json:"network"`
	AffiliateID string          `db:"affiliate_id" json:"affiliate_id"`
	SourceKind  string          `db:"source_kind"  json:"source_kind"`
	ClickParams json.RawMessage `db:"click_params" json:"click_params,omitempty"`
}

// SessionWithEvidence pairs a session row with its affiliate evidence,
// if any. This is the unit the batch evaluator and diagnostics scanner
// operate on.
type SessionWithEvidence struct {
	Session  SessionRecord      `json:"session"`
	Evidence *AffiliateEvidence `json:"evidence,omitempty"`
}

// MatchContext is the fixed-shape, normalized view of one session's
// evidence that rules are evaluated against. Every field is always
// present; absent evidence yields empty strings and empty sets.
type MatchContext struct {
	UTMSource          string
	UTMMedium          string
	UTMCampaign        string
	UTMContent         string
	UTMTerm            string
	ReferrerHost       string
	ParamNames         map[string]struct{}
	ParamPairs         map[string]struct{}
	SourceKind         string
	AffiliateNetwork   string
	AffiliateID        string
	TrafficSourceKeyV1 string
}

// Scalar returns the scalar field value for a recognized scalar field
// name, or the empty string for set fields and unknown names.
func (c MatchContext) Scalar(field string) string {
	switch field {
	case FieldUTMSource:
		return c.UTMSource
	case FieldUTMMedium:
		return c.UTMMedium
	case FieldUTMCampaign:
		return c.UTMCampaign
	case FieldUTMContent:
		return c.UTMContent
	case FieldUTMTerm:
		return c.UTMTerm
	case FieldReferrerHost:
		return c.ReferrerHost
	case FieldSourceKind:
		return c.SourceKind
	case FieldAffiliateNetwork:
		return c.AffiliateNetwork
	case FieldAffiliateID:
		return c.AffiliateID
	case FieldTrafficSourceKeyV1:
		return c.TrafficSourceKeyV1
	}
	return ""
}

// Set returns the set field value for a recognized set field name, or
// nil for scalar fields and unknown names.
func (c MatchContext) Set(field string) map[string]struct{} {
	switch field {
	case FieldParamNames:
		return c.ParamNames
	case FieldParamPairs:
		return c.ParamPairs
	}
	return nil
}

// MatchResult is the outcome of evaluating one context against a
// configuration. A zero MatchResult means unmatched.
type MatchResult struct {
	Matched      bool     `json:"matched"`
	SourceKey    string   `json:"source_key,omitempty"`
	SourceLabel  string   `json:"source_label,omitempty"`
	Icon         IconSpec `json:"icon,omitempty"`
	RuleID       string   `json:"rule_id,omitempty"`
	WasAmbiguous bool     `json:"was_ambiguous,omitempty"`
	Specificity  int      `json:"specificity,omitempty"`
}

// Unmatched is the result returned when no enabled rule matched.
var Unmatched = MatchResult{}
