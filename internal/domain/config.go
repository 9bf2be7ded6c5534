// Package domain defines the attribution data model shared across the service.
package domain

// ConfigVersion is the only supported configuration document version.
// Documents carrying any other version normalize to the default
// configuration; version bumps are deliberate out-of-band migrations.
const ConfigVersion = 1

// Config is a full attribution configuration: an ordered list of sources,
// each owning an ordered list of rules.
type Config struct {
	Version int      `json:"version"`
	Sources []Source `json:"sources"`
}

// Source is a named bucket of attribution rules.
type Source struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Enabled bool     `json:"enabled"`
	Order   int      `json:"order"`
	Icon    IconSpec `json:"icon"`
	Rules   []Rule   `json:"rules"`
}

// Rule is one matchable predicate within a source. Rule order affects
// only tie-break index, never constraint evaluation.
type Rule struct {
	ID      string               `json:"id"`
	Label   string               `json:"label"`
	Enabled bool                 `json:"enabled"`
	When    map[string]Condition `json:"when,omitempty"`
}

// Condition is an any/none token pair attached to one context field.
// Tokens in Any are OR'd; if any token in None matches, the rule fails.
type Condition struct {
	Any  []string `json:"any"`
	None []string `json:"none"`
}

// IsEmpty reports whether the condition contributes nothing.
func (c Condition) IsEmpty() bool {
	return len(c.Any) == 0 && len(c.None) == 0
}

// IconKind discriminates the three accepted icon shapes.
type IconKind string

const (
	IconEmpty IconKind = ""
	IconSVG   IconKind = "svg"
	IconURL   IconKind = "url"
	IconClass IconKind = "class"
)

// IconSpec is a tagged icon value, classified once at normalization time
// so consumers never re-sniff the shape.
type IconSpec struct {
	Kind  IconKind `json:"kind,omitempty"`
	Value string   `json:"value,omitempty"`
}

// Matching-context field names. Rule conditions may only reference these;
// unrecognized keys are dropped during normalization.
const (
	FieldUTMSource          = "utm_source"
	FieldUTMMedium          = "utm_medium"
	FieldUTMCampaign        = "utm_campaign"
	FieldUTMContent         = "utm_content"
	FieldUTMTerm            = "utm_term"
	FieldReferrerHost       = "referrer_host"
	FieldParamNames         = "param_names"
	FieldParamPairs         = "param_pairs"
	FieldSourceKind         = "source_kind"
	FieldAffiliateNetwork   = "affiliate_network_hint"
	FieldAffiliateID        = "affiliate_id_hint"
	FieldTrafficSourceKeyV1 = "traffic_source_key_v1"
)

// ContextFields lists every recognized condition field.
var ContextFields = []string{
	FieldUTMSource,
	FieldUTMMedium,
	FieldUTMCampaign,
	FieldUTMContent,
	FieldUTMTerm,
	FieldReferrerHost,
	FieldParamNames,
	FieldParamPairs,
	FieldSourceKind,
	FieldAffiliateNetwork,
	FieldAffiliateID,
	FieldTrafficSourceKeyV1,
}

// IsContextField reports whether name is a recognized condition field.
func IsContextField(name string) bool {
	for _, f := range ContextFields {
		if f == name {
			return true
		}
	}
	return false
}

// IsSetField reports whether the field carries a set of discrete values
// rather than scalar text. Set fields use membership semantics.
func IsSetField(name string) bool {
	return name == FieldParamNames || name == FieldParamPairs
}
