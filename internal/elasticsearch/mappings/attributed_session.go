package mappings

// AttributedSessionMapping represents the Elasticsearch mapping for
// attributed sessions
type AttributedSessionMapping struct {
	Settings AttributedSessionSettings `json:"settings"`
	Mappings AttributedSessionMappings `json:"mappings"`
}

// AttributedSessionSettings defines index-level settings
type AttributedSessionSettings struct {
	BaseSettings
}

// AttributedSessionMappings defines the field mappings for attributed sessions
type AttributedSessionMappings struct {
	Properties AttributedSessionProperties `json:"properties"`
}

// AttributedSessionProperties defines the properties for each field in the
// attributed session mapping: the session row plus its attribution outcome
type AttributedSessionProperties struct {
	// Session fields
	SessionID   Field `json:"session_id"`
	OccurredAt  Field `json:"occurred_at"`
	EntryURL    Field `json:"entry_url"`
	ReferrerURL Field `json:"referrer_url"`
	UTMSource   Field `json:"utm_source"`
	UTMMedium   Field `json:"utm_medium"`
	UTMCampaign Field `json:"utm_campaign"`
	Converted   Field `json:"converted"`

	// Attribution outcome
	Matched      Field `json:"matched"`
	SourceKey    Field `json:"source_key"`
	SourceLabel  Field `json:"source_label"`
	RuleID       Field `json:"rule_id"`
	WasAmbiguous Field `json:"was_ambiguous"`
	IndexedAt    Field `json:"indexed_at"`
}

// NewAttributedSessionMapping creates a new attributed session mapping with
// default settings
func NewAttributedSessionMapping() *AttributedSessionMapping {
	return &AttributedSessionMapping{
		Settings: AttributedSessionSettings{
			BaseSettings: DefaultSettings(),
		},
		Mappings: AttributedSessionMappings{
			Properties: AttributedSessionProperties{
				SessionID: Field{
					Type: "keyword",
				},
				OccurredAt: Field{
					Type:   "date",
					Format: "strict_date_optional_time||epoch_millis",
				},
				EntryURL: Field{
					Type: "keyword",
				},
				ReferrerURL: Field{
					Type: "keyword",
				},
				UTMSource: Field{
					Type: "keyword",
				},
				UTMMedium: Field{
					Type: "keyword",
				},
				UTMCampaign: Field{
					Type: "keyword",
				},
				Converted: Field{
					Type: "boolean",
				},
				Matched: Field{
					Type: "boolean",
				},
				SourceKey: Field{
					Type: "keyword",
				},
				SourceLabel: Field{
					Type: "keyword",
				},
				RuleID: Field{
					Type: "keyword",
				},
				WasAmbiguous: Field{
					Type: "boolean",
				},
				IndexedAt: Field{
					Type:   "date",
					Format: "strict_date_optional_time||epoch_millis",
				},
			},
		},
	}
}

// GetJSON returns the attributed session mapping as a JSON string
func (m *AttributedSessionMapping) GetJSON() (string, error) {
	return ToJSON(m)
}

// Validate validates the attributed session mapping configuration
func (m *AttributedSessionMapping) Validate() error {
	return ValidateSettings(m.Settings.BaseSettings)
}
