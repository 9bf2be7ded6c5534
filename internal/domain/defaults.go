package domain

// DefaultConfig returns the built-in attribution configuration used when
// no merchant configuration is persisted, or when a persisted blob fails
// to normalize. Callers receive a fresh value each time; it is safe to
// hand to a normalizer or matcher without copying.
func DefaultConfig() *Config {
	return &Config{
		Version: ConfigVersion,
		Sources: []Source{
			{
				Key:     "google_ads_affiliate",
				Label:   "Google Ads (Affiliate)",
				Enabled: true,
				Order:   10,
				Rules: []Rule{
					{
						ID:      "google_ads_affiliate_click",
						Label:   "Google click id via affiliate",
						Enabled: true,
						When: map[string]Condition{
							FieldSourceKind: {Any: []string{"affiliate"}},
							FieldParamNames: {Any: []string{"gclid", "gbraid", "wbraid"}},
						},
					},
				},
			},
			{
				Key:     "google_ads_house",
				Label:   "Google Ads (House)",
				Enabled: true,
				Order:   20,
				Rules: []Rule{
					{
						ID:      "google_ads_house_click",
						Label:   "Google click id, no affiliate",
						Enabled: true,
						When: map[string]Condition{
							FieldSourceKind: {None: []string{"affiliate"}},
							FieldParamNames: {Any: []string{"gclid", "gbraid", "wbraid"}},
						},
					},
					{
						ID:      "google_ads_house_utm",
						Label:   "Google paid UTM",
						Enabled: true,
						When: map[string]Condition{
							FieldSourceKind: {None: []string{"affiliate"}},
							FieldUTMSource:  {Any: []string{"eq:google", "eq:adwords"}},
							FieldUTMMedium:  {Any: []string{"cpc", "ppc", "paid"}},
						},
					},
				},
			},
			{
				Key:     "meta_ads",
				Label:   "Meta Ads",
				Enabled: true,
				Order:   30,
				Rules: []Rule{
					{
						ID:      "meta_click_id",
						Label:   "Meta click id",
						Enabled: true,
						When: map[string]Condition{
							FieldParamNames: {Any: []string{"fbclid"}},
						},
					},
					{
						ID:      "meta_paid_utm",
						Label:   "Meta paid UTM",
						Enabled: true,
						When: map[string]Condition{
							FieldUTMSource: {Any: []string{"eq:facebook", "eq:instagram", "eq:meta"}},
							FieldUTMMedium: {Any: []string{"cpc", "ppc", "paid", "paid_social"}},
						},
					},
				},
			},
			{
				Key:     "microsoft_ads",
				Label:   "Microsoft Ads",
				Enabled: true,
				Order:   40,
				Rules: []Rule{
					{
						ID:      "microsoft_click_id",
						Label:   "Microsoft click id",
						Enabled: true,
						When: map[string]Condition{
							FieldParamNames: {Any: []string{"msclkid"}},
						},
					},
				},
			},
			{
				Key:     "affiliate_network",
				Label:   "Affiliate Network",
				Enabled: true,
				Order:   50,
				Rules: []Rule{
					{
						ID:      "affiliate_evidence",
						Label:   "Affiliate evidence, no ad click id",
						Enabled: true,
						When: map[string]Condition{
							FieldSourceKind: {Any: []string{"affiliate"}},
							FieldParamNames: {None: []string{"gclid", "gbraid", "wbraid", "fbclid", "msclkid"}},
						},
					},
				},
			},
			{
				Key:     "email",
				Label:   "Email",
				Enabled: true,
				Order:   60,
				Rules: []Rule{
					{
						ID:      "email_utm",
						Label:   "Email UTM medium",
						Enabled: true,
						When: map[string]Condition{
							FieldUTMMedium: {Any: []string{"eq:email", "newsletter"}},
						},
					},
				},
			},
			{
				Key:     "organic_search",
				Label:   "Organic Search",
				Enabled: true,
				Order:   70,
				Rules: []Rule{
					{
						ID:      "search_referrer",
						Label:   "Search engine referrer, unpaid",
						Enabled: true,
						When: map[string]Condition{
							FieldReferrerHost: {Any: []string{"google.", "bing.", "duckduckgo.", "search.yahoo."}},
							FieldUTMMedium:    {None: []string{"cpc", "ppc", "paid"}},
							FieldParamNames:   {None: []string{"gclid", "gbraid", "wbraid", "msclkid"}},
						},
					},
				},
			},
		},
	}
}
