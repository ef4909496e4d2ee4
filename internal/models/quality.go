package models

// QualityScore is the weighted evaluation of a transcript. Sub-scores are in
// [0,100]; Total is the weighted composite rounded to one decimal. Sentiment
// is an independent signal in [-1,1] and does not enter the composite.
type QualityScore struct {
	Authenticity float64  `json:"authenticity"`
	Concreteness float64  `json:"concreteness"`
	Depth        float64  `json:"depth"`
	Total        float64  `json:"total"`
	Sentiment    float64  `json:"sentiment"`
	Categories   []string `json:"categories"`
}

// BusinessContext describes the expected topics and vocabulary for a business.
// The business supplies and maintains it; the scorer only reads it.
type BusinessContext struct {
	BusinessID     string   `json:"business_id"`
	BusinessType   string   `json:"business_type"`
	ExpectedTopics []string `json:"expected_topics"`
	Vocabulary     []string `json:"vocabulary"`
	KnownItems     []string `json:"known_items"`
	LocationNames  []string `json:"location_names"`
}
