package query

// Confidence carries per-tier probability distributions for one processed
// query. Maps are only populated when verbose processing is requested.
// Entity and role scores are positional, one element per recognized entity;
// an entity whose type has no roles gets a nil role map.
type Confidence struct {
	Domains  map[string]float64   `json:"domains,omitempty"`
	Intents  map[string]float64   `json:"intents,omitempty"`
	Entities []map[string]float64 `json:"entities,omitempty"`
	Roles    []map[string]float64 `json:"roles,omitempty"`
}

// ProcessedQuery is the final product of the pipeline for one piece of input
// text: the winning domain and intent, the recognized and post-processed
// entities, and optionally per-tier confidences and the per-transcript
// results when speech recognizer n-best transcripts were supplied.
type ProcessedQuery struct {
	Query    *Query         `json:"-"`
	Text     string         `json:"text"`
	Domain   string         `json:"domain,omitempty"`
	Intent   string         `json:"intent,omitempty"`
	Entities []*QueryEntity `json:"entities"`

	Confidence *Confidence `json:"confidences,omitempty"`

	// NBestQueries holds one query per supplied transcript, NBestEntities
	// the raw recognitions per transcript, and NBestAligned the reference
	// entity groups after cross-transcript alignment.
	NBestQueries  []*Query         `json:"-"`
	NBestEntities [][]*QueryEntity `json:"nbestEntities,omitempty"`
	NBestAligned  [][]*QueryEntity `json:"nbestAligned,omitempty"`
}
