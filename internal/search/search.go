package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultTrack      ResultType = "track"
	ResultCustomSync ResultType = "custom_sync"
)

// ParseResultType accepts the ?type= values; empty means every type.
func ParseResultType(value string) (ResultType, bool) {
	switch ResultType(value) {
	case "":
		return "", true
	case ResultTrack, ResultCustomSync:
		return ResultType(value), true
	default:
		return "", false
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Status  string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// TrackRecord is the data we index for a track.
type TrackRecord struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Artist     string   `json:"artist"`
	ProducerID string   `json:"producerId"`
	Genres     []string `json:"genres"`
	Moods      []string `json:"moods"`
}

// BriefRecord is the data we index for a custom sync request.
type BriefRecord struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Genre       string  `json:"genre"`
	Status      string  `json:"status"`
	SyncFee     float64 `json:"syncFee"`
}

const briefOpen = "open"
