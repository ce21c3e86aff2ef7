package result

import (
	"encoding/json"
	"maps"
	"strconv"
)

// Reserved hit fields.
const (
	FieldRankingScore = "_rankingScore"
	FieldIndex        = "_index"
)

// Hit is one matching document as returned by the remote engine.
type Hit map[string]any

// RankingScore returns the relevance score of the hit, 0 when absent.
func (h Hit) RankingScore() float64 {
	return toFloat(h[FieldRankingScore])
}

// Index returns the origin index attached by a merge, if any.
func (h Hit) Index() string {
	s, _ := h[FieldIndex].(string)
	return s
}

// Key returns the string form of a field value, used to identify hits by primary key.
func (h Hit) Key(field string) (string, bool) {
	v, ok := h[field]
	if !ok || v == nil {
		return "", false
	}
	switch k := v.(type) {
	case string:
		return k, true
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64), true
	case json.Number:
		return k.String(), true
	case int:
		return strconv.Itoa(k), true
	case int64:
		return strconv.FormatInt(k, 10), true
	default:
		data, err := json.Marshal(k)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

// Clone returns a shallow copy of the hit.
func (h Hit) Clone() Hit { return maps.Clone(h) }

// IndexResult is the result block for one index.
type IndexResult struct {
	IndexUID           string                    `json:"indexUid,omitempty"`
	Hits               []Hit                     `json:"hits"`
	Query              string                    `json:"query"`
	ProcessingTimeMs   int                       `json:"processingTimeMs"`
	Limit              int                       `json:"limit,omitempty"`
	Offset             int                       `json:"offset,omitempty"`
	EstimatedTotalHits int                       `json:"estimatedTotalHits,omitempty"`
	TotalHits          int                       `json:"totalHits,omitempty"`
	TotalPages         int                       `json:"totalPages,omitempty"`
	HitsPerPage        int                       `json:"hitsPerPage,omitempty"`
	Page               int                       `json:"page,omitempty"`
	FacetDistribution  map[string]map[string]int `json:"facetDistribution,omitempty"`
}

// MultiSearch is the response of a multi-search request.
type MultiSearch struct {
	Results []IndexResult `json:"results"`
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}
