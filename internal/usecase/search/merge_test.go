package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/remote"
	"github.com/kailas-cloud/meilifed/internal/domain/search/result"
)

func newMerger(t *testing.T) *Merger {
	t.Helper()
	indexes, groups := fixture(t)
	return NewMerger(indexes, groups, affix.New("app_", ""))
}

func block(uid string, hits ...result.Hit) result.IndexResult {
	return result.IndexResult{IndexUID: uid, Hits: hits}
}

func TestMerge_WeightsAndOrder(t *testing.T) {
	m := newMerger(t)
	res := result.MultiSearch{Results: []result.IndexResult{
		block("app_movies",
			result.Hit{"id": "m1", "_rankingScore": 0.9},
			result.Hit{"id": "m2", "_rankingScore": 0.3},
		),
		block("app_books",
			result.Hit{"isbn": "b1", "_rankingScore": 0.5},
		),
	}}

	hits, err := m.Merge(res, "catalog", false)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "b1", hits[0]["isbn"])
	assert.InDelta(t, 1.0, hits[0].RankingScore(), 1e-9)
	assert.Equal(t, "books", hits[0].Index())
	assert.Equal(t, "m1", hits[1]["id"])
	assert.Equal(t, "m2", hits[2]["id"])

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].RankingScore(), hits[i].RankingScore())
	}
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	m := newMerger(t)
	hit := result.Hit{"id": "m1", "_rankingScore": 0.5}
	res := result.MultiSearch{Results: []result.IndexResult{block("app_movies", hit)}}

	_, err := m.Merge(res, "catalog", false)
	require.NoError(t, err)
	assert.NotContains(t, hit, "_index")
}

func TestMerge_MissingScoreCountsAsZero(t *testing.T) {
	m := newMerger(t)
	res := result.MultiSearch{Results: []result.IndexResult{
		block("app_movies", result.Hit{"id": "m1"}, result.Hit{"id": "m2", "_rankingScore": 0.1}),
	}}

	hits, err := m.Merge(res, "catalog", false)
	require.NoError(t, err)
	assert.Equal(t, "m2", hits[0]["id"])
	assert.Zero(t, hits[1].RankingScore())
}

func TestMerge_NonUniqueKeepsDuplicates(t *testing.T) {
	m := newMerger(t)
	res := result.MultiSearch{Results: []result.IndexResult{
		block("app_movies", result.Hit{"id": "x", "_rankingScore": 0.4}),
		block("app_books", result.Hit{"isbn": "x", "_rankingScore": 0.4}),
	}}

	hits, err := m.Merge(res, "catalog", false)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestMerge_UniqueKeepsHigherScore(t *testing.T) {
	m := newMerger(t)
	res := result.MultiSearch{Results: []result.IndexResult{
		block("app_movies", result.Hit{"id": "42", "_rankingScore": 0.5}),
		block("app_books", result.Hit{"isbn": 42.0, "_rankingScore": 0.4}),
	}}

	hits, err := m.Merge(res, "catalog", true)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "books", hits[0].Index())
	assert.InDelta(t, 0.8, hits[0].RankingScore(), 1e-9)
}

func TestMerge_UniqueTieKeepsFirst(t *testing.T) {
	m := newMerger(t)
	res := result.MultiSearch{Results: []result.IndexResult{
		block("app_movies", result.Hit{"id": "7", "_rankingScore": 0.8}),
		block("app_books", result.Hit{"isbn": "7", "_rankingScore": 0.4}),
	}}

	hits, err := m.Merge(res, "catalog", true)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "movies", hits[0].Index())
}

func TestMerge_UniqueMissingPrimaryKey(t *testing.T) {
	m := newMerger(t)
	res := result.MultiSearch{Results: []result.IndexResult{
		block("app_books", result.Hit{"title": "no isbn"}),
	}}

	_, err := m.Merge(res, "catalog", true)
	require.ErrorIs(t, err, domain.ErrMissingPrimaryKey)

	var mpk *domain.MissingPrimaryKeyError
	require.ErrorAs(t, err, &mpk)
	assert.Equal(t, "books", mpk.Index)
	assert.Equal(t, "isbn", mpk.Field)
}

func TestMerge_Errors(t *testing.T) {
	m := newMerger(t)
	tests := []struct {
		name  string
		group string
		res   result.MultiSearch
		want  error
	}{
		{
			name:  "unknown group",
			group: "nope",
			want:  domain.ErrGroupNotFound,
		},
		{
			name:  "missing indexUid",
			group: "catalog",
			res:   result.MultiSearch{Results: []result.IndexResult{block("")}},
			want:  domain.ErrInvalidResult,
		},
		{
			name:  "unmanaged index",
			group: "catalog",
			res:   result.MultiSearch{Results: []result.IndexResult{block("app_ghost")}},
			want:  domain.ErrIndexNotFound,
		},
		{
			name:  "not a group member",
			group: "catalog",
			res:   result.MultiSearch{Results: []result.IndexResult{block("app_series")}},
			want:  domain.ErrGroupMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Merge(tt.res, tt.group, false)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMerge_UniqueKeepsLargeIntegerIDsApart(t *testing.T) {
	m := newMerger(t)
	resp := remote.Response{Status: 200, Body: []byte(`{"results":[
		{"indexUid":"app_movies","hits":[{"id":9007199254740993,"_rankingScore":0.8}]},
		{"indexUid":"app_movies","hits":[{"id":9007199254740992,"_rankingScore":0.9}]}
	]}`)}
	var res result.MultiSearch
	require.NoError(t, resp.Decode(&res))

	hits, err := m.Merge(res, "catalog", true)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	first, _ := hits[0].Key("id")
	second, _ := hits[1].Key("id")
	assert.Equal(t, "9007199254740992", first)
	assert.Equal(t, "9007199254740993", second)
}
