package search

import (
	"fmt"
	"sort"

	"github.com/kailas-cloud/meilifed/internal/affix"
	"github.com/kailas-cloud/meilifed/internal/domain"
	"github.com/kailas-cloud/meilifed/internal/domain/search/result"
)

// Merger combines the per-index blocks of a group search into one ranked list.
type Merger struct {
	indexes IndexResolver
	groups  GroupResolver
	codec   affix.Codec
}

// NewMerger creates a merger.
func NewMerger(indexes IndexResolver, groups GroupResolver, codec affix.Codec) *Merger {
	return &Merger{indexes: indexes, groups: groups, codec: codec}
}

// Merge weights every hit by its index's group weight and sorts by the adjusted
// score, descending. Each returned hit carries its logical index in "_index" and
// the adjusted score in "_rankingScore".
//
// With uniqueByPrimaryKey, hits sharing a primary key value are collapsed: the
// strictly higher adjusted score wins and the survivor keeps the position of the
// first occurrence, so ties go to the earlier hit.
func (m *Merger) Merge(res result.MultiSearch, groupName string, uniqueByPrimaryKey bool) ([]result.Hit, error) {
	cfg, err := m.groups.Resolve(groupName)
	if err != nil {
		return nil, err
	}

	type scored struct {
		hit   result.Hit
		score float64
	}
	var (
		merged []scored
		byKey  = make(map[string]int)
	)

	for i, block := range res.Results {
		if block.IndexUID == "" {
			return nil, fmt.Errorf("result %d has no indexUid: %w", i, domain.ErrInvalidResult)
		}
		id := m.codec.Remove(block.IndexUID)
		idx, err := m.indexes.Get(id)
		if err != nil {
			return nil, err
		}
		member, ok := cfg.Member(id)
		if !ok {
			return nil, fmt.Errorf("%w: %q in group %q", domain.ErrGroupMismatch, id, groupName)
		}

		for _, h := range block.Hits {
			score := h.RankingScore() * member.Weight
			out := h.Clone()
			out[result.FieldIndex] = id
			out[result.FieldRankingScore] = score

			if !uniqueByPrimaryKey {
				merged = append(merged, scored{hit: out, score: score})
				continue
			}

			key, ok := h.Key(idx.PrimaryKey())
			if !ok {
				return nil, &domain.MissingPrimaryKeyError{Index: id, Field: idx.PrimaryKey()}
			}
			if pos, seen := byKey[key]; seen {
				if score > merged[pos].score {
					merged[pos] = scored{hit: out, score: score}
				}
				continue
			}
			byKey[key] = len(merged)
			merged = append(merged, scored{hit: out, score: score})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].score > merged[j].score })

	hits := make([]result.Hit, len(merged))
	for i, s := range merged {
		hits[i] = s.hit
	}
	return hits, nil
}
