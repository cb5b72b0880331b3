// Package ranking orders scored entities into leaderboards with shared ranks
// for ties and a podium tier.
package ranking

import (
	"cmp"
	"slices"
)

// PodiumRanks is the deepest rank that still counts as podium.
const PodiumRanks = 3

// Rankable is anything that can be placed on a leaderboard.
type Rankable interface {
	RankScore() int
	RankName() string
	RankID() string
}

// Ranked pairs an item with its computed rank.
type Ranked[T Rankable] struct {
	Rank int `json:"rank"`
	Item T   `json:"item"`
}

// Board splits a ranking into podium and the rest.
type Board[T Rankable] struct {
	Podium []Ranked[T] `json:"podium"`
	Rest   []Ranked[T] `json:"rest"`
}

// Rank sorts items by score descending and assigns competition ranks: tied
// items share a rank and the next distinct score skips by the tie size, so
// [300,300,300,200,100] ranks as [1,1,1,4,5]. Name then id only fix the
// output order inside a tie. The input slice is not modified.
func Rank[T Rankable](items []T) []Ranked[T] {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, compare[T])

	out := make([]Ranked[T], len(sorted))
	for i, it := range sorted {
		rank := i + 1
		if i > 0 && it.RankScore() == sorted[i-1].RankScore() {
			rank = out[i-1].Rank
		}
		out[i] = Ranked[T]{Rank: rank, Item: it}
	}
	return out
}

func compare[T Rankable](a, b T) int {
	if c := cmp.Compare(b.RankScore(), a.RankScore()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.RankName(), b.RankName()); c != 0 {
		return c
	}
	return cmp.Compare(a.RankID(), b.RankID())
}

// Split separates ranked entries into podium (rank <= PodiumRanks) and the
// rest. A tie may put more than three entries on the podium.
func Split[T Rankable](ranked []Ranked[T]) Board[T] {
	b := Board[T]{Podium: []Ranked[T]{}, Rest: []Ranked[T]{}}
	for _, r := range ranked {
		if r.Rank <= PodiumRanks {
			b.Podium = append(b.Podium, r)
		} else {
			b.Rest = append(b.Rest, r)
		}
	}
	return b
}

// Build ranks items and splits the result.
func Build[T Rankable](items []T) Board[T] {
	return Split(Rank(items))
}
