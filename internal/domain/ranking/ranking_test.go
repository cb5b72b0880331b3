package ranking_test

import (
	"fmt"
	"testing"

	"github.com/okian/catador/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

type entry struct {
	id    string
	name  string
	score int
}

func (e entry) RankScore() int   { return e.score }
func (e entry) RankName() string { return e.name }
func (e entry) RankID() string   { return e.id }

func ranks(rs []ranking.Ranked[entry]) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Rank
	}
	return out
}

func names(rs []ranking.Ranked[entry]) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Item.name
	}
	return out
}

func TestRank(t *testing.T) {
	Convey("Given a three-way tie at the top", t, func() {
		items := []entry{
			{"5", "eve", 100},
			{"1", "carla", 300},
			{"4", "dani", 200},
			{"2", "ana", 300},
			{"3", "bea", 300},
		}
		board := ranking.Build(items)
		all := append(append([]ranking.Ranked[entry]{}, board.Podium...), board.Rest...)

		Convey("Then tied entries share rank 1 and the next rank skips to 4", func() {
			So(ranks(all), ShouldResemble, []int{1, 1, 1, 4, 5})
		})

		Convey("Then the podium holds exactly the three tied entries", func() {
			So(names(board.Podium), ShouldResemble, []string{"ana", "bea", "carla"})
			So(names(board.Rest), ShouldResemble, []string{"dani", "eve"})
		})

		Convey("Then the input slice is left untouched", func() {
			So(items[0].name, ShouldEqual, "eve")
		})
	})

	Convey("Given a tie at rank 1 followed by distinct scores", t, func() {
		board := ranking.Build([]entry{
			{"a", "a", 50}, {"b", "b", 50}, {"c", "c", 40}, {"d", "d", 30},
		})

		Convey("Then the next distinct score is rank 3 and still podium", func() {
			So(ranks(board.Podium), ShouldResemble, []int{1, 1, 3})
			So(ranks(board.Rest), ShouldResemble, []int{4})
		})
	})

	Convey("Given a tie spanning rank 3", t, func() {
		board := ranking.Build([]entry{
			{"a", "a", 9}, {"b", "b", 8}, {"c", "c", 7}, {"d", "d", 7}, {"e", "e", 7}, {"f", "f", 1},
		})

		Convey("Then every entry sharing rank 3 is on the podium", func() {
			So(len(board.Podium), ShouldEqual, 5)
			So(ranks(board.Rest), ShouldResemble, []int{6})
		})
	})

	Convey("Given equal names", t, func() {
		rs := ranking.Rank([]entry{{"z", "same", 1}, {"a", "same", 1}})

		Convey("Then id breaks the output order", func() {
			So(rs[0].Item.id, ShouldEqual, "a")
			So(ranks(rs), ShouldResemble, []int{1, 1})
		})
	})

	Convey("Given no entries", t, func() {
		board := ranking.Build([]entry(nil))
		So(board.Podium, ShouldBeEmpty)
		So(board.Rest, ShouldBeEmpty)
	})

	Convey("Given shuffled inputs", t, func() {
		base := []entry{}
		for i := 0; i < 20; i++ {
			base = append(base, entry{fmt.Sprint(i), fmt.Sprintf("p%02d", i), (i % 4) * 10})
		}
		rev := make([]entry, len(base))
		for i := range base {
			rev[len(base)-1-i] = base[i]
		}

		Convey("Then the ranking is identical regardless of input order", func() {
			So(ranking.Rank(rev), ShouldResemble, ranking.Rank(base))
		})
	})
}
