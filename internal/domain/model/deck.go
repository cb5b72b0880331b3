package model

import (
	"fmt"
	"strings"
	"unicode"
)

// Card is one naipe of the 40-card Spanish deck.
type Card struct {
	ID   CardID `json:"id"`
	Name string `json:"name"`
	Suit string `json:"suit"`
	Rank int    `json:"rank"`
}

var suits = []string{"oros", "copas", "espadas", "bastos"}

var ranks = []int{1, 2, 3, 4, 5, 6, 7, 10, 11, 12}

var figures = map[int]string{1: "As", 10: "Sota", 11: "Caballo", 12: "Rey"}

var deck, deckIndex = buildDeck()

func buildDeck() ([]Card, map[CardID]Card) {
	cards := make([]Card, 0, len(suits)*len(ranks))
	index := make(map[CardID]Card, cap(cards))
	for _, s := range suits {
		for _, r := range ranks {
			face, ok := figures[r]
			if !ok {
				face = fmt.Sprint(r)
			}
			c := Card{
				ID:   CardID(fmt.Sprintf("%s-%d", s, r)),
				Name: fmt.Sprintf("%s de %s", face, titleSuit(s)),
				Suit: s,
				Rank: r,
			}
			cards = append(cards, c)
			index[c.ID] = c
		}
	}
	return cards, index
}

func titleSuit(s string) string {
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// SpanishDeck returns the full deck in suit then rank order.
func SpanishDeck() []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	return out
}

// LookupCard resolves a card id, accepting any letter case.
func LookupCard(id CardID) (Card, bool) {
	c, ok := deckIndex[CardID(strings.ToLower(strings.TrimSpace(string(id))))]
	return c, ok
}
