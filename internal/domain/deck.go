package domain

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed decks.yaml
var defaultDecksYAML []byte

// Deck is a named set of estimation cards. Non-numeric cards ("?", "☕")
// count as abstentions: they show up in the distribution but stay out of
// the numeric statistics.
type Deck struct {
	Name  string   `yaml:"name" json:"name"`
	Cards []string `yaml:"cards" json:"cards"`
}

// HasCard reports whether card belongs to the deck.
func (d Deck) HasCard(card string) bool {
	for _, c := range d.Cards {
		if c == card {
			return true
		}
	}
	return false
}

type deckFile struct {
	Decks []Deck `yaml:"decks"`
}

// LoadDecks parses deck definitions from path, or the embedded defaults when
// path is empty. Deck names must be unique and each deck needs at least two
// cards to be worth voting on.
func LoadDecks(path string) (map[string]Deck, error) {
	raw := defaultDecksYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read decks file: %w", err)
		}
		raw = data
	}

	var file deckFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse decks: %w", err)
	}
	if len(file.Decks) == 0 {
		return nil, fmt.Errorf("no decks defined")
	}

	decks := make(map[string]Deck, len(file.Decks))
	for _, d := range file.Decks {
		if d.Name == "" {
			return nil, fmt.Errorf("deck with empty name")
		}
		if len(d.Cards) < 2 {
			return nil, fmt.Errorf("deck %q needs at least two cards", d.Name)
		}
		if _, dup := decks[d.Name]; dup {
			return nil, fmt.Errorf("duplicate deck name %q", d.Name)
		}
		decks[d.Name] = d
	}
	return decks, nil
}

// VoteStats summarizes a revealed voting round.
type VoteStats struct {
	VotesCast    int            `json:"votes_cast"`
	NumericVotes int            `json:"numeric_votes"`
	Average      float64        `json:"average"`
	Median       float64        `json:"median"`
	Min          float64        `json:"min"`
	Max          float64        `json:"max"`
	Agreement    bool           `json:"agreement"`
	Distribution map[string]int `json:"distribution"`
}

// ComputeVoteStats derives round statistics from participant votes, keyed by
// participant ID. Agreement means every cast vote picked the same card;
// numeric aggregates skip abstentions.
func ComputeVoteStats(votes map[string]string) VoteStats {
	stats := VoteStats{
		VotesCast:    len(votes),
		Distribution: make(map[string]int),
	}

	var nums []float64
	first := ""
	agreement := len(votes) > 0
	for _, card := range votes {
		stats.Distribution[card]++
		if first == "" {
			first = card
		} else if card != first {
			agreement = false
		}
		if v, err := strconv.ParseFloat(card, 64); err == nil {
			nums = append(nums, v)
		}
	}
	stats.Agreement = agreement
	stats.NumericVotes = len(nums)

	if len(nums) == 0 {
		return stats
	}

	sort.Float64s(nums)
	sum := 0.0
	for _, v := range nums {
		sum += v
	}
	stats.Average = sum / float64(len(nums))
	stats.Min = nums[0]
	stats.Max = nums[len(nums)-1]

	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		stats.Median = nums[mid]
	} else {
		stats.Median = (nums[mid-1] + nums[mid]) / 2
	}
	return stats
}
