package signal

import (
	"strings"

	"eth-scalper/internal/types"
)

const (
	crossTitles   = 8
	crossWords    = 8
	crossOverlap  = 3
	sentimentDocs = 6
	whaleNudge    = 0.2
)

var (
	officialHosts = []string{"ethereum.org", "cointelegraph.com", "coindesk.com", "reuters.com", "coinbase.com", "binance.com"}
	positiveWords = []string{"upgrade", "bull", "gain", "surge", "positive", "adopt", "launch", "success"}
	negativeWords = []string{"drop", "bear", "sell", "scam", "hack", "downgrade", "regulation", "fail", "attack"}
)

// AssessNews derives a credibility and keyword sentiment from a batch of headlines.
// Credibility blends cross-source title overlap (40%) with reputable-host coverage (60%).
func AssessNews(articles []types.NewsItem) types.NewsSentiment {
	if len(articles) == 0 {
		return types.NeutralSentiment()
	}

	head := articles
	if len(head) > crossTitles {
		head = head[:crossTitles]
	}
	sets := make([]map[string]struct{}, len(head))
	for i, a := range head {
		words := strings.Fields(strings.ToLower(a.Title))
		if len(words) > crossWords {
			words = words[:crossWords]
		}
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		sets[i] = set
	}
	matches := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			if overlap(sets[i], sets[j]) >= crossOverlap {
				matches++
			}
		}
	}
	cross := min(1.0, float64(matches)/float64(max(1, len(sets))))

	official := 0
	for _, a := range articles {
		u := strings.ToLower(a.URL)
		for _, h := range officialHosts {
			if strings.Contains(u, h) {
				official++
				break
			}
		}
	}
	officialScore := min(1.0, float64(official)/3.0)

	docs := articles
	if len(docs) > sentimentDocs {
		docs = docs[:sentimentDocs]
	}
	total := 0.0
	for _, a := range docs {
		text := strings.ToLower(a.Title + " " + a.Description)
		total += clamp(float64(countHits(text, positiveWords)-countHits(text, negativeWords))/3.0, -1, 1)
	}

	return types.NewsSentiment{
		Credibility: 0.4*cross + 0.6*officialScore,
		Score:       total / float64(len(docs)),
		Articles:    len(articles),
	}
}

// ApplyWhales nudges sentiment away from zero when whale transfers were observed:
// positive sentiment is reinforced, anything else is pushed further negative.
func ApplyWhales(s types.NewsSentiment, transfers []types.LargeTransfer) types.NewsSentiment {
	s.Whales = len(transfers)
	if len(transfers) == 0 {
		return s
	}
	if s.Score > 0 {
		s.Score += whaleNudge
	} else {
		s.Score -= whaleNudge
	}
	return s
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

func countHits(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}
