package scoring

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ----------------------------------------------------------------------------
// Options

type Option func(*lexicalConfig)

type lexicalConfig struct {
	locale     language.Tag
	keywords   []string
	stopwords  []string
	minWords   int
	fastReply  time.Duration
	slowReply  time.Duration
	trendDepth int
	weights    Weights
}

// Weights balances the four signals of the Lexical scorer. They are
// normalised, so only their ratios matter.
type Weights struct {
	Length  float64
	Themes  float64
	Latency float64
	Trend   float64
}

func defaultLexicalConfig() lexicalConfig {
	return lexicalConfig{
		locale:     language.Und,
		minWords:   3,
		fastReply:  2 * time.Minute,
		slowReply:  30 * time.Minute,
		trendDepth: 3,
		weights:    Weights{Length: 0.4, Themes: 0.35, Latency: 0.15, Trend: 0.1},
	}
}

// WithLocale sets the casing rules used when folding words.
func WithLocale(tag language.Tag) Option {
	return func(c *lexicalConfig) { c.locale = tag }
}

// WithKeywords sets the stage themes a reply is expected to touch.
func WithKeywords(words ...string) Option {
	return func(c *lexicalConfig) { c.keywords = append(c.keywords, words...) }
}

// WithStopwords drops the given words before any signal is computed.
func WithStopwords(words ...string) Option {
	return func(c *lexicalConfig) { c.stopwords = append(c.stopwords, words...) }
}

// WithMinWords sets how many words a reply needs for a full length signal.
func WithMinWords(n int) Option {
	return func(c *lexicalConfig) {
		if n > 0 {
			c.minWords = n
		}
	}
}

// WithLatencyWindow sets the reply latency range: at or below fast the
// latency signal is 1, at or beyond slow it is 0, linear in between.
func WithLatencyWindow(fast, slow time.Duration) Option {
	return func(c *lexicalConfig) {
		if fast >= 0 && slow > fast {
			c.fastReply, c.slowReply = fast, slow
		}
	}
}

// WithWeights overrides the signal weights. All-zero weights are ignored.
func WithWeights(w Weights) Option {
	return func(c *lexicalConfig) {
		if w.Length < 0 || w.Themes < 0 || w.Latency < 0 || w.Trend < 0 {
			return
		}
		if w.Length+w.Themes+w.Latency+w.Trend > 0 {
			c.weights = w
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

// Lexical scores a reply from its length, its overlap with the stage themes,
// how fast the user answered, and the trend of earlier scores.
// It is immutable after construction and safe for concurrent use.
type Lexical struct {
	cfg       lexicalConfig
	keywords  map[string]struct{}
	stopwords map[string]struct{}
}

// NewLexical builds a Lexical scorer.
func NewLexical(opts ...Option) *Lexical {
	cfg := defaultLexicalConfig()
	for _, o := range opts {
		o(&cfg)
	}
	l := &Lexical{cfg: cfg}
	l.keywords = l.wordSet(cfg.keywords)
	l.stopwords = l.wordSet(cfg.stopwords)
	return l
}

// Score implements Scorer.
func (l *Lexical) Score(in Input, history []float64) Verdict {
	words := l.tokenize(in.Text)
	if len(words) == 0 {
		// Non-text interactions (reactions, check-ins) only carry timing.
		s := l.combine(0, 0, l.latencySignal(in.Latency), l.trendSignal(history))
		return Verdict{Score: s, Rationale: "no reply text to evaluate"}
	}

	signals := []signal{
		{name: "length", value: l.lengthSignal(words), weight: l.cfg.weights.Length},
		{name: "themes", value: l.themeSignal(words), weight: l.cfg.weights.Themes},
		{name: "latency", value: l.latencySignal(in.Latency), weight: l.cfg.weights.Latency},
		{name: "trend", value: l.trendSignal(history), weight: l.cfg.weights.Trend},
	}
	score := l.combine(signals[0].value, signals[1].value, signals[2].value, signals[3].value)
	return Verdict{Score: score, Rationale: rationale(signals)}
}

type signal struct {
	name   string
	value  float64
	weight float64
}

func (l *Lexical) combine(length, themes, latency, trend float64) float64 {
	w := l.cfg.weights
	total := w.Length + w.Themes + w.Latency + w.Trend
	if total <= 0 {
		return 0
	}
	return Clamp((w.Length*length + w.Themes*themes + w.Latency*latency + w.Trend*trend) / total)
}

// lengthSignal saturates at minWords.
func (l *Lexical) lengthSignal(words []string) float64 {
	return Clamp(float64(len(words)) / float64(l.cfg.minWords))
}

// themeSignal is the share of (up to three) stage themes the reply touches.
// Without configured themes, lexical variety stands in.
func (l *Lexical) themeSignal(words []string) float64 {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	if len(l.keywords) == 0 {
		return float64(len(set)) / float64(len(words))
	}
	want := min(len(l.keywords), 3)
	return Clamp(float64(overlap(set, l.keywords)) / float64(want))
}

// latencySignal is neutral when the latency is unknown.
func (l *Lexical) latencySignal(d time.Duration) float64 {
	switch {
	case d <= 0:
		return 0.5
	case d <= l.cfg.fastReply:
		return 1
	case d >= l.cfg.slowReply:
		return 0
	}
	span := float64(l.cfg.slowReply - l.cfg.fastReply)
	return 1 - float64(d-l.cfg.fastReply)/span
}

// trendSignal averages the last trendDepth scores; neutral without history.
func (l *Lexical) trendSignal(history []float64) float64 {
	if len(history) == 0 {
		return 0.5
	}
	if len(history) > l.cfg.trendDepth {
		history = history[len(history)-l.cfg.trendDepth:]
	}
	var sum float64
	for _, h := range history {
		sum += Clamp(h)
	}
	return sum / float64(len(history))
}

var rationales = map[string]string{
	"length":  "reply is too short for this stage",
	"themes":  "reply does not touch what this stage is about",
	"latency": "reply came too late",
	"trend":   "recent replies have been weak",
}

// rationale names the signal that cost the most score.
func rationale(signals []signal) string {
	worst, lost := "", 0.0
	for _, s := range signals {
		if miss := (1 - s.value) * s.weight; miss > lost {
			worst, lost = s.name, miss
		}
	}
	if worst == "" {
		return "reply meets every expectation of this stage"
	}
	return rationales[worst]
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

func (l *Lexical) tokenize(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	s = l.fold(s)
	raw := wordRE.FindAllString(s, -1)
	out := raw[:0]
	for _, w := range raw {
		if _, skip := l.stopwords[w]; skip {
			continue
		}
		out = append(out, w)
	}
	return out
}

// fold lowercases with the configured locale, then applies Unicode case
// folding so replies and themes compare equal regardless of script quirks.
// Casers keep state, so a fresh folder is used per call.
func (l *Lexical) fold(s string) string {
	return cases.Fold().String(cases.Lower(l.cfg.locale).String(s))
}

func (l *Lexical) wordSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = l.fold(strings.TrimSpace(w))
		if w != "" {
			m[w] = struct{}{}
		}
	}
	return m
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
