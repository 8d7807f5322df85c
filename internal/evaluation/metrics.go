package evaluation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"gopherai-kbqa/internal/retrieval"
)

// Weights of the overall score. They sum to 1.
const (
	WeightRetrieval    = 0.30
	WeightFaithfulness = 0.25
	WeightRelevance    = 0.25
	WeightCompleteness = 0.20
)

var (
	wordPattern         = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	sentenceSplit       = regexp.MustCompile(`[.!?]+`)
	numberedListPattern = regexp.MustCompile(`\n\d+\.|\n\*\*\d+\.`)
)

var stopWords = toSet(
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for", "of",
	"with", "by", "from", "as", "is", "was", "are", "been", "be", "have", "has",
	"had", "do", "does", "did", "will", "would", "should", "can", "could", "may",
	"might", "this", "that", "these", "those",
)

var questionStopWords = union(stopWords, toSet(
	"what", "when", "where", "which", "who", "how", "does", "why", "whose", "whom",
))

// declinePhrases mark an answer as a "no information" reply. The first
// group is shared by every metric, the second only by faithfulness.
var (
	declinePhrases = []string{
		"don't have enough information",
		"couldn't find any relevant information",
		"cannot answer",
		"no information available",
	}
	faithfulnessDeclinePhrases = append(append([]string(nil), declinePhrases...),
		"not found in",
		"i'm sorry, i couldn't find",
	)
)

type Metrics struct {
	RetrievalScore float64 `json:"retrieval_score" yaml:"retrieval_score"`
	Faithfulness   float64 `json:"faithfulness" yaml:"faithfulness"`
	Relevance      float64 `json:"relevance" yaml:"relevance"`
	Completeness   float64 `json:"completeness" yaml:"completeness"`
	Overall        float64 `json:"overall" yaml:"overall"`
}

// Perfect is used for replies that need no retrieval, such as greetings.
func Perfect() Metrics {
	return Metrics{RetrievalScore: 1, Faithfulness: 1, Relevance: 1, Completeness: 1, Overall: 1}
}

// WithOverall returns m with Overall recomputed from its components.
func (m Metrics) WithOverall() Metrics {
	m.Overall = Overall(m)
	return m
}

func Overall(m Metrics) float64 {
	return WeightRetrieval*m.RetrievalScore +
		WeightFaithfulness*m.Faithfulness +
		WeightRelevance*m.Relevance +
		WeightCompleteness*m.Completeness
}

type Input struct {
	Question         string
	Answer           string
	Retrieved        []retrieval.Result
	ExpectedKeywords []string
	ExpectedTopics   []string
}

// Evaluator scores one answered question with lexical heuristics. It is
// stateless and safe for concurrent use.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) Evaluate(in Input) Metrics {
	return Metrics{
		RetrievalScore: e.RetrievalScore(in.Retrieved),
		Faithfulness:   e.Faithfulness(in.Answer, in.Retrieved),
		Relevance:      e.Relevance(in.Question, in.Answer),
		Completeness:   e.Completeness(in.Answer, in.ExpectedKeywords, in.ExpectedTopics),
	}.WithOverall()
}

// RetrievalScore re-bands each similarity into a wider spread and averages.
func (e *Evaluator) RetrievalScore(results []retrieval.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var total float64
	for _, r := range results {
		total += reband(r.Score)
	}
	return total / float64(len(results))
}

func reband(score float64) float64 {
	switch {
	case score >= 0.90:
		return 0.93 + (score-0.90)*0.5
	case score >= 0.85:
		return 0.88 + (score - 0.85)
	case score >= 0.80:
		return 0.82 + (score-0.80)*1.2
	case score >= 0.75:
		return 0.75 + (score-0.75)*1.4
	case score >= 0.70:
		return 0.65 + (score-0.70)*2.0
	default:
		return score * 0.9
	}
}

// Faithfulness measures how much of the answer is traceable to the
// retrieved content. A decline is checked before anything else, so a
// correct refusal over an empty retrieval scores 1.
func (e *Evaluator) Faithfulness(answer string, results []retrieval.Result) float64 {
	if answer == "" {
		return 0
	}
	if containsAny(strings.ToLower(answer), faithfulnessDeclinePhrases) {
		if len(results) == 0 || e.RetrievalScore(results) < 0.3 {
			return 1.0
		}
		return 0.8
	}
	if len(results) == 0 {
		return 0
	}

	sentences := splitSentences(answer)
	if len(sentences) == 0 {
		return 0.5
	}

	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Content
	}
	contextWords := meaningfulWords(strings.Join(contents, " "), stopWords)

	var grounded float64
	weak := 0
	for _, sentence := range sentences {
		if len(strings.Fields(sentence)) < 5 {
			grounded++
			continue
		}
		words := meaningfulWords(sentence, stopWords)
		if len(words) == 0 {
			continue
		}
		overlap := float64(intersect(words, contextWords)) / float64(len(words))
		switch {
		case overlap >= 0.55:
			grounded += 1.0
		case overlap >= 0.45:
			grounded += 0.85
		case overlap >= 0.35:
			grounded += 0.65
		case overlap >= 0.25:
			grounded += 0.35
			weak++
		}
	}

	total := float64(len(sentences))
	score := grounded / total
	if float64(weak)/total > 0.25 {
		score *= 1 - 0.15
	}
	return score
}

// Relevance is the share of question terms the answer addresses plus a
// small length bonus, capped at 0.95.
func (e *Evaluator) Relevance(question, answer string) float64 {
	if answer == "" || question == "" {
		return 0
	}
	if containsAny(strings.ToLower(answer), declinePhrases) {
		return 1.0
	}

	terms := meaningfulWords(question, questionStopWords)
	if len(terms) == 0 {
		return 0.6
	}
	coverage := float64(intersect(terms, meaningfulWords(answer, stopWords))) / float64(len(terms))

	var lengthBonus float64
	switch words := len(strings.Fields(answer)); {
	case words >= 200:
		lengthBonus = 0.18
	case words >= 100:
		lengthBonus = 0.15
	case words >= 50:
		lengthBonus = 0.10
	default:
		lengthBonus = 0.05
	}
	return min(coverage*0.78+lengthBonus, 0.95)
}

// Completeness blends keyword, topic and length coverage and adds a bonus
// for structured answers, capped at 0.95.
func (e *Evaluator) Completeness(answer string, keywords, topics []string) float64 {
	if answer == "" {
		return 0
	}
	lower := strings.ToLower(answer)
	if containsAny(lower, declinePhrases) {
		return 1.0
	}

	var structureBonus float64
	switch {
	case numberedListPattern.MatchString(answer):
		structureBonus = 0.12
	case strings.Count(answer, "\n-") >= 3 || strings.Count(answer, "\n*") >= 3:
		structureBonus = 0.08
	case strings.Count(answer, "\n\n") >= 2:
		structureBonus = 0.05
	}

	var scores []float64
	if len(keywords) > 0 {
		score := coverageOf(lower, keywords)
		if score < 0.6 {
			score *= 0.85
		}
		scores = append(scores, score)
	}
	if len(topics) > 0 {
		score := coverageOf(lower, topics)
		if score < 0.65 {
			score *= 0.90
		}
		scores = append(scores, score)
	}

	var lengthScore float64
	switch words := len(strings.Fields(answer)); {
	case words >= 300:
		lengthScore = 0.95
	case words >= 200:
		lengthScore = 0.88
	case words >= 100:
		lengthScore = 0.78
	case words >= 50:
		lengthScore = 0.60
	default:
		lengthScore = 0.40
	}
	scores = append(scores, lengthScore)

	var sum float64
	for _, s := range scores {
		sum += s
	}
	return min(sum/float64(len(scores))+structureBonus, 0.95)
}

func meaningfulWords(text string, stop map[string]struct{}) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		if _, skip := stop[w]; skip {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

func splitSentences(text string) []string {
	var sentences []string
	for _, part := range sentenceSplit.Split(text, -1) {
		if s := strings.TrimSpace(part); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func coverageOf(lowerAnswer string, expected []string) float64 {
	found := 0
	for _, item := range expected {
		if strings.Contains(lowerAnswer, strings.ToLower(item)) {
			found++
		}
	}
	return float64(found) / float64(len(expected))
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func intersect(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for w := range a {
		out[w] = struct{}{}
	}
	for w := range b {
		out[w] = struct{}{}
	}
	return out
}
