package classifier

import (
	"strings"
	"unicode"
)

type heuristicRule struct {
	category   string
	confidence float64
	reason     string
	marks      string
	// terms match whole words; a trailing * matches a word prefix.
	terms []string
}

var heuristicRules = []heuristicRule{
	{
		category:   CategoryGreeting,
		confidence: 0.7,
		reason:     "greeting words",
		terms:      []string{"привет*", "здравствуй*", "здрасте", "хай", "hi", "hello", "hey"},
	},
	{
		category:   CategoryQuestion,
		confidence: 0.7,
		reason:     "question form",
		marks:      "?",
		terms: []string{
			"как", "что", "почему", "зачем", "где", "когда", "кто", "сколько", "какой*",
			"what", "why", "how", "where", "when", "who",
		},
	},
	{
		category:   CategoryFeedback,
		confidence: 0.8,
		reason:     "gratitude",
		terms:      []string{"спасиб*", "благодар*", "thanks", "thank", "thx"},
	},
	{
		category:   CategoryRequest,
		confidence: 0.6,
		reason:     "request words",
		terms:      []string{"помоги*", "помочь", "сделай*", "нужн*", "можешь", "пожалуйста", "please", "help"},
	},
}

var fallbackRule = heuristicRule{category: CategoryCasual, confidence: 0.5, reason: "no markers"}

func matchHeuristic(text string) heuristicRule {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, rule := range heuristicRules {
		if rule.marks != "" && strings.ContainsAny(lower, rule.marks) {
			return rule
		}
		if containsTerm(words, rule.terms) {
			return rule
		}
	}
	return fallbackRule
}

func containsTerm(words, terms []string) bool {
	for _, word := range words {
		for _, term := range terms {
			if prefix, ok := strings.CutSuffix(term, "*"); ok {
				if strings.HasPrefix(word, prefix) {
					return true
				}
				continue
			}
			if word == term {
				return true
			}
		}
	}
	return false
}
