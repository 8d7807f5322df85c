package evaluation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	CategoryGreeting     = "greeting"
	CategoryIntroduction = "introduction"
	CategoryEdgeCase     = "edge_case"
	CategoryImpossible   = "impossible"
)

type Case struct {
	Question         string   `yaml:"question" json:"question"`
	ExpectedKeywords []string `yaml:"expected_keywords" json:"expected_keywords,omitempty"`
	ExpectedTopics   []string `yaml:"expected_topics" json:"expected_topics,omitempty"`
	Category         string   `yaml:"category" json:"category,omitempty"`
}

func (c Case) IsGreetingCategory() bool {
	return c.Category == CategoryGreeting || c.Category == CategoryIntroduction
}

func (c Case) IsEdgeCategory() bool {
	return c.Category == CategoryEdgeCase || c.Category == CategoryImpossible
}

type caseFile struct {
	TestQuestions []Case `yaml:"test_questions"`
}

// LoadCases reads a question set. The file is either a list of cases or a
// mapping with a test_questions list; JSON files parse the same way.
func LoadCases(path string) ([]Case, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question set failed: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse question set %s failed: %w", path, err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("question set %s is empty", path)
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var cases []Case
		if err := root.Decode(&cases); err != nil {
			return nil, fmt.Errorf("decode question set failed: %w", err)
		}
		return cases, nil
	case yaml.MappingNode:
		var file caseFile
		if err := root.Decode(&file); err != nil {
			return nil, fmt.Errorf("decode question set failed: %w", err)
		}
		return file.TestQuestions, nil
	default:
		return nil, fmt.Errorf("question set %s must be a list or a mapping", path)
	}
}
