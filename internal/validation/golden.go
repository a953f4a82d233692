package validation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GoldenQuery is one expected-retrieval check: the query must return at
// least one result matching an expected URL pattern at or above MinScore.
// For the negative query the expectation is inverted: no result may reach
// MinScore.
type GoldenQuery struct {
	Query               string   `yaml:"query"`
	ExpectedURLPatterns []string `yaml:"expected_url_patterns"`
	MinScore            float32  `yaml:"min_score"`
}

// TestSet is a golden test set plus one out-of-domain negative query.
type TestSet struct {
	Golden   []GoldenQuery `yaml:"golden"`
	Negative GoldenQuery   `yaml:"negative"`
}

// DefaultTestSet returns the compiled-in test set for the Physical AI &
// Robotics corpus. Thresholds are tuned for a small corpus; raise them as
// more content is ingested.
func DefaultTestSet() TestSet {
	return TestSet{
		Golden: []GoldenQuery{
			{
				Query:               "What is inverse kinematics?",
				ExpectedURLPatterns: []string{"/docs/module1-ros2-fundamentals", "/docs/module3-advanced-robotics"},
				MinScore:            0.25,
			},
			{
				Query:               "How does robot arm control work?",
				ExpectedURLPatterns: []string{"/docs/module1-ros2-fundamentals/chapter3", "/docs/module3-advanced-robotics/chapter8"},
				MinScore:            0.4,
			},
			{
				Query:               "Explain sensor fusion techniques",
				ExpectedURLPatterns: []string{"/docs/module4-vla-systems", "/docs/module1-ros2-fundamentals", "/docs/module2-simulation"},
				MinScore:            0.25,
			},
			{
				Query:               "What is motion planning for robots?",
				ExpectedURLPatterns: []string{"/docs/module1-ros2-fundamentals", "/docs/module2-simulation", "/docs/module3-advanced-robotics"},
				MinScore:            0.4,
			},
			{
				Query:               "How do coordinate transforms work?",
				ExpectedURLPatterns: []string{"/docs/module1-ros2-fundamentals", "/docs/introduction", "/docs/module3-advanced-robotics"},
				MinScore:            0.2,
			},
		},
		Negative: GoldenQuery{
			Query:    "What is the best pizza recipe?",
			MinScore: 0.3,
		},
	}
}

// LoadTestSet reads a YAML test set from path. An empty path returns the
// compiled-in default set.
func LoadTestSet(path string) (TestSet, error) {
	if path == "" {
		return DefaultTestSet(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return TestSet{}, fmt.Errorf("validation: failed to read %s: %w", path, err)
	}

	var set TestSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return TestSet{}, fmt.Errorf("validation: failed to parse %s: %w", path, err)
	}
	if len(set.Golden) == 0 {
		return TestSet{}, fmt.Errorf("validation: test set %s contains no golden queries", path)
	}
	if set.Negative.Query == "" {
		set.Negative = DefaultTestSet().Negative
	}
	return set, nil
}
