package classify

import (
	"encoding/json"
	"fmt"
	"os"

	"aerocrawl/internal/types"
)

// filterFile is the on-disk filter configuration shape.
type filterFile struct {
	Filters []struct {
		FilterType  string   `json:"FilterType"`
		DisplayName string   `json:"DisplayName"`
		Description string   `json:"Description"`
		Weight      float64  `json:"Weight"`
		Keywords    []string `json:"Keywords"`
	} `json:"Filters"`
	Exclusions []string `json:"Exclusions"`
}

// LoadFilterFile parses a filter configuration file. A missing Weight
// defaults to 1.0. Any malformed content is a ConfigError, surfaced at
// startup before a run begins.
func LoadFilterFile(path string) ([]Category, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &types.ConfigError{File: path, Err: err}
	}

	var ff filterFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, nil, &types.ConfigError{File: path, Err: err}
	}
	if len(ff.Filters) == 0 {
		return nil, nil, &types.ConfigError{File: path, Err: fmt.Errorf("no filters defined")}
	}

	categories := make([]Category, 0, len(ff.Filters))
	for _, f := range ff.Filters {
		if f.FilterType == "" {
			return nil, nil, &types.ConfigError{File: path, Err: fmt.Errorf("filter with empty FilterType")}
		}
		if len(f.Keywords) == 0 {
			return nil, nil, &types.ConfigError{File: path, Err: fmt.Errorf("filter %q has no keywords", f.FilterType)}
		}
		weight := f.Weight
		if weight == 0 {
			weight = 1.0
		}
		categories = append(categories, Category{
			FilterType:  f.FilterType,
			DisplayName: f.DisplayName,
			Description: f.Description,
			Weight:      weight,
			Keywords:    f.Keywords,
		})
	}

	exclusions := ff.Exclusions
	if exclusions == nil {
		exclusions = DefaultExclusions()
	}
	return categories, exclusions, nil
}

// DefaultCategories is the built-in aviation operations filter set, used
// when no filter file is configured.
func DefaultCategories() []Category {
	return []Category{
		{
			FilterType:  "operations",
			DisplayName: "Flight Operations",
			Description: "Operations control, dispatch and crew planning roles",
			Weight:      1.0,
			Keywords: []string{
				"flight operations", "operations officer", "operations controller",
				"operations coordinator", "flight dispatcher", "flight dispatch",
				"crew scheduling", "crew control", "movement control",
				"occ", "ioc", "dispatcher",
			},
		},
		{
			FilterType:  "safety",
			DisplayName: "Safety & Compliance",
			Description: "Flight safety, quality and compliance roles",
			Weight:      1.0,
			Keywords: []string{
				"flight safety", "safety officer", "compliance monitoring",
				"quality assurance", "safety investigator",
			},
		},
		{
			FilterType:  "planning",
			DisplayName: "Flight Planning",
			Description: "Planning, navigation and performance roles",
			Weight:      0.8,
			Keywords: []string{
				"flight planning", "route planning", "navigation services",
				"performance engineer", "slot coordinator",
			},
		},
	}
}

// DefaultExclusions are title patterns that disqualify a posting outright.
func DefaultExclusions() []string {
	return []string{
		`\bcabin\s+crew\b`,
		`\bflight\s+attendant\b`,
		`\bcabin\s+services\b`,
		`\bunpaid\b`,
		`\bvolunteer\b`,
	}
}
