package wiql

import (
	"fmt"
	"strings"
)

// TestCaseType is the work item type of test cases.
const TestCaseType = "Test Case"

// QueryBuilder constructs safe WIQL query strings.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type QueryBuilder struct{}

// TestCaseParams defines inputs for test-case export queries.
type TestCaseParams struct {
	Project  string
	AreaPath string
	States   []string
}

// BuildTestCaseQuery returns a WIQL query selecting the ids of test cases
// under an area path, oldest first.
func (b QueryBuilder) BuildTestCaseQuery(p TestCaseParams) string {
	conds := []string{
		fmt.Sprintf("[System.WorkItemType] = %s", Quote(TestCaseType)),
	}
	if p.Project != "" {
		conds = append([]string{fmt.Sprintf("[System.TeamProject] = %s", Quote(p.Project))}, conds...)
	}
	if ac := b.buildAreaFilter(p.AreaPath); ac != "" {
		conds = append(conds, ac)
	}
	if sc := b.buildStateFilter(p.States); sc != "" {
		conds = append(conds, sc)
	}

	return fmt.Sprintf("SELECT [System.Id] FROM WorkItems WHERE %s ORDER BY [System.Id] ASC",
		strings.Join(conds, " AND "))
}

func (b QueryBuilder) buildAreaFilter(areaPath string) string {
	if areaPath == "" {
		return ""
	}
	return fmt.Sprintf("[System.AreaPath] UNDER %s", Quote(areaPath))
}

func (b QueryBuilder) buildStateFilter(states []string) string {
	quoted := make([]string, 0, len(states))
	for _, s := range states {
		if s = strings.TrimSpace(s); s != "" {
			quoted = append(quoted, Quote(s))
		}
	}
	if len(quoted) == 0 {
		return ""
	}
	return fmt.Sprintf("[System.State] IN (%s)", strings.Join(quoted, ", "))
}

// Quote returns s as a WIQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
