// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package decomposer

import (
	"regexp"
	"strings"

	"open-swarm/pkg/types"
)

// templateTask is a task skeleton within a template. ID and
// Dependencies are template-local placeholders ("t1", "t2", ...)
// rewritten to session-scoped ids by decompose.
type templateTask struct {
	ID           string
	Description  string
	Category     types.Category
	Dependencies []string
	Priority     int
	Complexity   types.Complexity
}

// decompositionTemplate is one keyword-matched decomposition recipe.
type decompositionTemplate struct {
	Name    string
	Pattern *regexp.Regexp
	Tasks   []templateTask
}

// matches reports whether objective triggers this template. The
// generic template has a nil Pattern and always matches as the
// fallback of last resort.
func (t decompositionTemplate) matches(objective string) bool {
	if t.Pattern == nil {
		return true
	}
	return t.Pattern.MatchString(strings.ToLower(objective))
}

// templates lists every decomposition recipe in match-priority order.
// The generic design->implement->test triad is last: it always
// matches, so it only fires when nothing more specific does.
var templates = []decompositionTemplate{
	loginTemplate,
	paginationTemplate,
	profileTemplate,
	genericTemplate,
}

// loginTemplate matches English "login"/"auth(entication)" and the
// Japanese "ログイン"/"認証", per the literal scenario in spec §8
// ("Webアプリのログイン機能を作成する").
var loginTemplate = decompositionTemplate{
	Name:    "login",
	Pattern: regexp.MustCompile(`login|auth|ログイン|認証`),
	Tasks: []templateTask{
		{ID: "t1", Description: "Design authentication flow and session model", Category: types.CategoryDesign, Priority: 1, Complexity: types.ComplexityMedium},
		{ID: "t2", Description: "Implement login endpoint and credential verification", Category: types.CategoryImplement, Priority: 1, Complexity: types.ComplexityHigh, Dependencies: []string{"t1"}},
		{ID: "t3", Description: "Implement session/token issuance and storage", Category: types.CategoryImplement, Priority: 2, Complexity: types.ComplexityMedium, Dependencies: []string{"t1"}},
		{ID: "t4", Description: "Write authentication flow tests", Category: types.CategoryTest, Priority: 2, Complexity: types.ComplexityMedium, Dependencies: []string{"t2", "t3"}},
		{ID: "t5", Description: "Document authentication API", Category: types.CategoryDocument, Priority: 3, Complexity: types.ComplexityLow, Dependencies: []string{"t2", "t3"}},
	},
}

// paginationTemplate matches English "pagination"/"paginate" and the
// Japanese "ページネーション"/"ページング".
var paginationTemplate = decompositionTemplate{
	Name:    "pagination",
	Pattern: regexp.MustCompile(`pagination|paginate|ページネーション|ページング`),
	Tasks: []templateTask{
		{ID: "t1", Description: "Design page/cursor parameters and response envelope", Category: types.CategoryDesign, Priority: 1, Complexity: types.ComplexityLow},
		{ID: "t2", Description: "Implement paginated query and response serialization", Category: types.CategoryImplement, Priority: 1, Complexity: types.ComplexityMedium, Dependencies: []string{"t1"}},
		{ID: "t3", Description: "Write pagination boundary tests (empty, single page, last page)", Category: types.CategoryTest, Priority: 2, Complexity: types.ComplexityMedium, Dependencies: []string{"t2"}},
	},
}

// profileTemplate matches English "profile" and the Japanese
// "プロフィール".
var profileTemplate = decompositionTemplate{
	Name:    "profile",
	Pattern: regexp.MustCompile(`profile|プロフィール`),
	Tasks: []templateTask{
		{ID: "t1", Description: "Design user profile schema", Category: types.CategoryDesign, Priority: 1, Complexity: types.ComplexityLow},
		{ID: "t2", Description: "Implement profile read/update endpoints", Category: types.CategoryImplement, Priority: 1, Complexity: types.ComplexityMedium, Dependencies: []string{"t1"}},
		{ID: "t3", Description: "Implement avatar/asset handling", Category: types.CategoryImplement, Priority: 2, Complexity: types.ComplexityMedium, Dependencies: []string{"t1"}},
		{ID: "t4", Description: "Write profile endpoint tests", Category: types.CategoryTest, Priority: 2, Complexity: types.ComplexityMedium, Dependencies: []string{"t2", "t3"}},
	},
}

// genericTemplate is the design->implement->test fallback used when no
// keyword template matches the objective.
var genericTemplate = decompositionTemplate{
	Name:    "generic",
	Pattern: nil,
	Tasks: []templateTask{
		{ID: "t1", Description: "Design solution", Category: types.CategoryDesign, Priority: 1, Complexity: types.ComplexityMedium},
		{ID: "t2", Description: "Implement solution", Category: types.CategoryImplement, Priority: 1, Complexity: types.ComplexityHigh, Dependencies: []string{"t1"}},
		{ID: "t3", Description: "Test solution", Category: types.CategoryTest, Priority: 2, Complexity: types.ComplexityMedium, Dependencies: []string{"t2"}},
	},
}
