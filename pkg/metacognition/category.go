// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metacognition classifies agent tasks and derives learning
// diagnostics (trend, calibration, difficulty) from past decision outcomes.
package metacognition

import "strings"

// Canonical task categories.
const (
	CategoryDebugging      = "debugging"
	CategoryRefactoring    = "refactoring"
	CategoryCodeGeneration = "code_generation"
	CategoryPlanning       = "planning"
	CategoryOperations     = "operations"
	CategoryQA             = "qa"
	CategoryGeneral        = "general"
)

type keywordFamily struct {
	category string
	keywords []string
}

// Order matters: the first family with a hit wins.
var keywordFamilies = []keywordFamily{
	{CategoryDebugging, []string{"debug", "fix", "error", "panic", "trace", "failure", "flaky"}},
	{CategoryRefactoring, []string{"refactor", "cleanup", "rename", "extract"}},
	{CategoryCodeGeneration, []string{"implement", "build", "create", "feature", "write code"}},
	{CategoryPlanning, []string{"plan", "roadmap", "milestone", "spec", "tasks"}},
	{CategoryOperations, []string{"deploy", "release", "incident", "runbook", "ops"}},
	{CategoryQA, []string{"why", "what", "summarize", "explain", "status", "question"}},
}

// InferTaskCategory classifies a prompt by substring keyword match.
func InferTaskCategory(prompt string) string {
	normalized := strings.ToLower(prompt)
	for _, family := range keywordFamilies {
		for _, kw := range family.keywords {
			if strings.Contains(normalized, kw) {
				return family.category
			}
		}
	}
	return CategoryGeneral
}

var categorySynonyms = map[string]string{
	"debugging":       CategoryDebugging,
	"debug":           CategoryDebugging,
	"bugfix":          CategoryDebugging,
	"bug_fix":         CategoryDebugging,
	"bug":             CategoryDebugging,
	"fix":             CategoryDebugging,
	"troubleshooting": CategoryDebugging,
	"troubleshoot":    CategoryDebugging,

	"refactoring": CategoryRefactoring,
	"refactor":    CategoryRefactoring,
	"cleanup":     CategoryRefactoring,
	"clean_up":    CategoryRefactoring,

	"code_generation": CategoryCodeGeneration,
	"codegen":         CategoryCodeGeneration,
	"code_gen":        CategoryCodeGeneration,
	"generation":      CategoryCodeGeneration,
	"implementation":  CategoryCodeGeneration,
	"implement":       CategoryCodeGeneration,
	"feature":         CategoryCodeGeneration,
	"coding":          CategoryCodeGeneration,

	"planning": CategoryPlanning,
	"plan":     CategoryPlanning,
	"roadmap":  CategoryPlanning,

	"operations": CategoryOperations,
	"ops":        CategoryOperations,
	"devops":     CategoryOperations,
	"deployment": CategoryOperations,
	"deploy":     CategoryOperations,
	"incident":   CategoryOperations,
	"release":    CategoryOperations,

	"qa":          CategoryQA,
	"q_a":         CategoryQA,
	"qna":         CategoryQA,
	"question":    CategoryQA,
	"questions":   CategoryQA,
	"explain":     CategoryQA,
	"explanation": CategoryQA,

	"general": CategoryGeneral,
	"misc":    CategoryGeneral,
	"other":   CategoryGeneral,
	"default": CategoryGeneral,
}

// CanonicalizeCategory normalizes a free-form category label.
//
// The label is lowercased, every run of non-alphanumeric characters becomes
// one underscore and edge underscores are trimmed. Known synonyms map into
// the closed category set, debug-prefixed variants become
// "debugging_<suffix>", and anything else passes through normalized.
// An empty result is "general". The function is idempotent.
func CanonicalizeCategory(raw string) string {
	normalized := normalizeLabel(raw)
	if normalized == "" {
		return CategoryGeneral
	}
	if canonical, ok := categorySynonyms[normalized]; ok {
		return canonical
	}
	if suffix, ok := strings.CutPrefix(normalized, "debugging_"); ok && suffix != "" {
		return normalized
	}
	if suffix, ok := strings.CutPrefix(normalized, "debug_"); ok && suffix != "" {
		return CategoryDebugging + "_" + suffix
	}
	return normalized
}

func normalizeLabel(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	pendingSep := false
	for _, r := range strings.ToLower(raw) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
