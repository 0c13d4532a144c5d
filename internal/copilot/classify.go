// Package copilot implements the operator-facing question-answering
// assistant (spec.md §4.9): rule-based query classification, parameterized
// lender-table retrieval, conversation-memory augmentation, and LLM-backed
// answer synthesis with a template fallback.
package copilot

import (
	"regexp"
	"strings"
)

// QueryType is the closed set of detected intents spec.md §4.9 names.
type QueryType string

const (
	QueryCIBIL          QueryType = "CIBIL"
	QueryPincode        QueryType = "PINCODE"
	QueryLenderSpecific QueryType = "LENDER_SPECIFIC"
	QueryComparison     QueryType = "COMPARISON"
	QueryVintage        QueryType = "VINTAGE"
	QueryTurnover       QueryType = "TURNOVER"
	QueryEntity         QueryType = "ENTITY"
	QueryTicket         QueryType = "TICKET"
	QueryRequirement    QueryType = "REQUIREMENT"
	QueryKnowledge      QueryType = "KNOWLEDGE"
	QueryGeneral        QueryType = "GENERAL"
)

type keywordRule struct {
	queryType QueryType
	patterns  []*regexp.Regexp
}

func compileRule(qt QueryType, exprs ...string) keywordRule {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		patterns = append(patterns, regexp.MustCompile("(?i)"+e))
	}
	return keywordRule{queryType: qt, patterns: patterns}
}

// ruleTable is checked in order; the first matching rule wins. CIBIL and
// pincode intents are ordered ahead of the broader comparison bucket; the
// lender-specific rule is checked last.
var ruleTable = []keywordRule{
	compileRule(QueryCIBIL, `\bcibil\b`, `\bcredit score\b`),
	compileRule(QueryPincode, `\bpincode\b`, `\bpin code\b`, `\bzip\b`, `\bserviceable\b`),
	compileRule(QueryComparison, `\bcompare\b`, `\bvs\.?\b`, `\bversus\b`, `\bwhich (lender|one) is better\b`),
	compileRule(QueryVintage, `\bvintage\b`, `\byears? (old|in business)\b`, `\bhow long\b.*\bbusiness\b`),
	compileRule(QueryTurnover, `\bturnover\b`, `\brevenue\b`, `\bsales\b`),
	compileRule(QueryEntity, `\bentity type\b`, `\bproprietorship\b`, `\bpartnership\b`, `\bprivate limited\b`, `\bpvt ltd\b`),
	compileRule(QueryTicket, `\bticket size\b`, `\bloan amount\b`, `\bmax(imum)? (loan|amount)\b`),
	compileRule(QueryRequirement, `\brequired document`, `\bwhat (do|documents) (i|we) need\b`, `\bchecklist\b`),
	compileRule(QueryLenderSpecific, `\bwhich lenders?\b`, `\blenders? (that|who|offering)\b`, `\beligible lenders?\b`),
}

// domainGlossary holds short definitional terms that resolve directly to
// KNOWLEDGE regardless of the rule table (spec.md §4.9: "two-word queries
// matching a domain-term glossary resolve to KNOWLEDGE").
var domainGlossary = map[string]bool{
	"foir":                true,
	"cibil score":         true,
	"cash ratio":          true,
	"abb":                 true,
	"dpd":                 true,
	"udyam registration":  true,
	"gst certificate":     true,
	"entity type":         true,
	"vintage years":       true,
	"hard filter":         true,
	"soft score":          true,
}

// Classify applies the rule table to queryText, with a glossary short
// circuit for short definitional queries (spec.md §4.9 step 1).
func Classify(queryText string) QueryType {
	trimmed := strings.TrimSpace(queryText)
	normalized := strings.ToLower(strings.TrimRight(trimmed, "?."))
	words := strings.Fields(normalized)

	if len(words) <= 2 {
		if looksLikeDefinitionQuery(normalized) || domainGlossary[normalized] {
			return QueryKnowledge
		}
	}
	if strings.HasPrefix(normalized, "what is ") || strings.HasPrefix(normalized, "define ") {
		term := strings.TrimPrefix(strings.TrimPrefix(normalized, "what is "), "define ")
		term = strings.TrimSpace(term)
		if domainGlossary[term] || len(strings.Fields(term)) <= 2 {
			return QueryKnowledge
		}
	}

	for _, rule := range ruleTable {
		for _, p := range rule.patterns {
			if p.MatchString(trimmed) {
				return rule.queryType
			}
		}
	}
	return QueryGeneral
}

func looksLikeDefinitionQuery(normalized string) bool {
	return domainGlossary[normalized]
}
