package copilot

import "testing"

func TestClassifyKeywordRules(t *testing.T) {
	cases := map[string]QueryType{
		"What CIBIL score do I need for this case?":        QueryCIBIL,
		"Is pincode 560001 serviceable?":                    QueryPincode,
		"Compare Lender A vs Lender B for this borrower":    QueryComparison,
		"How many years vintage does the business need?":   QueryVintage,
		"What turnover is required for this product?":       QueryTurnover,
		"Does this product accept a partnership entity type?": QueryEntity,
		"What is the maximum loan amount for this profile?":  QueryTicket,
		"What required documents do I need to upload?":       QueryRequirement,
		"Which lenders offer eligibility for this borrower?": QueryLenderSpecific,
		"Tell me something about the weather":                QueryGeneral,
	}
	for text, want := range cases {
		got := Classify(text)
		if got != want {
			t.Errorf("Classify(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestClassifyKnowledgeGlossaryShortCircuit(t *testing.T) {
	cases := []string{"FOIR", "foir?", "CIBIL score", "What is FOIR"}
	for _, text := range cases {
		if got := Classify(text); got != QueryKnowledge {
			t.Errorf("Classify(%q) = %s, want KNOWLEDGE", text, got)
		}
	}
}
