package copilot

import (
	"fmt"
	"strings"

	"casepilot/internal/copilot/llm"
	"casepilot/internal/store"
)

// systemPrompt is the fixed domain glossary spec.md §4.9 step 4 calls for:
// "a fixed domain system prompt (glossary of loan terms and lenders)".
const systemPrompt = `You are a loan-eligibility copilot for MSME lending operators in India.
Glossary: CIBIL score (credit bureau score, 300-900), FOIR (fixed obligation
to income ratio), ABB (average bank balance), vintage (years since
incorporation/GST registration), DPD (days past due), hard filter (binary
eligibility gate), soft score (weighted eligibility score 0-100).
Answer using only the retrieved lender rows and conversation history
provided below. If the rows do not cover the question, say so plainly.
Keep answers to a few sentences; this is an operator tool, not a chat app.`

// composeMessages builds the system+history+retrieval+query message list
// spec.md §4.9 step 4 specifies.
func composeMessages(history []Turn, products []store.LenderProduct, queryText string) []llm.Message {
	messages := []llm.Message{{Role: "system", Content: systemPrompt}}

	for i := len(history) - 1; i >= 0; i-- {
		messages = append(messages,
			llm.Message{Role: "user", Content: history[i].QueryText},
			llm.Message{Role: "assistant", Content: history[i].ResponseText},
		)
	}

	if len(products) > 0 {
		var b strings.Builder
		b.WriteString("Retrieved lender rows:\n")
		for _, p := range products {
			fmt.Fprintf(&b, "- %s / %s: min CIBIL %d, min vintage %.1fy, min turnover %.0f, max ticket %.0f\n",
				p.LenderName, p.ProductName, p.MinCIBILScore, p.MinVintageYears, p.MinTurnoverAnnual, p.MaxTicketSize)
		}
		messages = append(messages, llm.Message{Role: "system", Content: b.String()})
	}

	messages = append(messages, llm.Message{Role: "user", Content: queryText})
	return messages
}

// renderTemplate builds the fallback answer spec.md §4.9 step 6 requires
// when the LLM errors or has no credentials, built purely from retrieved
// rows (no model call).
func renderTemplate(queryType QueryType, products []store.LenderProduct) string {
	if len(products) == 0 {
		return fmt.Sprintf("No active lender products matched this %s query.", strings.ToLower(string(queryType)))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d matching lender product(s):\n", len(products))
	for _, p := range products {
		fmt.Fprintf(&b, "- %s (%s): min CIBIL %d, min vintage %.1fy, min turnover %.0f, max ticket %.0f\n",
			p.LenderName, p.ProductName, p.MinCIBILScore, p.MinVintageYears, p.MinTurnoverAnnual, p.MaxTicketSize)
	}
	return b.String()
}
