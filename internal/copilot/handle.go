package copilot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"casepilot/internal/copilot/llm"
	"casepilot/internal/store"
)

// Request is one Copilot interaction, matching spec.md §4.9's input shape.
type Request struct {
	OperatorID string
	CaseID     *uuid.UUID
	QueryText  string
}

// Answer is returned to the caller and is also the shape persisted as a
// CopilotQuery row.
type Answer struct {
	ResponseText string
	QueryType    QueryType
	Sources      []store.LenderProduct
}

// Handler wires the database, LLM client, and memory window together.
type Handler struct {
	DB                 *gorm.DB
	LLM                *llm.Client
	ConversationWindow int
	Timeout            time.Duration
	Now                func() time.Time
}

// NewHandler constructs a Handler with spec.md §4.9's defaults filled in.
func NewHandler(db *gorm.DB, llmClient *llm.Client) *Handler {
	return &Handler{
		DB:                 db,
		LLM:                llmClient,
		ConversationWindow: DefaultConversationWindow,
		Timeout:            30 * time.Second,
		Now:                time.Now,
	}
}

// Handle runs the full spec.md §4.9 pipeline: classify, retrieve (skipped
// for KNOWLEDGE), fetch memory, compose, call the LLM with a template
// fallback, then persist the interaction.
func (h *Handler) Handle(ctx context.Context, req Request) (*Answer, error) {
	queryType := Classify(req.QueryText)

	var products []store.LenderProduct
	if queryType != QueryKnowledge {
		var err error
		products, err = Retrieve(h.DB, queryType, req.QueryText)
		if err != nil {
			return nil, err
		}
	}

	history, err := FetchMemory(h.DB, req.OperatorID, h.ConversationWindow)
	if err != nil {
		return nil, err
	}

	responseText := h.answer(ctx, queryType, req.QueryText, history, products)

	sourcesJSON, err := json.Marshal(products)
	if err != nil {
		sourcesJSON = []byte("[]")
	}
	record := store.CopilotQuery{
		ID:               uuid.New(),
		OperatorID:       req.OperatorID,
		CaseID:           req.CaseID,
		QueryText:        req.QueryText,
		DetectedType:     string(queryType),
		RetrievedSources: sourcesJSON,
		ResponseText:     responseText,
		CreatedAt:        h.now(),
	}
	if err := h.DB.Create(&record).Error; err != nil {
		return nil, err
	}

	return &Answer{ResponseText: responseText, QueryType: queryType, Sources: products}, nil
}

func (h *Handler) answer(ctx context.Context, queryType QueryType, queryText string, history []Turn, products []store.LenderProduct) string {
	if queryType == QueryKnowledge {
		if canned, ok := LookupKnowledge(queryText); ok && !h.LLM.Configured() {
			return canned
		}
	}

	if h.LLM.Configured() {
		callCtx, cancel := context.WithTimeout(ctx, h.Timeout)
		defer cancel()
		messages := composeMessages(history, products, queryText)
		if text, err := h.LLM.Complete(callCtx, messages); err == nil && text != "" {
			return text
		}
	}

	if queryType == QueryKnowledge {
		if canned, ok := LookupKnowledge(queryText); ok {
			return canned
		}
		return unavailableNotice(queryText)
	}
	return renderTemplate(queryType, products)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
