package copilot

import (
	"gorm.io/gorm"

	"casepilot/internal/store"
)

// DefaultConversationWindow is spec.md §4.9's fixed memory depth (§9: "fixed
// at last 5 for prompt construction; all queries are still persisted").
const DefaultConversationWindow = 5

// Turn is one remembered (query, response) pair, most recent first.
type Turn struct {
	QueryText    string
	ResponseText string
}

// FetchMemory loads the last `window` queries for operatorID, most recent
// first. All CopilotQuery rows are persisted regardless of window size;
// this only bounds what is fed back into the prompt.
func FetchMemory(db *gorm.DB, operatorID string, window int) ([]Turn, error) {
	if window <= 0 {
		window = DefaultConversationWindow
	}
	var rows []store.CopilotQuery
	err := db.Where("operator_id = ?", operatorID).
		Order("created_at desc").
		Limit(window).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	turns := make([]Turn, 0, len(rows))
	for _, r := range rows {
		turns = append(turns, Turn{QueryText: r.QueryText, ResponseText: r.ResponseText})
	}
	return turns, nil
}
