package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"casepilot/internal/copilot/llm"
	"casepilot/internal/store"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := store.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	return db
}

func marshalOrPanic(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func TestRetrieveByCIBILFiltersByThreshold(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&store.LenderProduct{
		ID: uuid.New(), LenderName: "Lender A", ProductName: "Term Loan",
		IsActive: true, PolicyAvailable: true, MinCIBILScore: 700,
		EligibleEntityTypes: marshalOrPanic([]string{}), RequiredDocuments: marshalOrPanic([]string{}),
	}).Error)
	require.NoError(t, db.Create(&store.LenderProduct{
		ID: uuid.New(), LenderName: "Lender B", ProductName: "Term Loan",
		IsActive: true, PolicyAvailable: true, MinCIBILScore: 750,
		EligibleEntityTypes: marshalOrPanic([]string{}), RequiredDocuments: marshalOrPanic([]string{}),
	}).Error)

	products, err := Retrieve(db, QueryCIBIL, "my borrower has a 720 cibil score, who qualifies?")
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "Lender A", products[0].LenderName)
}

func TestRetrieveByPincodeJoinsLenderPincode(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&store.LenderProduct{
		ID: uuid.New(), LenderName: "Lender A", ProductName: "Term Loan",
		IsActive: true, PolicyAvailable: true,
		EligibleEntityTypes: marshalOrPanic([]string{}), RequiredDocuments: marshalOrPanic([]string{}),
	}).Error)
	require.NoError(t, db.Create(&store.LenderPincode{ID: uuid.New(), LenderName: "Lender A", Pincode: "560001"}).Error)

	products, err := Retrieve(db, QueryPincode, "is pincode 560001 serviceable?")
	require.NoError(t, err)
	require.Len(t, products, 1)

	products, err = Retrieve(db, QueryPincode, "is pincode 110001 serviceable?")
	require.NoError(t, err)
	require.Len(t, products, 0)
}

func TestFetchMemoryReturnsMostRecentFirst(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&store.CopilotQuery{
			ID: uuid.New(), OperatorID: "op-1",
			QueryText: fmt.Sprintf("query %d", i), ResponseText: fmt.Sprintf("response %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}

	turns, err := FetchMemory(db, "op-1", 5)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	require.Equal(t, "query 2", turns[0].QueryText)
	require.Equal(t, "query 0", turns[2].QueryText)
}

func TestHandleKnowledgeQuerySkipsRetrievalAndPersists(t *testing.T) {
	db := setupTestDB(t)
	h := NewHandler(db, llm.NewClient(llm.Config{}))
	h.Now = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	answer, err := h.Handle(context.Background(), Request{OperatorID: "op-1", QueryText: "what is FOIR"})
	require.NoError(t, err)
	require.Equal(t, QueryKnowledge, answer.QueryType)
	require.Contains(t, answer.ResponseText, "Fixed Obligation to Income Ratio")
	require.Empty(t, answer.Sources)

	var record store.CopilotQuery
	require.NoError(t, db.First(&record, "operator_id = ?", "op-1").Error)
	require.Equal(t, "KNOWLEDGE", record.DetectedType)
}

func TestHandleCIBILQueryFallsBackToTemplateWithoutLLMCredentials(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&store.LenderProduct{
		ID: uuid.New(), LenderName: "Lender A", ProductName: "Term Loan",
		IsActive: true, PolicyAvailable: true, MinCIBILScore: 650,
		EligibleEntityTypes: marshalOrPanic([]string{}), RequiredDocuments: marshalOrPanic([]string{}),
	}).Error)
	h := NewHandler(db, llm.NewClient(llm.Config{}))

	answer, err := h.Handle(context.Background(), Request{OperatorID: "op-2", QueryText: "cibil score 700, who qualifies"})
	require.NoError(t, err)
	require.Equal(t, QueryCIBIL, answer.QueryType)
	require.Contains(t, answer.ResponseText, "Lender A")
	require.Len(t, answer.Sources, 1)
}
