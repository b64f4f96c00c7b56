package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trade-validation-service/internal/evidence"
	"trade-validation-service/internal/extractor"
	"trade-validation-service/internal/models"
	"trade-validation-service/internal/ocr"
	"trade-validation-service/internal/pipeline"
	"trade-validation-service/internal/store"
)

const testConfirmation = `TOTAL RETURN SWAP CONFIRMATION
Trade ID: TRS-2024-001
Party A: Goldman Sachs International
Party B: Deutsche Bank AG
Trade Date: 2024-01-15
Effective Date: 2024-01-17
Scheduled Termination Date: 2025-01-17
Bond Return Payer: PartyA
Bond Return Receiver: PartyB
Local Currency: USD
Notional Amount: 1,000,000.00
USD Notional Amount: 1,000,000.00
Initial Spot Rate: 1.0000
Current Market Price: 101.50
Underlier: US Treasury 4.25% 2034
ISIN: US91282CJK58`

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	recordStore, err := store.NewStore(filepath.Join(t.TempDir(), "records.json"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	ocrClient := ocr.NewClient("", 0)
	p := pipeline.New(recordStore, evidence.NewProcessor(nil, ocrClient), extractor.NewHeuristicExtractor(), nil)

	config := DefaultConfig()
	config.UploadDir = t.TempDir()

	return NewServer(config, recordStore, p, ocrClient), recordStore
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func sampleTrade() models.TRSTrade {
	return models.TRSTrade{
		TradeID:                  "TRS-2024-001",
		PartyA:                   "Goldman Sachs International",
		PartyB:                   "Deutsche Bank AG",
		TradeDate:                "2024-01-15",
		EffectiveDate:            "2024-01-17",
		ScheduledTerminationDate: "2025-01-17",
		BondReturnPayer:          "PartyA",
		BondReturnReceiver:       "PartyB",
		LocalCurrency:            "USD",
		NotionalAmount:           1000000,
		USDNotionalAmount:        1000000,
		InitialSpotRate:          1.0,
		CurrentMarketPrice:       101.5,
		Underlier:                "US Treasury 4.25% 2034",
		ISIN:                     "US91282CJK58",
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/schema/trs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var schema extractor.Schema
	decodeBody(t, rec, &schema)
	if schema.TradeType != "TRS" || len(schema.Fields) != 15 {
		t.Errorf("Unexpected schema: %s with %d fields", schema.TradeType, len(schema.Fields))
	}
}

func TestTradeCRUD(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/trades/trs", sampleTrade())
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created models.TRSTrade
	decodeBody(t, rec, &created)
	if created.ID == "" {
		t.Fatal("Expected assigned id on created trade")
	}

	rec = doJSON(t, router, http.MethodGet, "/api/trades/trs", nil)
	var trades []models.TRSTrade
	decodeBody(t, rec, &trades)
	if len(trades) != 1 {
		t.Fatalf("Expected 1 trade, got %d", len(trades))
	}

	updated := sampleTrade()
	updated.NotionalAmount = 2000000
	rec = doJSON(t, router, http.MethodPut, "/api/trades/trs/"+created.ID, updated)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/trades/trs/"+created.ID, nil)
	var fetched models.TRSTrade
	decodeBody(t, rec, &fetched)
	if fetched.NotionalAmount != 2000000 {
		t.Errorf("Expected updated notional, got %v", fetched.NotionalAmount)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/trades/trs/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/trades/trs/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateTradeInvalid(t *testing.T) {
	s, _ := newTestServer(t)

	trade := sampleTrade()
	trade.BondReturnPayer = "PartyC"
	rec := doJSON(t, s.Router(), http.MethodPost, "/api/trades/trs", trade)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid trade, got %d", rec.Code)
	}
}

func multipartBody(t *testing.T, fieldName, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestImportTrades(t *testing.T) {
	s, recordStore := newTestServer(t)

	csv := `trade_id,party_a,party_b,trade_date,effective_date,scheduled_termination_date,bond_return_payer,bond_return_receiver,local_currency,notional_amount,usd_notional_amount,initial_spot_rate,current_market_price
TRS-1,Citi,UBS AG,2024-02-01,2024-02-03,2025-02-03,PartyA,PartyB,USD,500000,500000,1.0,100.0
TRS-2,Citi,UBS AG,2024-02-01,2024-02-03,2025-02-03,PartyA,PartyB,USD,750000,750000,1.0,100.0
`
	body, contentType := multipartBody(t, "file", "trades.csv", csv)
	req := httptest.NewRequest(http.MethodPost, "/api/trades/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Imported int `json:"imported"`
		Skipped  int `json:"skipped"`
	}
	decodeBody(t, rec, &resp)
	if resp.Imported != 2 || resp.Skipped != 0 {
		t.Errorf("Expected 2 imported and 0 skipped, got %+v", resp)
	}

	trades, err := recordStore.ListTrades()
	if err != nil {
		t.Fatalf("Failed to list trades: %v", err)
	}
	if len(trades) != 2 {
		t.Errorf("Expected 2 stored trades, got %d", len(trades))
	}
}

func TestUploadDocument(t *testing.T) {
	s, _ := newTestServer(t)

	body, contentType := multipartBody(t, "file", "confirmation.txt", testConfirmation)
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var doc models.Document
	decodeBody(t, rec, &doc)
	if doc.FileType != models.FileTypeText {
		t.Errorf("Expected text file type, got %s", doc.FileType)
	}
	if doc.FilePath == "" {
		t.Fatal("Expected stored file path")
	}
	if _, err := os.Stat(doc.FilePath); err != nil {
		t.Errorf("Expected uploaded file on disk: %v", err)
	}
}

func TestUploadDocumentUnsupportedType(t *testing.T) {
	s, _ := newTestServer(t)

	body, contentType := multipartBody(t, "file", "malware.exe", "nope")
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unsupported type, got %d", rec.Code)
	}
}

func TestTextDocumentWorkflow(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	// Seed the matching book-of-record trade.
	rec := doJSON(t, router, http.MethodPost, "/api/trades/trs", sampleTrade())
	if rec.Code != http.StatusCreated {
		t.Fatalf("Failed to seed trade: %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/documents/text", map[string]string{
		"filename": "confirmation.txt",
		"content":  testConfirmation,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc models.Document
	decodeBody(t, rec, &doc)

	rec = doJSON(t, router, http.MethodPost, "/api/documents/"+doc.ID+"/extract", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Extract failed: %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &doc)
	if doc.Status != models.DocumentExtracted {
		t.Fatalf("Expected EXTRACTED, got %s", doc.Status)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/documents/"+doc.ID+"/validate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Validate failed: %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &doc)
	if doc.Status != models.DocumentValidated {
		t.Fatalf("Expected VALIDATED, got %s", doc.Status)
	}
	if doc.ValidationResult == nil || doc.ValidationResult.SystemTradeID != "TRS-2024-001" {
		t.Fatalf("Expected match against TRS-2024-001, got %+v", doc.ValidationResult)
	}

	rec = doJSON(t, router, http.MethodPost,
		"/api/validations/"+doc.ValidationResult.ID+"/checker",
		models.CheckerAction{Decision: models.ActionApprove, Comment: "looks right"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Checker action failed: %d: %s", rec.Code, rec.Body.String())
	}
	var result models.ValidationResult
	decodeBody(t, rec, &result)
	if result.CheckerDecision != models.CheckerApproved {
		t.Errorf("Expected APPROVED, got %s", result.CheckerDecision)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/validations/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Report failed: %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "trs_validation_report.csv") {
		t.Errorf("Unexpected content disposition: %s", rec.Header().Get("Content-Disposition"))
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("Expected header plus 1 row, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], "APPROVED") {
		t.Errorf("Expected checker decision in report row: %s", lines[1])
	}
}

func TestValidateUnextractedDocument(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/documents/text", map[string]string{
		"content": testConfirmation,
	})
	var doc models.Document
	decodeBody(t, rec, &doc)

	rec = doJSON(t, router, http.MethodPost, "/api/documents/"+doc.ID+"/validate", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unextracted document, got %d", rec.Code)
	}
}

func TestScanFolder(t *testing.T) {
	s, _ := newTestServer(t)

	folder := t.TempDir()
	for name, content := range map[string]string{
		"a.txt":      "confirmation one",
		"b.pdf":      "%PDF-1.4 stub",
		"ignore.exe": "nope",
	} {
		if err := os.WriteFile(filepath.Join(folder, name), []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write test file: %v", err)
		}
	}

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/documents/scan-folder",
		map[string]string{"folder_path": folder})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Created int `json:"created"`
		Skipped int `json:"skipped"`
	}
	decodeBody(t, rec, &resp)
	if resp.Created != 2 || resp.Skipped != 1 {
		t.Errorf("Expected 2 created and 1 skipped, got %+v", resp)
	}
}

func TestScanFolderMissing(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/documents/scan-folder",
		map[string]string{"folder_path": "/nonexistent/folder"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestRulesEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	rules := []models.MatchingRule{
		{FieldName: "notional_amount", RuleType: models.RuleTolerance, ToleranceValue: 1, ToleranceUnit: models.UnitAbsolute, MinConfidence: 0.7, Enabled: true},
		{FieldName: "party_a", RuleType: models.RuleFuzzy, MinConfidence: 0.5, Enabled: true},
	}
	rec := doJSON(t, router, http.MethodPut, "/api/rules/", rules)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stored []models.MatchingRule
	decodeBody(t, rec, &stored)
	if len(stored) != 2 || stored[0].ID == "" {
		t.Errorf("Expected 2 stored rules with assigned ids, got %+v", stored)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/rules/", nil)
	decodeBody(t, rec, &stored)
	if len(stored) != 2 {
		t.Errorf("Expected 2 rules on read back, got %d", len(stored))
	}

	bad := []models.MatchingRule{{FieldName: "party_a", RuleType: "sorcery", Enabled: true}}
	rec = doJSON(t, router, http.MethodPut, "/api/rules/", bad)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid rule type, got %d", rec.Code)
	}
}

func TestViewerRequiresRenderableDocument(t *testing.T) {
	s, _ := newTestServer(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/documents/text", map[string]string{
		"content": testConfirmation,
	})
	var doc models.Document
	decodeBody(t, rec, &doc)

	rec = doJSON(t, router, http.MethodGet, "/api/documents/"+doc.ID+"/viewer", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for text document, got %d", rec.Code)
	}
}

func TestViewerWithoutOCR(t *testing.T) {
	s, recordStore := newTestServer(t)

	doc := models.NewDocument("scan.png", models.FileTypeImage)
	doc.FilePath = filepath.Join(t.TempDir(), "scan.png")
	if _, err := recordStore.CreateDocument(doc); err != nil {
		t.Fatalf("Failed to seed document: %v", err)
	}

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/documents/"+doc.ID+"/viewer", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("Expected 501 without OCR endpoint, got %d", rec.Code)
	}
}
