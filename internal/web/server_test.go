package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/givelift/recall/internal/errors"
	"github.com/givelift/recall/internal/ingest"
	"github.com/givelift/recall/internal/retrieval"
	"github.com/givelift/recall/internal/types"
)

type fakeDocService struct {
	gotUpload ingest.Upload
	acceptDoc *types.Document
	acceptErr error

	getDoc *types.Document
	getErr error

	listDocs []types.Document
	gotList  struct {
		ownerID       string
		limit, offset int
	}

	deleted []uuid.UUID
}

func (f *fakeDocService) Accept(_ context.Context, up ingest.Upload) (*types.Document, error) {
	f.gotUpload = up
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	return f.acceptDoc, nil
}

func (f *fakeDocService) Get(_ context.Context, ownerID string, id uuid.UUID) (*types.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getDoc, nil
}

func (f *fakeDocService) List(_ context.Context, ownerID string, limit, offset int) ([]types.Document, error) {
	f.gotList.ownerID = ownerID
	f.gotList.limit = limit
	f.gotList.offset = offset
	return f.listDocs, nil
}

func (f *fakeDocService) Delete(_ context.Context, ownerID string, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeUsageReader struct {
	usage types.StorageUsage
}

func (f *fakeUsageReader) StorageUsage(_ context.Context, ownerID string) (types.StorageUsage, error) {
	return f.usage, nil
}

type fakeMemoryService struct {
	gotKey       string
	gotOwner     string
	gotCandidate types.MemoryCandidate
	gotConvID    string
	created      *types.Memory
	createErr    error

	listMemories []types.Memory
	gotCategory  string

	deleted []uuid.UUID
}

func (f *fakeMemoryService) Create(_ context.Context, apiKey, ownerID string, candidate types.MemoryCandidate, conversationID string) (*types.Memory, error) {
	f.gotKey = apiKey
	f.gotOwner = ownerID
	f.gotCandidate = candidate
	f.gotConvID = conversationID
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeMemoryService) List(_ context.Context, ownerID, category string, limit, offset int) ([]types.Memory, error) {
	f.gotCategory = category
	return f.listMemories, nil
}

func (f *fakeMemoryService) Delete(_ context.Context, ownerID string, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeMemSearcher struct {
	gotKey    string
	gotQuery  string
	gotCount  int
	gotFilter types.MemoryFilter
	results   []types.RetrievedMemory
	err       error
}

func (f *fakeMemSearcher) Search(_ context.Context, apiKey, ownerID, query string, count int, filter types.MemoryFilter) ([]types.RetrievedMemory, error) {
	f.gotKey = apiKey
	f.gotQuery = query
	f.gotCount = count
	f.gotFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeInjector struct {
	gotKey      string
	gotOwner    string
	gotQuery    string
	gotCount    int
	gotMinScore float64
	injection   retrieval.Injection
}

func (f *fakeInjector) InjectRelevant(_ context.Context, apiKey, ownerID, query string, count int, minImportance float64) retrieval.Injection {
	f.gotKey = apiKey
	f.gotOwner = ownerID
	f.gotQuery = query
	f.gotCount = count
	f.gotMinScore = minImportance
	return f.injection
}

type fakeCapturer struct {
	gotKey    string
	gotOwner  string
	gotConvID string
	gotTurns  []types.Turn
	calls     int
}

func (f *fakeCapturer) CaptureFromConversation(_ context.Context, apiKey, ownerID, conversationID string, turns []types.Turn) (int, error) {
	f.calls++
	f.gotKey = apiKey
	f.gotOwner = ownerID
	f.gotConvID = conversationID
	f.gotTurns = turns
	return len(turns), nil
}

type fakeWebTasks struct {
	names  []string
	refuse bool
}

func (f *fakeWebTasks) Go(name string, task func(ctx context.Context) error) bool {
	if f.refuse {
		return false
	}
	f.names = append(f.names, name)
	_ = task(context.Background())
	return true
}

type webFixture struct {
	server    *Server
	documents *fakeDocService
	usage     *fakeUsageReader
	memories  *fakeMemoryService
	searcher  *fakeMemSearcher
	injector  *fakeInjector
	capturer  *fakeCapturer
	tasks     *fakeWebTasks
}

func newTestServer() *webFixture {
	f := &webFixture{
		documents: &fakeDocService{},
		usage:     &fakeUsageReader{},
		memories:  &fakeMemoryService{},
		searcher:  &fakeMemSearcher{},
		injector:  &fakeInjector{},
		capturer:  &fakeCapturer{},
		tasks:     &fakeWebTasks{},
	}
	f.server = NewServer(":0", Services{
		Documents: f.documents,
		Usage:     f.usage,
		Memories:  f.memories,
		Searcher:  f.searcher,
		Injector:  f.injector,
		Capturer:  f.capturer,
		Tasks:     f.tasks,
	})
	return f
}

func jsonRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerOwnerID, "org-1")
	req.Header.Set(headerProviderKey, "sk-user")
	return req
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestRequireOwnerHeader(t *testing.T) {
	f := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)

	resp, err := f.server.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	require.Equal(t, "VALIDATION", body.Code)
	require.Contains(t, body.Message, "X-Owner-ID")
}

func TestHealthyNeedsNoOwner(t *testing.T) {
	f := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/check/healthy", nil)

	resp, err := f.server.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func multipartUpload(t *testing.T, filename, contentType, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)

	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(headerOwnerID, "org-1")
	req.Header.Set(headerProviderKey, "sk-user")
	return req
}

func TestUploadDocumentAccepted(t *testing.T) {
	f := newTestServer()
	docID := uuid.New()
	f.documents.acceptDoc = &types.Document{ID: docID, OwnerID: "org-1", Status: types.DocumentUploading}

	req := multipartUpload(t, "report.pdf", "application/pdf", "%PDF-1.7 raw", map[string]string{
		"title": "Annual Report",
		"tags":  "board, finance",
	})
	resp, err := f.server.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var doc types.Document
	decodeBody(t, resp, &doc)
	require.Equal(t, docID, doc.ID)
	require.Equal(t, types.DocumentUploading, doc.Status)

	up := f.documents.gotUpload
	require.Equal(t, "org-1", up.OwnerID)
	require.Equal(t, "sk-user", up.APIKey)
	require.Equal(t, "report.pdf", up.SourceName)
	require.Equal(t, "application/pdf", up.MIMEType)
	require.Equal(t, "Annual Report", up.Title)
	require.Equal(t, []string{"board", "finance"}, up.Tags)
	require.Equal(t, "%PDF-1.7 raw", string(up.Data))
}

func TestUploadRequiresFileField(t *testing.T) {
	f := newTestServer()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("title", "no file attached"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(headerOwnerID, "org-1")

	resp, err := f.server.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadQuotaErrorCarriesKind(t *testing.T) {
	f := newTestServer()
	f.documents.acceptErr = errors.NewQuotaExceeded(errors.QuotaStorageBytes, "storage limit reached")

	req := multipartUpload(t, "report.pdf", "application/pdf", "data", nil)
	resp, err := f.server.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	require.Equal(t, "QUOTA_EXCEEDED", body.Code)
	require.Equal(t, "storage_bytes", body.QuotaKind)
}

func TestGetDocumentNotFound(t *testing.T) {
	f := newTestServer()
	id := uuid.New()
	f.documents.getErr = errors.NewNotFound("document", id.String())

	resp, err := f.server.app.Test(jsonRequest(http.MethodGet, "/api/v1/documents/"+id.String(), nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	require.Equal(t, "NOT_FOUND", body.Code)
}

func TestListDocumentsAlwaysReturnsArray(t *testing.T) {
	f := newTestServer()

	resp, err := f.server.app.Test(jsonRequest(http.MethodGet, "/api/v1/documents?limit=10&offset=5", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Contains(t, string(raw), `"documents":[]`)
	require.Equal(t, 10, f.documents.gotList.limit)
	require.Equal(t, 5, f.documents.gotList.offset)
}

func TestDeleteDocument(t *testing.T) {
	f := newTestServer()
	id := uuid.New()

	resp, err := f.server.app.Test(jsonRequest(http.MethodDelete, "/api/v1/documents/"+id.String(), nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, []uuid.UUID{id}, f.documents.deleted)
}

func TestDeleteRejectsMalformedID(t *testing.T) {
	f := newTestServer()

	resp, err := f.server.app.Test(jsonRequest(http.MethodDelete, "/api/v1/memories/not-a-uuid", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateMemory(t *testing.T) {
	f := newTestServer()
	memID := uuid.New()
	f.memories.created = &types.Memory{ID: memID, OwnerID: "org-1", Content: "Prefers email"}

	resp, err := f.server.app.Test(jsonRequest(http.MethodPost, "/api/v1/memories", map[string]any{
		"content":         "Prefers email",
		"category":        "preference",
		"tags":            []string{"user_requested"},
		"importance":      0.8,
		"conversation_id": "conv-9",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var mem types.Memory
	decodeBody(t, resp, &mem)
	require.Equal(t, memID, mem.ID)

	require.Equal(t, "sk-user", f.memories.gotKey)
	require.Equal(t, "org-1", f.memories.gotOwner)
	require.Equal(t, "conv-9", f.memories.gotConvID)
	require.Equal(t, types.MemoryTypeExplicit, f.memories.gotCandidate.Type)
	require.Equal(t, "preference", f.memories.gotCandidate.Category)
	require.InDelta(t, 0.8, f.memories.gotCandidate.Importance, 1e-9)
}

func TestCreateMemoryValidation(t *testing.T) {
	f := newTestServer()

	resp, err := f.server.app.Test(jsonRequest(http.MethodPost, "/api/v1/memories", map[string]any{
		"category": "preference",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	require.Equal(t, "VALIDATION", body.Code)
	require.Contains(t, body.Message, "Content")

	resp, err = f.server.app.Test(jsonRequest(http.MethodPost, "/api/v1/memories", map[string]any{
		"content":    "x",
		"importance": 1.5,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListMemoriesPassesCategory(t *testing.T) {
	f := newTestServer()
	f.memories.listMemories = []types.Memory{{ID: uuid.New(), Content: "a fact"}}

	resp, err := f.server.app.Test(jsonRequest(http.MethodGet, "/api/v1/memories?category=donor", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "donor", f.memories.gotCategory)
}

func TestSearchMemories(t *testing.T) {
	f := newTestServer()
	f.searcher.results = []types.RetrievedMemory{{
		Memory:     types.Memory{ID: uuid.New(), Content: "The Hendersons give every December"},
		Similarity: 0.91,
		Relevance:  0.88,
	}}

	resp, err := f.server.app.Test(jsonRequest(http.MethodPost, "/api/v1/memories/search", map[string]any{
		"query":          "december donors",
		"limit":          3,
		"type":           "explicit",
		"min_importance": 0.2,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, "sk-user", f.searcher.gotKey)
	require.Equal(t, "december donors", f.searcher.gotQuery)
	require.Equal(t, 3, f.searcher.gotCount)
	require.Equal(t, types.MemoryTypeExplicit, f.searcher.gotFilter.Type)
	require.InDelta(t, 0.2, f.searcher.gotFilter.MinImportance, 1e-9)

	var body struct {
		Memories []types.RetrievedMemory `json:"memories"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Memories, 1)
	require.InDelta(t, 0.91, body.Memories[0].Similarity, 1e-9)
}

func TestSearchSurfacesErrors(t *testing.T) {
	f := newTestServer()
	f.searcher.err = errors.NewValidation("an embedding credential is required to search")

	resp, err := f.server.app.Test(jsonRequest(http.MethodPost, "/api/v1/memories/search", map[string]any{
		"query": "december donors",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRetrieveReturnsInjection(t *testing.T) {
	f := newTestServer()
	f.injector.injection = retrieval.Injection{
		Block: "Relevant memories from previous conversations:\n- donor: fact\n",
		Memories: []types.RetrievedMemory{{
			Memory: types.Memory{ID: uuid.New(), Content: "fact"},
		}},
	}

	resp, err := f.server.app.Test(jsonRequest(http.MethodPost, "/api/v1/retrieve", map[string]any{
		"query":          "who gives in december",
		"count":          4,
		"min_importance": 0.3,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, "org-1", f.injector.gotOwner)
	require.Equal(t, 4, f.injector.gotCount)
	require.InDelta(t, 0.3, f.injector.gotMinScore, 1e-9)

	var body retrieveResponse
	decodeBody(t, resp, &body)
	require.Contains(t, body.Block, "Relevant memories")
	require.Len(t, body.Memories, 1)
}

func TestRetrieveEmptyInjectionIsStillOK(t *testing.T) {
	f := newTestServer()

	resp, err := f.server.app.Test(jsonRequest(http.MethodPost, "/api/v1/retrieve", map[string]any{
		"query": "anything",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Contains(t, string(raw), `"memories":[]`)
}

func TestCaptureQueuesExtraction(t *testing.T) {
	f := newTestServer()

	resp, err := f.server.app.Test(jsonRequest(http.MethodPost, "/api/v1/conversations/capture", map[string]any{
		"conversation_id": "conv-12",
		"turns": []map[string]string{
			{"role": "user", "content": "remember that I prefer email"},
			{"role": "assistant", "content": "Noted."},
		},
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Equal(t, []string{"conversation-capture"}, f.tasks.names)
	require.Equal(t, 1, f.capturer.calls)
	require.Equal(t, "org-1", f.capturer.gotOwner)
	require.Equal(t, "conv-12", f.capturer.gotConvID)
	require.Equal(t, "sk-user", f.capturer.gotKey)
	require.Len(t, f.capturer.gotTurns, 2)
	require.Equal(t, "user", f.capturer.gotTurns[0].Role)
}

func TestCaptureRejectsEmptyTurns(t *testing.T) {
	f := newTestServer()

	resp, err := f.server.app.Test(jsonRequest(http.MethodPost, "/api/v1/conversations/capture", map[string]any{
		"conversation_id": "conv-12",
		"turns":           []map[string]string{},
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, 0, f.capturer.calls)
}

func TestCaptureSaturatedQueueAnswers503(t *testing.T) {
	f := newTestServer()
	f.tasks.refuse = true

	resp, err := f.server.app.Test(jsonRequest(http.MethodPost, "/api/v1/conversations/capture", map[string]any{
		"turns": []map[string]string{{"role": "user", "content": "hello"}},
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, 0, f.capturer.calls)
}

func TestUsage(t *testing.T) {
	f := newTestServer()
	f.usage.usage = types.StorageUsage{DocumentCount: 7, TotalBytes: 1024, ChunkCount: 90}

	resp, err := f.server.app.Test(jsonRequest(http.MethodGet, "/api/v1/usage", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var usage types.StorageUsage
	decodeBody(t, resp, &usage)
	require.Equal(t, 7, usage.DocumentCount)
	require.Equal(t, int64(1024), usage.TotalBytes)
	require.Equal(t, 90, usage.ChunkCount)
}

func TestGetDocumentFound(t *testing.T) {
	f := newTestServer()
	id := uuid.New()
	processed := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	f.documents.getDoc = &types.Document{
		ID:          id,
		OwnerID:     "org-1",
		Status:      types.DocumentReady,
		ChunkCount:  5,
		ProcessedAt: &processed,
	}

	resp, err := f.server.app.Test(jsonRequest(http.MethodGet, "/api/v1/documents/"+id.String(), nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc types.Document
	decodeBody(t, resp, &doc)
	require.Equal(t, types.DocumentReady, doc.Status)
	require.Equal(t, 5, doc.ChunkCount)
}

func TestMalformedJSONBody(t *testing.T) {
	f := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/memories", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerOwnerID, "org-1")

	resp, err := f.server.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

var (
	_ DocumentService = (*fakeDocService)(nil)
	_ UsageReader     = (*fakeUsageReader)(nil)
	_ MemoryService   = (*fakeMemoryService)(nil)
	_ MemorySearcher  = (*fakeMemSearcher)(nil)
	_ Injector        = (*fakeInjector)(nil)
	_ Capturer        = (*fakeCapturer)(nil)
	_ Tasks           = (*fakeWebTasks)(nil)
)
