package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/givelift/recall/internal/chunker"
	"github.com/givelift/recall/internal/docproc"
	"github.com/givelift/recall/internal/errors"
	"github.com/givelift/recall/internal/types"
)

var testNow = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

var errContrived = stderrors.New("contrived failure")

// wordTokenizer treats every whitespace-separated word as one token so the
// pipeline's window arithmetic is exact.
type wordTokenizer struct {
	ids   map[string]int
	words []string
}

func newWordTokenizer() *wordTokenizer {
	return &wordTokenizer{ids: make(map[string]int)}
}

func (w *wordTokenizer) Encode(text string) []int {
	fields := strings.Fields(text)
	tokens := make([]int, 0, len(fields))
	for _, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			id = len(w.words)
			w.ids[f] = id
			w.words = append(w.words, f)
		}
		tokens = append(tokens, id)
	}
	return tokens
}

func (w *wordTokenizer) Decode(tokens []int) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = w.words[t]
	}
	return strings.Join(parts, " ")
}

func textOfTokens(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "w%d ", i)
	}
	return sb.String()
}

type statusChange struct {
	id     uuid.UUID
	status types.DocumentStatus
	reason string
}

type fakeDocStore struct {
	created       []*types.Document
	statusChanges []statusChange

	chunksByDoc map[uuid.UUID][]types.Chunk
	replaceErr  error

	finalized *types.Document

	listed  []types.Document
	gotList struct {
		ownerID       string
		limit, offset int
	}
	deleted []uuid.UUID
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{chunksByDoc: make(map[uuid.UUID][]types.Chunk)}
}

func (f *fakeDocStore) Create(_ context.Context, doc *types.Document) error {
	copied := *doc
	f.created = append(f.created, &copied)
	return nil
}

func (f *fakeDocStore) Get(_ context.Context, ownerID string, id uuid.UUID) (*types.Document, error) {
	for _, doc := range f.created {
		if doc.OwnerID == ownerID && doc.ID == id {
			return doc, nil
		}
	}
	return nil, errors.NewNotFound("document", id.String())
}

func (f *fakeDocStore) List(_ context.Context, ownerID string, limit, offset int) ([]types.Document, error) {
	f.gotList.ownerID = ownerID
	f.gotList.limit = limit
	f.gotList.offset = offset
	return f.listed, nil
}

func (f *fakeDocStore) UpdateStatus(_ context.Context, id uuid.UUID, status types.DocumentStatus, failureReason string) error {
	f.statusChanges = append(f.statusChanges, statusChange{id: id, status: status, reason: failureReason})
	return nil
}

func (f *fakeDocStore) Finalize(_ context.Context, doc *types.Document) error {
	copied := *doc
	f.finalized = &copied
	return nil
}

func (f *fakeDocStore) ReplaceChunks(_ context.Context, documentID uuid.UUID, chunks []types.Chunk) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.chunksByDoc[documentID] = chunks
	return nil
}

func (f *fakeDocStore) Delete(_ context.Context, ownerID string, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeQuota struct {
	gotOwner string
	gotSize  int64
	calls    int
	err      error
}

func (f *fakeQuota) CheckUploadAllowed(_ context.Context, ownerID string, sizeBytes int64) error {
	f.calls++
	f.gotOwner = ownerID
	f.gotSize = sizeBytes
	return f.err
}

type fakeTextExtractor struct {
	gotMIME     string
	gotFilename string
	gotData     []byte
	extraction  docproc.Extraction
	err         error
}

func (f *fakeTextExtractor) Process(_ context.Context, mimeType, filename string, data []byte) (docproc.Extraction, error) {
	f.gotMIME = mimeType
	f.gotFilename = filename
	f.gotData = data
	if f.err != nil {
		return docproc.Extraction{}, f.err
	}
	return f.extraction, nil
}

type fakeDocEmbedder struct {
	gotKey   string
	gotTexts []string
	err      error
}

func (f *fakeDocEmbedder) EmbedDocuments(_ context.Context, apiKey string, texts []string) ([][]float32, error) {
	f.gotKey = apiKey
	f.gotTexts = texts
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(i), 0.5}
	}
	return vectors, nil
}

// fakeTasks runs queued tasks synchronously so pipeline assertions can run
// right after Accept returns.
type fakeTasks struct {
	names  []string
	refuse bool
	errs   []error
}

func (f *fakeTasks) Go(name string, task func(ctx context.Context) error) bool {
	if f.refuse {
		return false
	}
	f.names = append(f.names, name)
	f.errs = append(f.errs, task(context.Background()))
	return true
}

type fixture struct {
	svc       *Service
	docs      *fakeDocStore
	quota     *fakeQuota
	extractor *fakeTextExtractor
	embedder  *fakeDocEmbedder
	tasks     *fakeTasks
}

func newTestService(t *testing.T) *fixture {
	t.Helper()
	splitter, err := chunker.New(newWordTokenizer(), chunker.Options{ChunkSize: 500, Overlap: 75})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	f := &fixture{
		docs:      newFakeDocStore(),
		quota:     &fakeQuota{},
		extractor: &fakeTextExtractor{},
		embedder:  &fakeDocEmbedder{},
		tasks:     &fakeTasks{},
	}
	f.svc = NewService(f.docs, f.quota, f.extractor, splitter, f.embedder, f.tasks, Options{ListLimit: 25})
	f.svc.now = func() time.Time { return testNow }
	return f
}

func pdfUpload(data string) Upload {
	return Upload{
		OwnerID:    "org-1",
		Title:      "Annual Report",
		SourceName: "report.pdf",
		MIMEType:   "application/pdf",
		Data:       []byte(data),
		Tags:       []string{"board"},
		APIKey:     "sk-user",
	}
}

func TestPipelineProcessesDocumentEndToEnd(t *testing.T) {
	f := newTestService(t)
	pages := 3
	f.extractor.extraction = docproc.Extraction{
		Text:      textOfTokens(1800),
		PageCount: &pages,
		WordCount: 1800,
		Language:  "en",
	}

	doc, err := f.svc.Accept(context.Background(), pdfUpload("%PDF-1.7 raw bytes"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if f.quota.gotOwner != "org-1" || f.quota.gotSize != int64(len("%PDF-1.7 raw bytes")) {
		t.Fatalf("quota checked with owner %q size %d", f.quota.gotOwner, f.quota.gotSize)
	}
	if len(f.docs.created) != 1 {
		t.Fatalf("expected 1 created document, got %d", len(f.docs.created))
	}
	created := f.docs.created[0]
	if created.Status != types.DocumentUploading {
		t.Fatalf("document must be created in uploading state, got %q", created.Status)
	}
	if created.Title != "Annual Report" || created.SourceName != "report.pdf" {
		t.Fatalf("unexpected created document: %+v", created)
	}
	if !created.CreatedAt.Equal(testNow) {
		t.Fatalf("created at %v, want %v", created.CreatedAt, testNow)
	}

	if len(f.tasks.names) != 1 || f.tasks.names[0] != "document-process" {
		t.Fatalf("expected one document-process task, got %v", f.tasks.names)
	}
	if f.tasks.errs[0] != nil {
		t.Fatalf("processing returned %v", f.tasks.errs[0])
	}

	if f.extractor.gotFilename != "report.pdf" || string(f.extractor.gotData) != "%PDF-1.7 raw bytes" {
		t.Fatalf("extractor got %q with %q", f.extractor.gotFilename, f.extractor.gotData)
	}
	if f.embedder.gotKey != "sk-user" {
		t.Fatalf("embedder must run on the caller's key, got %q", f.embedder.gotKey)
	}
	if len(f.embedder.gotTexts) != 5 {
		t.Fatalf("expected 5 chunk texts embedded, got %d", len(f.embedder.gotTexts))
	}

	chunks := f.docs.chunksByDoc[doc.ID]
	if len(chunks) != 5 {
		t.Fatalf("expected 5 chunks landed, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Ordinal != i {
			t.Fatalf("chunk %d: ordinal %d, ordinals must be contiguous from 0", i, chunk.Ordinal)
		}
		if chunk.DocumentID != doc.ID || chunk.OwnerID != "org-1" {
			t.Fatalf("chunk %d not attributed: %+v", i, chunk)
		}
		if chunk.TokenCount > 500 {
			t.Fatalf("chunk %d: token count %d exceeds window size", i, chunk.TokenCount)
		}
		if chunk.PageEstimate == nil {
			t.Fatalf("chunk %d: expected a page estimate", i)
		}
		if len(chunk.Embedding) == 0 || chunk.Embedding[0] != float32(i) {
			t.Fatalf("chunk %d carries the wrong vector: %v", i, chunk.Embedding)
		}
	}
	if chunks[4].TokenCount != 100 {
		t.Fatalf("last chunk should hold the 100 remaining tokens, got %d", chunks[4].TokenCount)
	}

	final := f.docs.finalized
	if final == nil {
		t.Fatalf("expected the document to be finalized")
	}
	if final.ID != doc.ID || final.ChunkCount != 5 {
		t.Fatalf("unexpected finalize: %+v", final)
	}
	if final.WordCount == nil || *final.WordCount != 1800 {
		t.Fatalf("word count not carried through: %+v", final.WordCount)
	}
	if final.PageCount == nil || *final.PageCount != 3 {
		t.Fatalf("page count not carried through: %+v", final.PageCount)
	}
	if final.Language != "en" {
		t.Fatalf("language %q, want en", final.Language)
	}
	if final.ProcessedAt == nil || !final.ProcessedAt.Equal(testNow) {
		t.Fatalf("processed at %v, want %v", final.ProcessedAt, testNow)
	}

	if len(f.docs.statusChanges) != 1 || f.docs.statusChanges[0].status != types.DocumentProcessing {
		t.Fatalf("expected a single transition to processing, got %v", f.docs.statusChanges)
	}
}

func TestAcceptRejectsBadUploads(t *testing.T) {
	cases := []struct {
		name string
		up   Upload
	}{
		{"missing owner", Upload{SourceName: "a.txt", MIMEType: "text/plain", Data: []byte("hi")}},
		{"empty file", Upload{OwnerID: "org-1", SourceName: "a.txt", MIMEType: "text/plain"}},
		{"unsupported type", Upload{OwnerID: "org-1", SourceName: "a.zip", MIMEType: "application/zip", Data: []byte("hi")}},
	}
	for _, c := range cases {
		f := newTestService(t)
		_, err := f.svc.Accept(context.Background(), c.up)
		if !errors.Is(err, errors.ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", c.name, err)
		}
		if len(f.docs.created) != 0 {
			t.Fatalf("%s: no document may be created", c.name)
		}
		if f.quota.calls != 0 {
			t.Fatalf("%s: quota must not be consulted for invalid uploads", c.name)
		}
	}
}

func TestAcceptStopsAtQuota(t *testing.T) {
	f := newTestService(t)
	f.quota.err = errors.NewQuotaExceeded(errors.QuotaDocumentCount, "document limit of 100 reached")

	_, err := f.svc.Accept(context.Background(), pdfUpload("data"))
	if !errors.Is(err, errors.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if errors.QuotaKindOf(err) != errors.QuotaDocumentCount {
		t.Fatalf("quota kind lost: %v", err)
	}
	if len(f.docs.created) != 0 || len(f.tasks.names) != 0 {
		t.Fatalf("nothing may be created or queued past the quota")
	}
}

func TestAcceptDefaultsTitleToSourceName(t *testing.T) {
	f := newTestService(t)
	f.extractor.extraction = docproc.Extraction{Text: "short note about the gala", WordCount: 5}

	up := pdfUpload("data")
	up.Title = "   "
	doc, err := f.svc.Accept(context.Background(), up)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if doc.Title != "report.pdf" {
		t.Fatalf("title %q, want the source name", doc.Title)
	}
}

func TestAcceptMarksFailureWhenQueueSaturated(t *testing.T) {
	f := newTestService(t)
	f.tasks.refuse = true

	doc, err := f.svc.Accept(context.Background(), pdfUpload("data"))
	if err != nil {
		t.Fatalf("accept itself must not fail, got %v", err)
	}
	if doc.Status != types.DocumentFailed {
		t.Fatalf("status %q, want failed", doc.Status)
	}
	if len(f.docs.statusChanges) != 1 {
		t.Fatalf("expected one status change, got %v", f.docs.statusChanges)
	}
	change := f.docs.statusChanges[0]
	if change.status != types.DocumentFailed || !strings.Contains(change.reason, "saturated") {
		t.Fatalf("unexpected failure mark: %+v", change)
	}
}

func TestPipelineMarksFailureWhenExtractionFails(t *testing.T) {
	f := newTestService(t)
	f.extractor.err = errors.NewValidation("unreadable PDF: garbage xref")

	doc, err := f.svc.Accept(context.Background(), pdfUpload("data"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.tasks.errs[0] == nil {
		t.Fatalf("the pipeline task must report the failure")
	}

	last := f.docs.statusChanges[len(f.docs.statusChanges)-1]
	if last.id != doc.ID || last.status != types.DocumentFailed {
		t.Fatalf("expected a failed mark, got %+v", last)
	}
	if !strings.Contains(last.reason, "unreadable PDF") {
		t.Fatalf("failure reason %q should carry the cause", last.reason)
	}
	if len(f.docs.chunksByDoc) != 0 {
		t.Fatalf("no chunks may land for a failed extraction")
	}
}

func TestPipelineMarksFailureWhenNothingToIndex(t *testing.T) {
	f := newTestService(t)
	f.extractor.extraction = docproc.Extraction{Text: "   \n\t "}

	doc, err := f.svc.Accept(context.Background(), pdfUpload("data"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	last := f.docs.statusChanges[len(f.docs.statusChanges)-1]
	if last.id != doc.ID || last.status != types.DocumentFailed {
		t.Fatalf("expected a failed mark, got %+v", last)
	}
	if !strings.Contains(last.reason, "no indexable content") {
		t.Fatalf("failure reason %q", last.reason)
	}
	if f.embedder.gotTexts != nil {
		t.Fatalf("nothing may be embedded for an empty extraction")
	}
}

func TestPipelineMarksFailureWhenEmbeddingFails(t *testing.T) {
	f := newTestService(t)
	f.extractor.extraction = docproc.Extraction{Text: textOfTokens(40), WordCount: 40}
	f.embedder.err = errContrived

	doc, err := f.svc.Accept(context.Background(), pdfUpload("data"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	last := f.docs.statusChanges[len(f.docs.statusChanges)-1]
	if last.id != doc.ID || last.status != types.DocumentFailed {
		t.Fatalf("expected a failed mark, got %+v", last)
	}
	if !strings.Contains(last.reason, "contrived failure") {
		t.Fatalf("failure reason %q should carry the cause", last.reason)
	}
	if f.docs.finalized != nil {
		t.Fatalf("a failed document must not be finalized")
	}
}

func TestPipelineMarksFailureWhenChunksCannotLand(t *testing.T) {
	f := newTestService(t)
	f.extractor.extraction = docproc.Extraction{Text: textOfTokens(40), WordCount: 40}
	f.docs.replaceErr = errContrived

	_, err := f.svc.Accept(context.Background(), pdfUpload("data"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	last := f.docs.statusChanges[len(f.docs.statusChanges)-1]
	if last.status != types.DocumentFailed {
		t.Fatalf("expected a failed mark, got %+v", last)
	}
	if f.docs.finalized != nil {
		t.Fatalf("a failed document must not be finalized")
	}
}

func TestFailureReasonIsBounded(t *testing.T) {
	f := newTestService(t)
	f.extractor.err = stderrors.New(strings.Repeat("x", 2000))

	_, err := f.svc.Accept(context.Background(), pdfUpload("data"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	last := f.docs.statusChanges[len(f.docs.statusChanges)-1]
	if len(last.reason) != 500 {
		t.Fatalf("failure reason length %d, want 500", len(last.reason))
	}
}

func TestListDefaultsPageSize(t *testing.T) {
	f := newTestService(t)

	if _, err := f.svc.List(context.Background(), "org-1", 0, -3); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.docs.gotList.limit != 25 || f.docs.gotList.offset != 0 {
		t.Fatalf("got limit %d offset %d, want defaults", f.docs.gotList.limit, f.docs.gotList.offset)
	}
}

func TestReadPathsRequireOwner(t *testing.T) {
	f := newTestService(t)

	if _, err := f.svc.Get(context.Background(), "", uuid.New()); !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("Get: expected ErrValidation, got %v", err)
	}
	if _, err := f.svc.List(context.Background(), "", 10, 0); !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("List: expected ErrValidation, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), "", uuid.New()); !errors.Is(err, errors.ErrValidation) {
		t.Fatalf("Delete: expected ErrValidation, got %v", err)
	}
}

var (
	_ DocumentStore = (*fakeDocStore)(nil)
	_ QuotaChecker  = (*fakeQuota)(nil)
	_ TextExtractor = (*fakeTextExtractor)(nil)
	_ Embedder      = (*fakeDocEmbedder)(nil)
	_ Tasks         = (*fakeTasks)(nil)
	_ Splitter      = (*chunker.Chunker)(nil)
)
