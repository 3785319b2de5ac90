package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/givelift/recall/internal/background"
	"github.com/givelift/recall/internal/chunker"
	"github.com/givelift/recall/internal/docproc"
	"github.com/givelift/recall/internal/ingest"
	"github.com/givelift/recall/internal/vectorindex"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Run one file through the document pipeline",
		Long:  "Uploads a PDF, Markdown, or plain-text file, waits for extraction, chunking, and embedding to finish, and prints the final document record.",
		Args:  cobra.ExactArgs(1),
		Run:   runIngest,
	}

	cmd.Flags().StringP("owner", "o", "", "Owner id (required)")
	cmd.Flags().StringP("title", "t", "", "Document title (default: the file name)")
	cmd.Flags().String("tags", "", "Comma-separated tags")

	cmd.MarkFlagRequired("owner")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	owner, _ := cmd.Flags().GetString("owner")
	title, _ := cmd.Flags().GetString("title")
	rawTags, _ := cmd.Flags().GetString("tags")

	data, err := os.ReadFile(args[0])
	if err != nil {
		exitErr("read file", err)
	}

	store, cfg := openStore(ctx)
	defer store.Close()

	embedder, err := buildEmbedder(ctx, cfg)
	if err != nil {
		exitErr("build embedding client", err)
	}
	tokenizer, err := chunker.NewTiktoken(cfg.TokenEncoding)
	if err != nil {
		exitErr("load token encoding", err)
	}
	splitter, err := chunker.New(tokenizer, chunker.Options{
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
	})
	if err != nil {
		exitErr("configure chunker", err)
	}

	var converter docproc.Converter
	if cfg.ConverterURL != "" {
		converter = docproc.NewHTTPConverter(cfg.ConverterURL, 0)
	}
	processor := docproc.NewProcessor(converter)

	quota := vectorindex.NewQuotaChecker(store.Documents, vectorindex.QuotaPolicy{
		MaxDocuments:    cfg.MaxDocuments,
		MaxStorageBytes: cfg.MaxStorageBytes,
		MaxDailyUploads: cfg.MaxDailyUploads,
	})
	tasks := background.NewTaskSet(ctx, 1)

	svc := ingest.NewService(store.Documents, quota, processor, splitter, embedder, tasks, ingest.Options{})

	doc, err := svc.Accept(ctx, ingest.Upload{
		OwnerID:    owner,
		Title:      title,
		SourceName: filepath.Base(args[0]),
		Data:       data,
		Tags:       splitTags(rawTags),
	})
	if err != nil {
		exitErr("accept upload", err)
	}

	// Processing runs on the task set; drain it so the terminal status
	// is on the row before we read it back.
	tasks.Wait()

	final, err := svc.Get(ctx, owner, doc.ID)
	if err != nil {
		exitErr("read back document", err)
	}
	printJSON(final)
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
