package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	var collection string
	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Embed and store documents in the RAG collection",
		Long:  "Each file is stored as one document with its path as source metadata. Without files, every non-empty line of stdin becomes a document.",
		RunE: func(cmd *cobra.Command, args []string) error {
			texts, metas, err := collectDocuments(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(texts) == 0 {
				return errors.New("nothing to ingest")
			}

			ctx := cmd.Context()
			inst, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), inst.cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = inst.close(shutdownCtx)
			}()

			svc := inst.app.RAG()
			if svc == nil {
				return errors.New("RAG is disabled: set rag.postgres_dsn (or DB_HOST, DB_USER and DB_NAME)")
			}
			ids, err := svc.AddTexts(ctx, texts, metas, collection)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d documents in %q\n", len(ids), svc.Collection(collection))
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "target collection (default rag.collection)")
	return cmd
}

// collectDocuments reads whole files when paths are given and stdin lines
// otherwise.
func collectDocuments(paths []string, stdin io.Reader) ([]string, []map[string]any, error) {
	var (
		texts []string
		metas []map[string]any
	)
	if len(paths) == 0 {
		scanner := bufio.NewScanner(stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for n := 1; scanner.Scan(); n++ {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			texts = append(texts, line)
			metas = append(metas, map[string]any{"source": "stdin", "line": n})
		}
		return texts, metas, scanner.Err()
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, nil, err
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}
		texts = append(texts, text)
		metas = append(metas, map[string]any{"source": filepath.Base(p), "path": p})
	}
	return texts, metas, nil
}
