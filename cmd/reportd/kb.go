package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opsinsight/reportcore/pkg/retrieval"
)

func newKBCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Index and search the retrieval knowledge base",
	}
	cmd.AddCommand(newKBIndexCmd(opts), newKBSearchCmd(opts))
	return cmd
}

func newKBIndexCmd(opts *globalOptions) *cobra.Command {
	var kbSpace, docID, file string
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a text document, replacing any earlier version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := stdinOr(file)
			if err != nil {
				return err
			}
			defer in.Close()
			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			svc, err := a.retrieval(cmd.Context())
			if err != nil {
				return err
			}
			n, err := svc.Index(cmd.Context(), retrieval.Document{KBSpace: kbSpace, DocumentID: docID, Text: string(text)})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "indexed %s/%s: %d chunks\n", kbSpace, docID, n)
			return err
		},
	}
	cmd.Flags().StringVar(&kbSpace, "kb-space", "", "Knowledge base space")
	cmd.Flags().StringVar(&docID, "doc-id", "", "Document ID")
	cmd.Flags().StringVar(&file, "file", "-", "Text file to index, - for stdin")
	_ = cmd.MarkFlagRequired("kb-space")
	_ = cmd.MarkFlagRequired("doc-id")
	return cmd
}

func newKBSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		kbSpace string
		mode    string
		topK    int
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search a knowledge base space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			svc, err := a.retrieval(cmd.Context())
			if err != nil {
				return err
			}
			hits, err := svc.Search(cmd.Context(), retrieval.SearchRequest{
				KBSpace: kbSpace,
				Query:   args[0],
				TopK:    topK,
				Mode:    retrieval.Mode(mode),
			})
			if err != nil {
				return err
			}

			if a.format != "table" {
				return printOutput(a.out, a.format, map[string]any{"hits": hits, "size": len(hits)})
			}
			rows := make([][]string, len(hits))
			for i, h := range hits {
				rows[i] = []string{
					strconv.Itoa(i + 1),
					h.DocumentID,
					strconv.FormatInt(h.ChunkID, 10),
					strconv.FormatFloat(h.Score, 'f', 4, 64),
					truncate(h.Content, 60),
				}
			}
			return printTable(a.out, []string{"rank", "document", "chunk", "score", "content"}, rows)
		},
	}
	cmd.Flags().StringVar(&kbSpace, "kb-space", "", "Knowledge base space")
	cmd.Flags().StringVar(&mode, "mode", "", "Ranking: vector, keyword, hybrid (default from config)")
	cmd.Flags().IntVar(&topK, "top-k", 5, "Number of hits")
	_ = cmd.MarkFlagRequired("kb-space")
	return cmd
}
