package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spetr/pyast-rag/internal/answer"
	"github.com/spetr/pyast-rag/internal/search"
	"github.com/spetr/pyast-rag/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed definitions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := searchFlags(cmd)
		if err != nil {
			return err
		}
		return runSearch(strings.Join(args, " "), opts)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question about the code",
	Long: `Retrieve the most relevant definitions and ask the configured chat model
about them. Without a question an interactive session starts; type exit,
quit or q (or send EOF) to end it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := searchFlags(cmd)
		if err != nil {
			return err
		}
		return runAsk(strings.Join(args, " "), opts)
	},
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, askCmd} {
		c.Flags().IntP("limit", "l", 0, "maximum results (default from config)")
		c.Flags().StringP("mode", "m", "", "search mode: vector, bm25, hybrid (default from config)")
		c.Flags().StringSliceP("type", "t", nil, "only function, method or class chunks")
		c.Flags().StringSlice("path", nil, "only files matching these glob patterns")
		c.Flags().Bool("related", false, "attach chunks named by each hit's dependencies")
	}
	searchCmd.Flags().Bool("content", true, "print chunk content")
}

type searchOptions struct {
	limit   int
	mode    types.SearchMode
	kinds   []types.ChunkType
	paths   []string
	related bool
	content bool
}

func searchFlags(cmd *cobra.Command) (searchOptions, error) {
	var o searchOptions
	o.limit, _ = cmd.Flags().GetInt("limit")
	mode, _ := cmd.Flags().GetString("mode")
	o.mode = types.SearchMode(mode)
	o.paths, _ = cmd.Flags().GetStringSlice("path")
	o.related, _ = cmd.Flags().GetBool("related")
	o.content, _ = cmd.Flags().GetBool("content")

	names, _ := cmd.Flags().GetStringSlice("type")
	for _, n := range names {
		t := types.ChunkType(n)
		if !t.Valid() {
			return o, fmt.Errorf("unknown chunk type %q (want function, method or class)", n)
		}
		o.kinds = append(o.kinds, t)
	}
	return o, nil
}

// request merges flags over the project's search config.
func (o searchOptions) request(p *project, query string) *types.SearchRequest {
	sc := p.cfg.Search
	req := &types.SearchRequest{
		Query:          query,
		Limit:          sc.DefaultLimit,
		Mode:           types.SearchMode(sc.Mode),
		VectorWeight:   sc.VectorWeight,
		BM25Weight:     sc.BM25Weight,
		IncludeRelated: sc.IncludeRelated || o.related,
		RelatedLimit:   sc.RelatedLimit,
	}
	if o.limit > 0 {
		req.Limit = o.limit
	}
	if o.mode != "" {
		req.Mode = o.mode
	}
	if len(o.kinds) > 0 || len(o.paths) > 0 {
		req.Filters = &types.SearchFilters{ChunkTypes: o.kinds, FilePaths: o.paths}
	}
	return req
}

func runSearch(query string, opts searchOptions) error {
	p, err := openProject(opts.mode != types.SearchModeBM25)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := p.requireIndex(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	engine := search.New(search.Config{Store: p.store, Embedding: p.embedding})
	results, err := engine.Search(ctx, opts.request(p, query))
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results found")
		return nil
	}
	for i, r := range results {
		printResult(os.Stdout, i+1, r, opts.content)
	}
	return nil
}

func printResult(w io.Writer, n int, r *types.SearchResult, content bool) {
	c := r.Chunk
	fmt.Fprintf(w, "\n=== Result %d (score: %.3f) ===\n", n, r.Score)
	fmt.Fprintf(w, "File: %s:%d-%d\n", c.FilePath, c.StartLine, c.EndLine)
	if c.ParentName != "" {
		fmt.Fprintf(w, "Name: %s.%s (%s)\n", c.ParentName, c.Name, c.ChunkType)
	} else {
		fmt.Fprintf(w, "Name: %s (%s)\n", c.Name, c.ChunkType)
	}
	if len(c.Dependencies) > 0 {
		fmt.Fprintf(w, "Uses: %s\n", strings.Join(c.Dependencies, ", "))
	}
	if content {
		fmt.Fprintf(w, "\n%s\n", c.Content)
	}
	for _, rc := range r.Related {
		fmt.Fprintf(w, "  related: %s (%s:%d)\n", rc.Name, rc.FilePath, rc.StartLine)
	}
}

func runAsk(question string, opts searchOptions) error {
	p, err := openProject(true)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := p.requireIndex(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if opts.limit == 0 {
		opts.limit = p.cfg.LLM.ContextChunks
	}
	a := &asker{
		project: p,
		opts:    opts,
		engine:  search.New(search.Config{Store: p.store, Embedding: p.embedding}),
		gen: answer.NewGenerator(answer.Config{
			Model:       p.cfg.LLM.Model,
			BaseURL:     p.cfg.LLM.BaseURL,
			APIKey:      p.cfg.LLM.APIKey,
			MaxTokens:   p.cfg.LLM.MaxTokens,
			Temperature: p.cfg.LLM.Temperature,
		}),
		out: os.Stdout,
	}

	if question != "" {
		return a.ask(ctx, question)
	}
	return a.loop(ctx, os.Stdin)
}

// asker runs retrieval and generation for one or more questions.
type asker struct {
	project *project
	opts    searchOptions
	engine  *search.Engine
	gen     *answer.Generator
	out     io.Writer
}

func (a *asker) ask(ctx context.Context, question string) error {
	fmt.Fprintf(a.out, "\n[Step 1] Retrieving relevant code snippets for: %q\n", question)
	results, err := a.engine.Search(ctx, a.opts.request(a.project, question))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(a.out, answer.Preview(nil))
		return nil
	}

	fmt.Fprintln(a.out, "[Step 2] Generating answer...")
	text, err := a.gen.Answer(ctx, question, results)
	if errors.Is(err, types.ErrNoAPIKey) {
		fmt.Fprintln(a.out, "\n[Step 2] No API key configured, showing retrieval only.")
		fmt.Fprintln(a.out, answer.Preview(results))
		return nil
	}
	if err != nil {
		return err
	}

	rule := strings.Repeat("=", 60)
	fmt.Fprintf(a.out, "\n%s\nANSWER:\n%s\n%s\n%s\n", rule, rule, text, rule)
	return nil
}

// loop reads questions from in until EOF or an exit word.
func (a *asker) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(a.out, "Ask questions about the indexed code. Type 'exit' or 'quit' to end the session.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(a.out, "\n[Question]: ")
		if !scanner.Scan() {
			fmt.Fprintln(a.out, "\nExiting...")
			return scanner.Err()
		}
		q := strings.TrimSpace(scanner.Text())
		if q == "" {
			continue
		}
		switch strings.ToLower(q) {
		case "exit", "quit", "q":
			return nil
		}

		if err := a.ask(ctx, q); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(a.out, "Error: %v\n", err)
		}
	}
}
