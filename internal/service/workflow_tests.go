package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/analysis"
	"github.com/Strob0t/OpsForge/internal/port/codehost"
)

// FileFailure records a changed file that was excluded from the aggregate.
type FileFailure struct {
	File  string `json:"file"`
	Stage string `json:"stage"` // fetch | analyze
	Error string `json:"error"`
}

// TestWriterResult is the aggregate of a test_writer task.
type TestWriterResult struct {
	Repository       string              `json:"repository"`
	TestsGenerated   int                 `json:"tests_generated"`
	TestFiles        []analysis.TestFile `json:"test_files"`
	FilesAnalyzed    []string            `json:"files_analyzed"`
	FilesFailed      []FileFailure       `json:"files_failed"`
	UnparsedFiles    []string            `json:"unparsed_files,omitempty"`
	CoverageEstimate float64             `json:"coverage_estimate"`
}

// fanOut runs fn for every item with at most limit calls in flight. fn
// reports per-item failures itself; only a cancelled ctx stops the fan-out.
func fanOut(ctx context.Context, limit int, items []string, fn func(ctx context.Context, item string)) error {
	sem := semaphore.NewWeighted(int64(limit))
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			fn(gctx, item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *PipelineService) planTestWriter(x *execution) (*plan, error) {
	var in TestWriterInput
	if err := decodeInput(x.task.Input, &in); err != nil {
		return nil, err
	}
	repo, err := codehost.ParseRepository(in.Repository)
	if err != nil {
		return nil, err
	}
	files, err := in.files()
	if err != nil {
		return nil, err
	}

	res := &TestWriterResult{
		Repository:    repo.String(),
		TestFiles:     []analysis.TestFile{},
		FilesAnalyzed: []string{},
		FilesFailed:   []FileFailure{},
	}
	var (
		mu       sync.Mutex
		contents = make(map[string]string, len(files))
	)
	fail := func(file, stage string, err error) {
		mu.Lock()
		res.FilesFailed = append(res.FilesFailed, FileFailure{File: file, Stage: stage, Error: err.Error()})
		mu.Unlock()
	}

	return &plan{
		steps: []Step{
			fetchStep("fetch_files", func(ctx context.Context) error {
				err := fanOut(ctx, p.cfg.FetchConcurrency, files, func(ctx context.Context, file string) {
					content, err := p.host.GetFileContent(ctx, repo.Owner, repo.Name, file)
					if err != nil {
						slog.WarnContext(ctx, "changed file fetch failed, excluding it", "file", file, "error", err)
						fail(file, "fetch", err)
						return
					}
					mu.Lock()
					contents[file] = content
					mu.Unlock()
				})
				if err != nil {
					return err
				}
				if len(contents) == 0 {
					return fmt.Errorf("%w: all %d file fetches failed", domain.ErrNoFilesAvailable, len(files))
				}
				return nil
			}),
			analyzeStep("generate_tests", func(ctx context.Context) error {
				fetched := make([]string, 0, len(contents))
				for f := range contents {
					fetched = append(fetched, f)
				}
				slices.Sort(fetched)

				var lastErr error
				err := fanOut(ctx, p.cfg.FetchConcurrency, fetched, func(ctx context.Context, file string) {
					out, err := p.generateTests(ctx, repo.String(), file, contents[file], in.Model)
					if err != nil {
						fail(file, "analyze", err)
						mu.Lock()
						lastErr = err
						mu.Unlock()
						return
					}
					mu.Lock()
					defer mu.Unlock()
					res.FilesAnalyzed = append(res.FilesAnalyzed, file)
					suite, ok := out.Value()
					if !ok {
						res.UnparsedFiles = append(res.UnparsedFiles, file)
						res.TestFiles = append(res.TestFiles, analysis.TestFile{Filename: testFileName(file), Content: out.Raw()})
						return
					}
					n := suite.TestsGenerated
					if n <= 0 {
						n = len(suite.TestFiles)
					}
					res.TestsGenerated += n
					res.TestFiles = append(res.TestFiles, suite.TestFiles...)
				})
				if err != nil {
					return err
				}
				if len(res.FilesAnalyzed) == 0 {
					return fmt.Errorf("test generation failed for every file: %w", lastErr)
				}
				return nil
			}),
		},
		result: func() any {
			mu.Lock()
			defer mu.Unlock()
			slices.Sort(res.FilesAnalyzed)
			slices.Sort(res.UnparsedFiles)
			slices.SortFunc(res.FilesFailed, func(a, b FileFailure) int { return strings.Compare(a.File, b.File) })
			slices.SortStableFunc(res.TestFiles, func(a, b analysis.TestFile) int { return strings.Compare(a.Filename, b.Filename) })
			res.CoverageEstimate = float64(min(85, res.TestsGenerated*15))
			return res
		},
	}, nil
}

// generateTests asks the model for tests of one file.
func (p *PipelineService) generateTests(ctx context.Context, repo, file, content, model string) (analysis.Outcome[analysis.TestSuite], error) {
	prompt, err := render("test_writer", struct{ Repository, Path, Language, Content string }{
		repo, file, languageOf(file), truncate(content),
	})
	if err != nil {
		return analysis.Outcome[analysis.TestSuite]{}, err
	}
	text, err := p.complete(ctx, model, prompt)
	if err != nil {
		return analysis.Outcome[analysis.TestSuite]{}, err
	}
	return analysis.Parse[analysis.TestSuite](text), nil
}

// testFileName derives a conventional test file name for src.
func testFileName(src string) string {
	ext := path.Ext(src)
	base := strings.TrimSuffix(src, ext)
	switch ext {
	case ".go":
		return base + "_test.go"
	case ".py":
		return path.Join(path.Dir(src), "test_"+path.Base(base)+ext)
	default:
		return base + ".test" + ext
	}
}
