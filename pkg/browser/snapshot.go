package browser

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/pagelens/pkg/dom"
	"github.com/nextlevelbuilder/pagelens/pkg/identity"
)

const truncatedMarker = "\n[...TRUNCATED]"

// SnapshotOptions controls snapshot generation.
type SnapshotOptions struct {
	Extract  dom.Options
	Compact  bool // drop structure lines with no indexed descendant
	MaxChars int  // truncate the tree text, 0 = unlimited
}

// DefaultSnapshotOptions returns sensible defaults.
func DefaultSnapshotOptions() SnapshotOptions {
	return SnapshotOptions{
		Extract:  dom.DefaultOptions(),
		MaxChars: 8000,
	}
}

// Snapshot extracts the indexed tree of a page, resolves an identity for
// every index and records them for later actions on the tab.
func (m *Manager) Snapshot(ctx context.Context, targetID string, opts SnapshotOptions) (res *SnapshotResult, err error) {
	ctx, span := m.tracer.Start(ctx, "browser.snapshot")
	defer func() { endSpan(span, err) }()

	page, err := m.page(targetID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	cfg := m.extractCfg
	m.mu.Unlock()
	tid := string(page.TargetID)
	span.SetAttributes(attribute.String("pagelens.target_id", tid))

	raw, err := traced(ctx, m.tracer, "dom.capture", func(ctx context.Context) (*dom.RawTree, error) {
		return dom.Capture(ctx, page)
	})
	if err != nil {
		return nil, fmt.Errorf("capture dom: %w", err)
	}

	extracted, _ := traced(ctx, m.tracer, "dom.extract", func(context.Context) (*dom.Result, error) {
		return dom.Extract(raw, cfg, opts.Extract), nil
	})

	resolver := identity.New(identity.NewPageOpener(page), identity.WithLogger(m.logger))
	ids, err := traced(ctx, m.tracer, "identity.resolve", func(ctx context.Context) (identity.IdentityMap, error) {
		return resolver.ResolveIdentities(ctx, extracted.Selectors)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve identities: %w", err)
	}

	url, title := "", ""
	if info, _ := page.Info(); info != nil {
		url, title = info.URL, info.Title
	}

	rec := &RefRecord{
		TargetID:     tid,
		ExtractionID: extracted.ExtractionID,
		URL:          url,
		Selectors:    extracted.Selectors,
		Identities:   ids,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.records.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save identity record: %w", err)
	}

	tree, truncated := finishTree(extracted.Tree, opts)
	res = &SnapshotResult{
		Tree:         tree,
		Selectors:    extracted.Selectors,
		Identities:   ids,
		ExtractionID: extracted.ExtractionID,
		URL:          url,
		Title:        title,
		TargetID:     tid,
		Truncated:    truncated,
		Stats: SnapshotStats{
			Lines:      countLines(tree),
			Chars:      utf8.RuneCountInString(tree),
			Entries:    len(extracted.Selectors),
			Identities: len(ids),
			Tokens:     m.tokens.count(tree),
			Pipeline:   extracted.Stats,
		},
	}

	span.SetAttributes(
		attribute.String("pagelens.extraction_id", res.ExtractionID),
		attribute.Int("pagelens.entries", res.Stats.Entries),
		attribute.Int("pagelens.identities", res.Stats.Identities),
	)
	if gaps := res.Stats.Entries - res.Stats.Identities; gaps > 0 {
		m.logger.Debug("snapshot has unresolved indices", "target", tid, "unresolved", gaps)
	}
	return res, nil
}

// finishTree applies compaction and the size cap to serialized text.
func finishTree(tree string, opts SnapshotOptions) (string, bool) {
	if opts.Compact && tree != "" {
		tree = compactTree(tree)
	}
	if opts.MaxChars <= 0 || utf8.RuneCountInString(tree) <= opts.MaxChars {
		return tree, false
	}
	cut := 0
	for i := range tree {
		if cut == opts.MaxChars {
			return tree[:i] + truncatedMarker, true
		}
		cut++
	}
	return tree, false
}

// compactTree removes bare structure lines ("<div>") that have no indexed
// line below them.
func compactTree(tree string) string {
	lines := strings.Split(tree, "\n")
	var result []string

	for i, line := range lines {
		if !isStructureLine(line) {
			result = append(result, line)
			continue
		}

		currentIndent := getIndentLevel(line)
		hasIndexedDescendant := false
		for j := i + 1; j < len(lines); j++ {
			if getIndentLevel(lines[j]) <= currentIndent {
				break
			}
			if isIndexedLine(lines[j]) {
				hasIndexedDescendant = true
				break
			}
		}
		if hasIndexedDescendant {
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

func isStructureLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "<") && strings.HasSuffix(t, ">") && !strings.ContainsAny(t, " \"")
}

func isIndexedLine(line string) bool {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "[") {
		return false
	}
	end := strings.Index(t, "]<")
	return end > 1 && indexPattern.MatchString(t[1:end])
}

// getIndentLevel returns the indentation level (number of 2-space indents).
func getIndentLevel(line string) int {
	spaces := 0
	for _, c := range line {
		if c != ' ' {
			break
		}
		spaces++
	}
	return spaces / 2
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// traced runs fn inside a child span named name.
func traced[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, name)
	v, err := fn(ctx)
	endSpan(span, err)
	return v, err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
