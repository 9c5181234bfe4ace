// Package enrich attaches generated descriptions to every column of every
// loaded model.
//
// Enrichment is strictly sequential: one describer call at a time, in project
// load order, then manifest model order, then column order. Results are
// written both onto the column itself (which the graph shares) and into an
// Index keyed by model unique name and column name.
package enrich

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/describe"
	"github.com/tordrt/dbtlineage/internal/diag"
	"github.com/tordrt/dbtlineage/internal/schema"
)

// Strategy selects what goes into the per-column context.
type Strategy string

const (
	// StrategyBasic includes model name, project and dependency references.
	StrategyBasic Strategy = "basic"
	// StrategyCode additionally includes the head of the compiled SQL.
	StrategyCode Strategy = "code"
)

// CodeSnippetLimit is the number of characters of compiled code in a code context.
const CodeSnippetLimit = 300

// UnknownDataType is sent for columns without a declared type.
const UnknownDataType = "unknown"

// Index maps model unique name -> column name -> generated description.
type Index map[string]map[string]string

// Options configures an enrichment pass.
type Options struct {
	Strategy Strategy
	// Progress, if set, is called after every column.
	Progress func(done, total int)
}

// Stats summarises an enrichment pass.
type Stats struct {
	Total     int
	Processed int
	// Failed counts columns that received a sentinel description.
	Failed   int
	Canceled bool
}

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyBasic, "":
		return StrategyBasic, true
	case StrategyCode:
		return StrategyCode, true
	}
	return StrategyBasic, false
}

// Enrich describes every column. A nil describer disables the pass and
// returns an empty index. Cancelling ctx lets the in-flight call finish and
// stops scheduling new ones; the partial index is returned.
func Enrich(ctx context.Context, projects []*schema.Project, d describe.Describer, opts Options) (Index, Stats) {
	logger := ctxlog.Component(ctx, "enrich")
	index := make(Index)

	if d == nil {
		logger.Info("description generation disabled: no describer configured")
		return index, Stats{}
	}

	strategy := opts.Strategy
	if strategy != StrategyBasic && strategy != StrategyCode {
		if strategy != "" {
			logger.Warn("unknown context strategy, using basic", diag.AttrKey, string(strategy))
		}
		strategy = StrategyBasic
	}

	stats := Stats{Total: CountColumns(projects)}
	logger.Info("enriching columns", "total", stats.Total, "strategy", string(strategy))

	// in-flight calls are not interrupted by cancellation, only bounded by the describer's own timeout
	callCtx := context.WithoutCancel(ctx)

	for _, p := range projects {
		for _, m := range p.OrderedModels() {
			if ctx.Err() != nil {
				stats.Canceled = true
				break
			}

			descriptions := make(map[string]string, m.Columns.Len())
			index[m.UniqueName] = descriptions
			modelContext := BuildContext(m, strategy)

			for _, name := range m.Columns.Names() {
				if ctx.Err() != nil {
					stats.Canceled = true
					break
				}

				col, _ := m.Columns.Get(name)
				dataType := col.DataType
				if dataType == "" {
					dataType = UnknownDataType
				}

				desc := d.Describe(callCtx, describe.Request{Column: name, DataType: dataType, Context: modelContext})
				col.AIDescription = desc
				descriptions[name] = desc

				stats.Processed++
				if describe.IsSentinel(desc) {
					stats.Failed++
				}
				if opts.Progress != nil {
					opts.Progress(stats.Processed, stats.Total)
				}
				logger.Debug("column described", diag.AttrKey, m.UniqueName+"."+name, "done", stats.Processed, "total", stats.Total)
			}
		}
		if stats.Canceled {
			break
		}
	}

	if stats.Canceled {
		logger.Warn("enrichment canceled", "processed", stats.Processed, "total", stats.Total)
	}
	logger.Info("generated descriptions", "processed", stats.Processed, "failed", stats.Failed)
	return index, stats
}

// CountColumns returns the number of columns across all projects.
func CountColumns(projects []*schema.Project) int {
	total := 0
	for _, p := range projects {
		total += p.ColumnCount()
	}
	return total
}

// BuildContext renders the model context sent with every column of m.
func BuildContext(m *schema.Model, strategy Strategy) string {
	lines := make([]string, 0, 3)
	if strategy == StrategyCode {
		lines = append(lines, "SQL snippet: "+truncateRunes(m.CompiledCode, CodeSnippetLimit)+"...")
	}
	lines = append(lines,
		"Model: "+m.Name+" ("+m.Project+")",
		"Relationships: "+strings.Join(m.DependsOn, ", "),
	)
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
