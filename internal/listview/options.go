package listview

import (
	"context"

	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/filter"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/internal/pagination"
)

// DefaultDeletePrompt is shown by Delete when no prompt is configured.
const DefaultDeletePrompt = "Are you sure you want to delete this record?"

type options struct {
	collection   string
	pageSize     int
	maxVisible   int
	deletePrompt string
	filter       filter.State
	logger       *zap.Logger
	metrics      *observability.Metrics
	parent       context.Context
}

func defaultOptions() options {
	return options{
		pageSize:     filter.DefaultPageSize,
		maxVisible:   pagination.DefaultMaxVisible,
		deletePrompt: DefaultDeletePrompt,
		logger:       zap.NewNop(),
		parent:       context.Background(),
	}
}

// Option configures a Controller.
type Option func(*options)

// WithCollection names the collection in logs, metrics and spans.
func WithCollection(name string) Option {
	return func(o *options) { o.collection = name }
}

// WithPageSize sets the initial page size. Non-positive values are ignored.
func WithPageSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithMaxVisiblePages sets how many page numbers the pagination window shows.
func WithMaxVisiblePages(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxVisible = n
		}
	}
}

// WithInitialFilter sets the filters applied by the first fetch.
func WithInitialFilter(s filter.State) Option {
	return func(o *options) { o.filter = s }
}

// WithDeletePrompt sets the prompt passed to the Confirmer on Delete.
func WithDeletePrompt(prompt string) Option {
	return func(o *options) {
		if prompt != "" {
			o.deletePrompt = prompt
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithContext supplies values (tracing, request identity) for background
// fetches. Cancellation of ctx is not inherited; use Close.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.parent = ctx
		}
	}
}
