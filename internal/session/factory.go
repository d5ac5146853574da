package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/filter"
	"github.com/pitabwire/marketdesk/internal/listview"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/internal/resource"
	"github.com/pitabwire/marketdesk/model"
)

// Factory builds views for collection definitions. All views share one
// executor and therefore one circuit breaker toward the marketplace.
type Factory struct {
	exec       *resource.Executor
	maxVisible int
	logger     *zap.Logger
	metrics    *observability.Metrics
	schemas    SchemaChecker
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithSchemaChecker makes views check form payloads against the request
// schemas of the collection's create and update operations.
func WithSchemaChecker(c SchemaChecker) FactoryOption {
	return func(f *Factory) { f.schemas = c }
}

// NewFactory creates a factory. maxVisible is the pagination window width.
func NewFactory(exec *resource.Executor, maxVisible int, logger *zap.Logger, metrics *observability.Metrics, opts ...FactoryOption) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{exec: exec, maxVisible: maxVisible, logger: logger, metrics: metrics}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Build creates an unmounted view over def. ctx supplies the values
// (identity, trace) for the view's background fetches.
func (f *Factory) Build(ctx context.Context, def model.CollectionDefinition, tokens resource.TokenSource) (View, error) {
	switch def.Entity {
	case model.KindCategory:
		return build[model.Category](ctx, f, def, tokens), nil
	case model.KindCompany:
		return build[model.Company](ctx, f, def, tokens), nil
	case model.KindSalon:
		return build[model.Salon](ctx, f, def, tokens), nil
	case model.KindWorker:
		return build[model.Worker](ctx, f, def, tokens), nil
	case model.KindProduct:
		return build[model.Product](ctx, f, def, tokens), nil
	}
	return nil, fmt.Errorf("session: collection %q has unknown entity kind %q", def.ID, def.Entity)
}

func build[T model.Entity[T]](ctx context.Context, f *Factory, def model.CollectionDefinition, tokens resource.TokenSource) View {
	logger := f.logger.With(zap.String("collection", def.ID))
	client := resource.NewClient[T](f.exec, def.Path, tokens,
		resource.WithParamNames(ParamNames(def.Status)),
		resource.WithLogger(logger),
	)

	opts := []listview.Option{
		listview.WithCollection(def.ID),
		listview.WithPageSize(def.PageSize),
		listview.WithMaxVisiblePages(f.maxVisible),
		listview.WithLogger(f.logger),
		listview.WithMetrics(f.metrics),
		listview.WithContext(ctx),
	}
	if def.ConfirmDelete != nil {
		opts = append(opts, listview.WithDeletePrompt(def.ConfirmDelete.Message))
	}
	var res listview.Resource[T] = client
	if f.schemas != nil {
		res = withSchemaCheck[T](client, f.schemas, def.Operations)
	}
	return Bind(listview.New[T](res, opts...))
}

// ParamNames returns the query parameter names for a collection's status
// encoding. Other names keep their defaults.
func ParamNames(s model.StatusDefinition) filter.ParamNames {
	names := filter.DefaultParamNames()
	if s.Param != "" {
		names.Status = s.Param
	}
	names.StatusInverted = s.Inverted
	return names
}
