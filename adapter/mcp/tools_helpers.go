package mcp

import (
	"context"
	"errors"
	"sort"

	"github.com/felixgeelhaar/entitlekit/adapter/cli"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/application"
	"github.com/felixgeelhaar/entitlekit/internal/purchases/domain"
	"github.com/felixgeelhaar/entitlekit/pkg/observability"
)

var (
	errNoSession = errors.New("purchases session not initialized")
	errNoSandbox = errors.New("sandbox store not configured")
	errNoCache   = errors.New("cache not configured")
)

// timed wraps a tool handler so every call is logged and measured.
func timed[I, O any](t *toolset, name string, fn func(context.Context, I) (O, error)) func(context.Context, I) (O, error) {
	return func(ctx context.Context, input I) (O, error) {
		timer := observability.StartTimer(name).
			WithLogger(t.logger).
			WithMetrics(t.metrics).
			WithTags(observability.T("transport", "mcp"))
		out, err := fn(ctx, input)
		timer.Stop(err)
		return out, err
	}
}

func (t *toolset) orchestrator() (*application.Orchestrator, error) {
	if t.app == nil || t.app.Orchestrator == nil {
		return nil, errNoSession
	}
	return t.app.Orchestrator, nil
}

// await waits for f within the tool timeout and lets background cache writes
// finish before answering.
func await[T any](ctx context.Context, t *toolset, f *application.Future[T]) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	v, err := f.Await(ctx)
	t.settle()
	if err != nil {
		return v, cli.FailWithHint(err)
	}
	return v, nil
}

func (t *toolset) settle() {
	if t.app.Store != nil {
		t.app.Store.Wait()
	}
	if t.app.Orchestrator != nil {
		t.app.Orchestrator.Wait()
	}
}

type permissionsOutput struct {
	Active      []string            `json:"active"`
	Permissions []domain.Permission `json:"permissions"`
}

func newPermissionsOutput(perms map[string]domain.Permission) permissionsOutput {
	out := permissionsOutput{
		Active:      []string{},
		Permissions: make([]domain.Permission, 0, len(perms)),
	}
	for _, p := range perms {
		out.Permissions = append(out.Permissions, p)
		if p.Active {
			out.Active = append(out.Active, p.ID)
		}
	}
	sort.Strings(out.Active)
	sort.Slice(out.Permissions, func(i, j int) bool { return out.Permissions[i].ID < out.Permissions[j].ID })
	return out
}

// productView is a product with its store metadata, for JSON output.
type productView struct {
	domain.Product
	Store *domain.StoreMetadata `json:"store,omitempty"`
}

func productViews(products []domain.Product) []productView {
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{Product: p, Store: p.StoreDetails})
	}
	return views
}

func sortedProducts(products map[string]domain.Product) []domain.Product {
	list := make([]domain.Product, 0, len(products))
	for _, p := range products {
		list = append(list, p)
	}
	cli.SortProducts(list)
	return list
}
