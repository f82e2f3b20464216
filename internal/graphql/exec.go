package graphql

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/google/uuid"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/auth"
	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/records"
	"github.com/rpattn/pawlog/internal/timeline"
)

//go:embed schema.graphql
var schemaSDL string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSDL})

// field resolves one schema field against its parent value. service marks
// fields that reach a backing service; only those are logged.
type field struct {
	resolve func(ctx context.Context, obj any, args map[string]any) (any, error)
	service bool
}

func prop(get func(obj any) any) field {
	return field{resolve: func(_ context.Context, obj any, _ map[string]any) (any, error) { return get(obj), nil }}
}

type executableSchema struct {
	resolver *Resolver
	fields   map[string]map[string]field
}

var _ graphql.ExecutableSchema = (*executableSchema)(nil)

// NewExecutableSchema binds the pawlog schema to a resolver.
func NewExecutableSchema(r *Resolver) graphql.ExecutableSchema {
	return &executableSchema{resolver: r, fields: fieldTable(r)}
}

func (e *executableSchema) Schema() *ast.Schema { return parsedSchema }

func (e *executableSchema) Complexity(context.Context, string, string, int, map[string]any) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	var root string
	switch opCtx.Operation.Operation {
	case ast.Query:
		root = parsedSchema.Query.Name
	case ast.Mutation:
		root = parsedSchema.Mutation.Name
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}

	first := true
	return func(ctx context.Context) *graphql.Response {
		if !first {
			return nil
		}
		first = false

		run := &execution{schema: e, opCtx: opCtx, logger: e.resolver.logger}
		data, ok := run.completeObject(ctx, nil, root, opCtx.Operation.SelectionSet, nil)
		resp := &graphql.Response{Data: json.RawMessage("null"), Errors: run.errors}
		if ok {
			var buf bytes.Buffer
			data.MarshalGQL(&buf)
			resp.Data = buf.Bytes()
		}
		return resp
	}
}

// execution walks one operation. Errors land on the response with their
// path; a failing non-null position nulls its nearest nullable parent.
type execution struct {
	schema *executableSchema
	opCtx  *graphql.OperationContext
	logger *zap.Logger

	mu     sync.Mutex
	errors gqlerror.List
}

var errNullValue = errors.New("the requested element is null which the schema does not allow")

func (x *execution) completeObject(ctx context.Context, path ast.Path, typeName string, sel ast.SelectionSet, obj any) (graphql.Marshaler, bool) {
	fields := graphql.CollectFields(x.opCtx, sel, []string{typeName})
	out := graphql.NewFieldSet(fields)
	for i, f := range fields {
		if f.Name == "__typename" {
			out.Values[i] = graphql.MarshalString(typeName)
			continue
		}
		m, ok := x.resolveField(ctx, path, typeName, f, obj)
		if !ok {
			return nil, false
		}
		out.Values[i] = m
	}
	return out, true
}

func (x *execution) resolveField(ctx context.Context, path ast.Path, typeName string, f graphql.CollectedField, obj any) (graphql.Marshaler, bool) {
	fieldPath := append(path[:len(path):len(path)], ast.PathName(f.Alias))
	typ := f.Definition.Type

	def, ok := x.schema.fields[typeName][f.Name]
	if !ok {
		x.fail(fieldPath, fmt.Errorf("no resolver for %s.%s", typeName, f.Name))
		return x.nullFor(typ)
	}

	args := f.ArgumentMap(x.opCtx.Variables)
	fc := &graphql.FieldContext{
		Parent:     graphql.GetFieldContext(ctx),
		Object:     typeName,
		Field:      f,
		Args:       args,
		IsMethod:   true,
		IsResolver: def.service,
	}
	ctx = graphql.WithFieldContext(ctx, fc)

	next := func(ctx context.Context) (any, error) { return def.resolve(ctx, obj, args) }
	var value any
	var err error
	if mw := x.opCtx.ResolverMiddleware; mw != nil {
		value, err = mw(ctx, next)
	} else {
		value, err = next(ctx)
	}
	if err != nil {
		x.fail(fieldPath, err)
		return x.nullFor(typ)
	}
	fc.Result = value
	return x.complete(ctx, fieldPath, typ, f.Selections, value)
}

func (x *execution) nullFor(typ *ast.Type) (graphql.Marshaler, bool) {
	if typ.NonNull {
		return nil, false
	}
	return graphql.Null, true
}

func (x *execution) complete(ctx context.Context, path ast.Path, typ *ast.Type, sel ast.SelectionSet, value any) (graphql.Marshaler, bool) {
	if value == nil {
		if typ.NonNull {
			x.fail(path, errNullValue)
		}
		return x.nullFor(typ)
	}

	var m graphql.Marshaler
	ok := true
	switch def := parsedSchema.Types[typ.Name()]; {
	case typ.Elem != nil:
		m, ok = x.completeList(ctx, path, typ.Elem, sel, value)
	case def != nil && def.Kind == ast.Object:
		m, ok = x.completeObject(ctx, path, def.Name, sel, value)
	default:
		var err error
		if m, err = marshalLeaf(value); err != nil {
			x.fail(path, err)
			ok = false
		}
	}
	if !ok {
		return x.nullFor(typ)
	}
	return m, true
}

// completeList resolves elements concurrently so their loaders share a batch.
func (x *execution) completeList(ctx context.Context, path ast.Path, elem *ast.Type, sel ast.SelectionSet, value any) (graphql.Marshaler, bool) {
	items, isList := value.([]any)
	if !isList {
		x.fail(path, fmt.Errorf("expected a list, got %T", value))
		return nil, false
	}

	out := make(graphql.Array, len(items))
	valid := make([]bool, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item any) {
			defer wg.Done()
			itemPath := append(path[:len(path):len(path)], ast.PathIndex(i))
			out[i], valid[i] = x.complete(ctx, itemPath, elem, sel, item)
		}(i, item)
	}
	wg.Wait()

	for _, ok := range valid {
		if !ok {
			return nil, false
		}
	}
	return out, true
}

func marshalLeaf(value any) (graphql.Marshaler, error) {
	switch v := value.(type) {
	case string:
		return graphql.MarshalString(v), nil
	case bool:
		return graphql.MarshalBoolean(v), nil
	case int:
		return graphql.MarshalInt(v), nil
	case float64:
		return graphql.MarshalFloat(v), nil
	case time.Time:
		return graphql.MarshalTime(v), nil
	case uuid.UUID:
		return graphql.MarshalString(v.String()), nil
	default:
		return nil, fmt.Errorf("cannot serialize %T", value)
	}
}

func (x *execution) fail(path ast.Path, err error) {
	message, code := present(err)
	if code == codeInternal {
		x.logger.Error("graphql field failed", zap.String("path", path.String()), zap.Error(err))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.errors = append(x.errors, &gqlerror.Error{
		Message:    message,
		Path:       append(ast.Path(nil), path...),
		Extensions: map[string]any{"code": code},
	})
}

const (
	codeUnauthenticated = "UNAUTHENTICATED"
	codeNotFound        = "NOT_FOUND"
	codeBadInput        = "BAD_USER_INPUT"
	codeTryAgain        = "TRY_AGAIN"
	codeInternal        = "INTERNAL"
)

// present maps service errors onto client-safe messages and codes.
func present(err error) (string, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrSessionNotFound),
		errors.Is(err, auth.ErrSessionExpired):
		return auth.ErrUnauthenticated.Error(), codeUnauthenticated
	case errors.Is(err, domain.ErrNotFound):
		return "not found", codeNotFound
	case errors.Is(err, domain.ErrInvalid), errors.Is(err, timeline.ErrEmptySet):
		return err.Error(), codeBadInput
	case errors.Is(err, quota.ErrTierLookupFailed), errors.Is(err, quota.ErrCountLookupFailed):
		return err.Error() + ", please try again", codeTryAgain
	default:
		return "internal error", codeInternal
	}
}

func fieldTable(r *Resolver) map[string]map[string]field {
	return map[string]map[string]field{
		"Query": {
			"me": {service: true, resolve: func(ctx context.Context, _ any, _ map[string]any) (any, error) {
				return r.Me(ctx)
			}},
			"quota": {service: true, resolve: func(ctx context.Context, _ any, _ map[string]any) (any, error) {
				return r.Quota(ctx)
			}},
			"pets": {service: true, resolve: func(ctx context.Context, _ any, _ map[string]any) (any, error) {
				list, err := r.Pets(ctx)
				return listOf(list), err
			}},
			"pet": {service: true, resolve: func(ctx context.Context, _ any, args map[string]any) (any, error) {
				pet, err := r.Pet(ctx, stringArg(args, "id"))
				if pet == nil || err != nil {
					return nil, err
				}
				return *pet, nil
			}},
			"timeline": {service: true, resolve: func(ctx context.Context, _ any, args map[string]any) (any, error) {
				return r.Timeline(ctx, stringArg(args, "petId"), stringsArg(args, "filter"))
			}},
		},
		"Mutation": {
			"toggleFilter": {service: true, resolve: func(ctx context.Context, _ any, args map[string]any) (any, error) {
				return r.ToggleFilter(ctx, stringArg(args, "petId"), stringsArg(args, "active"), stringArg(args, "category"))
			}},
		},
		"Profile": {
			"id":          prop(func(o any) any { return o.(domain.Profile).ID }),
			"email":       prop(func(o any) any { return o.(domain.Profile).Email }),
			"displayName": prop(func(o any) any { return o.(domain.Profile).DisplayName }),
			"tier":        prop(func(o any) any { return tierEnum(o.(domain.Profile).Tier) }),
		},
		"Quota": {
			"tier":      prop(func(o any) any { return tierEnum(o.(quotaView).usage.Tier) }),
			"limit":     prop(func(o any) any { return optLimit(o.(quotaView).usage.Limit) }),
			"used":      prop(func(o any) any { return o.(quotaView).usage.Used }),
			"remaining": prop(func(o any) any { return optLimit(o.(quotaView).usage.Remaining) }),
			"bypassed":  prop(func(o any) any { return o.(quotaView).bypassed }),
		},
		"CategoryCount": {
			"category": prop(func(o any) any { return categoryEnum(o.(categoryCount).category) }),
			"label":    prop(func(o any) any { return o.(categoryCount).category.Label() }),
			"count":    prop(func(o any) any { return o.(categoryCount).count }),
		},
		"Pet": {
			"id":        prop(func(o any) any { return o.(domain.Pet).ID }),
			"name":      prop(func(o any) any { return o.(domain.Pet).Name }),
			"species":   prop(func(o any) any { return o.(domain.Pet).Species }),
			"breed":     prop(func(o any) any { return optString(o.(domain.Pet).Breed) }),
			"birthDate": prop(func(o any) any { return optTime(o.(domain.Pet).BirthDate) }),
			"weightKg":  prop(func(o any) any { return optFloat(o.(domain.Pet).WeightKg) }),
			"recordCounts": {service: true, resolve: func(ctx context.Context, obj any, _ map[string]any) (any, error) {
				counts, err := r.RecordCounts(ctx, obj.(domain.Pet))
				return listOf(counts), err
			}},
		},
		"HealthRecord": {
			"id":    prop(func(o any) any { return o.(domain.HealthRecord).ID }),
			"petId": prop(func(o any) any { return o.(domain.HealthRecord).PetID }),
			"type":  prop(func(o any) any { return recordTypeEnum(o.(domain.HealthRecord).Type) }),
			"category": prop(func(o any) any {
				if c, ok := timeline.CategoryOf(o.(domain.HealthRecord).Type); ok {
					return categoryEnum(c)
				}
				return nil
			}),
			"title":      prop(func(o any) any { return o.(domain.HealthRecord).Title }),
			"notes":      prop(func(o any) any { return optString(o.(domain.HealthRecord).Notes) }),
			"occurredAt": prop(func(o any) any { return o.(domain.HealthRecord).OccurredAt }),
			"nextDueAt":  prop(func(o any) any { return optTime(o.(domain.HealthRecord).NextDueAt) }),
			"value":      prop(func(o any) any { return optFloat(o.(domain.HealthRecord).Value) }),
		},
		"Timeline": {
			"petId": prop(func(o any) any { return o.(records.View).PetID }),
			"active": prop(func(o any) any {
				categories := o.(records.View).Active.Categories()
				out := make([]any, len(categories))
				for i, c := range categories {
					out[i] = categoryEnum(c)
				}
				return out
			}),
			"records":      prop(func(o any) any { return listOf(o.(records.View).Records) }),
			"counts":       prop(func(o any) any { return listOf(countsOf(o.(records.View).Counts)) }),
			"announcement": prop(func(o any) any { return o.(records.View).Announcement }),
			"rejected":     prop(func(o any) any { return o.(records.View).Rejected }),
			"notice":       prop(func(o any) any { return optString(o.(records.View).Notice) }),
		},
	}
}

func listOf[T any](items []T) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// stringsArg returns nil when the argument is absent or null.
func stringsArg(args map[string]any, name string) []string {
	raw, ok := args[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func tierEnum(t domain.Tier) string { return strings.ToUpper(string(t)) }

func recordTypeEnum(t domain.RecordType) string { return strings.ToUpper(string(t)) }
