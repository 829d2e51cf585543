package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"

	"graphql-sqlfilter/internal/logging"
)

// RequestInfo describes the operation of one GraphQL request.
type RequestInfo struct {
	OperationType string
	OperationName string
	// Fields counts selected fields, fragments expanded once.
	Fields int
	Depth  int
	// Variables counts declared operation variables.
	Variables int
	// FilteredFields counts fields called with the filter argument.
	FilteredFields int
}

type requestInfoKey struct{}

// RequestInfoFromContext returns the info stored by GraphQLRequestMiddleware.
func RequestInfoFromContext(ctx context.Context) (*RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info, ok && info != nil
}

// GraphQLRequestMiddleware parses the GraphQL request once, stores its
// RequestInfo in the context and adds the operation to the request logger.
// filterArg names the filter argument counted in FilteredFields.
func GraphQLRequestMiddleware(filterArg string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query, operationName := extractGraphQLRequest(r)
			info, err := analyzeQuery(query, operationName, filterArg)
			if err != nil || info == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), requestInfoKey{}, info)
			fields := []any{slog.String("graphql_operation_type", info.OperationType)}
			if info.OperationName != "" {
				fields = append(fields, slog.String("graphql_operation_name", info.OperationName))
			}
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(fields...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type graphQLRequest struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

// extractGraphQLRequest reads the query and operation name and restores the body.
func extractGraphQLRequest(r *http.Request) (string, string) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	case http.MethodPost:
	default:
		return "", ""
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), ""
	}
	var payload graphQLRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Query, payload.OperationName
}

func analyzeQuery(query, operationName, filterArg string) (*RequestInfo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "graphql"}),
	})
	if err != nil {
		return nil, err
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var op, first *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			if first == nil {
				first = d
			}
			if operationName != "" && d.Name != nil && d.Name.Value == operationName {
				op = d
			}
		}
	}
	if op == nil && operationName == "" {
		op = first
	}
	if op == nil {
		return nil, nil
	}

	info := &RequestInfo{
		OperationType: string(op.Operation),
		Variables:     len(op.VariableDefinitions),
	}
	if op.Name != nil {
		info.OperationName = op.Name.Value
	}
	w := &selectionWalker{fragments: fragments, filterArg: filterArg, visited: map[string]bool{}, info: info}
	w.walk(op.SelectionSet, 1)
	return info, nil
}

type selectionWalker struct {
	fragments map[string]*ast.FragmentDefinition
	filterArg string
	visited   map[string]bool
	info      *RequestInfo
}

func (w *selectionWalker) walk(set *ast.SelectionSet, depth int) {
	if set == nil {
		return
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			w.info.Fields++
			if depth > w.info.Depth {
				w.info.Depth = depth
			}
			for _, arg := range sel.Arguments {
				if w.filterArg != "" && arg.Name != nil && arg.Name.Value == w.filterArg {
					w.info.FilteredFields++
				}
			}
			w.walk(sel.SelectionSet, depth+1)
		case *ast.InlineFragment:
			w.walk(sel.SelectionSet, depth)
		case *ast.FragmentSpread:
			name := sel.Name.Value
			// each fragment counts once, which also breaks spread cycles
			if w.visited[name] {
				continue
			}
			w.visited[name] = true
			if frag, ok := w.fragments[name]; ok {
				w.walk(frag.SelectionSet, depth)
			}
		}
	}
}
