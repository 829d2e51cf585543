package connection

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"graphql-sqlfilter/internal/dbexec"
	"graphql-sqlfilter/internal/filterset"
	"graphql-sqlfilter/internal/model"
	"graphql-sqlfilter/internal/nodeid"
)

// NodeIDField is the global ID field of node types and the argument of the
// root node field. Models keep their own id columns.
const NodeIDField = "nodeId"

// nodeTypeKey marks rows returned by the root node field with their object type.
const nodeTypeKey = "\x00nodeType"

// hasNodeID reports whether m's node type carries a global ID: m needs a
// primary key and no attribute of its own named NodeIDField.
func hasNodeID(m *model.Model) bool {
	_, taken := m.Attr(NodeIDField)
	return len(m.PrimaryKey()) > 0 && !taken
}

// NodeInterface returns the Node interface implemented by every node type
// whose model has a primary key.
func (f *Factory) NodeInterface() *graphql.Interface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodeInterfaceLocked()
}

func (f *Factory) nodeInterfaceLocked() *graphql.Interface {
	if f.nodeInterface != nil {
		return f.nodeInterface
	}
	f.nodeInterface = graphql.NewInterface(graphql.InterfaceConfig{
		Name:        f.types.UniqueName("Node", "node interface"),
		Description: "An object with a global ID.",
		Fields: graphql.Fields{
			NodeIDField: &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		},
		ResolveType: func(p graphql.ResolveTypeParams) *graphql.Object {
			row, _ := p.Value.(map[string]any)
			obj, _ := row[nodeTypeKey].(*graphql.Object)
			return obj
		},
	})
	return f.nodeInterface
}

// nodeIDResolver encodes the global ID of a row of m.
func (f *Factory) nodeIDResolver(m *model.Model, typeName string) graphql.FieldResolveFn {
	pk := m.PrimaryKey()
	return func(p graphql.ResolveParams) (any, error) {
		row, ok := p.Source.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected %s source %T", m.Name, p.Source)
		}
		values := make([]any, len(pk))
		for i, col := range pk {
			values[i] = row[col.Name]
		}
		return nodeid.Encode(typeName, values...)
	}
}

// NodeField returns the root node(nodeId: ID!) field.
func (f *Factory) NodeField() *graphql.Field {
	return &graphql.Field{
		Type:        f.NodeInterface(),
		Description: "Fetches an object given its global ID.",
		Args: graphql.FieldConfigArgument{
			NodeIDField: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
		Resolve: func(p graphql.ResolveParams) (any, error) {
			id, _ := p.Args[NodeIDField].(string)
			ctx, span := startSpan(p.Context, "connection.node")
			row, err := f.LookupNode(ctx, id)
			finishSpan(span, err)
			if err != nil {
				return nil, err
			}
			if row == nil {
				return nil, nil
			}
			return row, nil
		},
	}
}

// LookupNode loads the row a global ID points at. It returns nil without an
// error when no row has that key.
func (f *Factory) LookupNode(ctx context.Context, id string) (map[string]any, error) {
	typeName, raw, err := nodeid.Decode(id)
	if err != nil {
		return nil, err
	}
	m, obj, ok := f.nodeType(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown node type %q", nodeid.ErrInvalidID, typeName)
	}
	pk := m.PrimaryKey()
	if len(raw) != len(pk) {
		return nil, fmt.Errorf("%w: %s takes %d key values, got %d", nodeid.ErrInvalidID, typeName, len(pk), len(raw))
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("connection.model", m.Name))

	q := filterset.NewQuery(m, f.dialect)
	key := sq.Eq{}
	for i, col := range pk {
		v, err := nodeid.ParseKey(col, raw[i])
		if err != nil {
			return nil, err
		}
		key[q.Col(col.Name)] = v
	}
	q = q.Where(key)
	query, args, err := q.WithBuilder(q.Builder().Limit(1)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s lookup: %w", m.Name, err)
	}
	rows, err := dbexec.Query(ctx, f.exec, columnNames(m), query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", m.Name, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	row[nodeTypeKey] = obj
	return row, nil
}

// nodeType finds the model and object type of a node type name, building
// any node types not created yet.
func (f *Factory) nodeType(name string) (*model.Model, *graphql.Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodeModels[name]; !ok {
		for _, m := range f.schema.Models() {
			f.nodeLocked(m)
		}
	}
	m, ok := f.nodeModels[name]
	if !ok {
		return nil, nil, false
	}
	return m, f.nodes[m], true
}
