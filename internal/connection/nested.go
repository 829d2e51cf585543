package connection

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"graphql-sqlfilter/internal/model"
)

// nestedResolver resolves a relationship field of owner's node type. The
// returned thunk lets sibling parents queue their keys before the loader
// runs its query.
func (f *Factory) nestedResolver(owner *model.Model, rel *model.Relationship, target *model.Model) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		row, ok := p.Source.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s: unexpected source %T", owner.Name, rel.Name, p.Source)
		}

		field := f.Field(target)
		var (
			pg        page
			typeName  string
			key       string
			batchArgs map[string]any
		)
		if rel.Uselist {
			sorts, err := field.sorting(p.Args)
			if err != nil {
				return nil, err
			}
			typeName, key = field.typeName(), sortKey(sorts)
			if pg, err = f.parsePage(p.Args, typeName, key); err != nil {
				return nil, err
			}
			batchArgs = map[string]any{}
			for _, name := range []string{f.filterArg, "sort"} {
				if v, ok := p.Args[name]; ok && v != nil {
					batchArgs[name] = v
				}
			}
		}

		parentKey := make([]any, len(rel.LocalColumns))
		for i, attr := range rel.LocalColumns {
			if row[attr] == nil {
				return f.nestedValue(rel, nil, pg, typeName, key), nil
			}
			parentKey[i] = row[attr]
		}

		load := f.loaderFor(p, owner, rel, target, batchArgs).Load(parentKey)
		return func() (any, error) {
			rows, err := load(p.Context)
			if err != nil {
				return nil, err
			}
			return f.nestedValue(rel, rows, pg, typeName, key), nil
		}, nil
	}
}

// nestedValue shapes the related rows: the first row (or nil) for a scalar
// relationship, a page sliced in memory for a collection.
func (f *Factory) nestedValue(rel *model.Relationship, rows []map[string]any, pg page, typeName, key string) any {
	if !rel.Uselist {
		if len(rows) == 0 {
			return nil
		}
		return rows[0]
	}
	w := pg.window(len(rows))
	return result(rows[w.start:w.end], w, len(rows), typeName, key)
}
