package dbexec

import "context"

// ScanRows reads every remaining row into a map keyed by names, which pair
// positionally with the selected columns. rows is not closed.
func ScanRows(rows Rows, names []string) ([]map[string]any, error) {
	var results []map[string]any

	for rows.Next() {
		values := make([]any, len(names))
		valuePtrs := make([]any, len(names))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = ConvertValue(values[i])
		}
		results = append(results, row)
	}

	return results, rows.Err()
}

// Query runs query and scans the result with ScanRows.
func Query(ctx context.Context, exec QueryExecutor, names []string, query string, args ...any) ([]map[string]any, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows, names)
}

// ConvertValue normalizes driver values; []byte becomes string.
func ConvertValue(val any) any {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}
