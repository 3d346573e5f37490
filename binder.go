package zorm

import (
	"database/sql"
)

// bind drains rows into a slice of Values keyed by column name.
// Text columns returned as []byte are converted to string.
func bind(rows *sql.Rows) ([]Values, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var output []Values
	for rows.Next() {
		dest := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range dest {
			ptrs[i] = &dest[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Values, len(columns))
		for i, column := range columns {
			row[column] = normalize(dest[i])
		}
		output = append(output, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return output, nil
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
