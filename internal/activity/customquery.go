package activity

import (
	"fmt"
	"strconv"
	"time"
)

// RunCustomQuery executes operator-supplied SQL and returns a tabular
// result, or a human-readable message when the statement failed or returned
// no data. This is an unrestricted escape hatch for trusted operators only;
// every statement is logged at call time. Errors never leave the store in a
// bad state: they are caught and embedded in the result message.
func (r *Repository) RunCustomQuery(query string) CustomQueryResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := CustomQueryResult{Columns: []string{}, Rows: [][]string{}}
	if !r.ready {
		result.Message = "Error running query: " + ErrNotInitialized.Error()
		return result
	}

	r.logger.Printf("RunCustomQuery : %s", query)

	w := r.db.Writer()
	rows, err := w.Query(query)
	if err != nil {
		r.logger.Printf("[ERROR] custom query failed: %v", err)
		result.Message = "Error running query: " + err.Error()
		return result
	}

	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		result.Message = "Error running query: " + err.Error()
		return result
	}

	columnsDone := false
	for rows.Next() {
		if !columnsDone {
			result.Columns = columns
			columnsDone = true
		}

		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			rows.Close()
			result.Message = "Error running query: " + err.Error()
			return result
		}

		cells := make([]string, len(columns))
		for i, v := range raw {
			cells[i] = formatCell(v)
		}
		result.Rows = append(result.Rows, cells)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		result.Message = "Error running query: " + err.Error()
		return result
	}

	if len(result.Columns) == 0 && len(result.Rows) == 0 {
		// The writer pool holds a single connection, so changes() reports
		// on the statement just executed.
		var changes int64
		_ = w.QueryRow("SELECT changes()").Scan(&changes)
		result.Message = fmt.Sprintf("Query executed, no data returned. Number of rows affected: %d", changes)
	}

	return result
}

// formatCell coerces a driver value into its display string.
func formatCell(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(value)
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case time.Time:
		return value.Format(timeFormat)
	default:
		return fmt.Sprintf("%v", value)
	}
}
