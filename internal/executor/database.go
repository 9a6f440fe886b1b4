package executor

import (
	"context"
	"database/sql"
	"time"

	"sagaorchestrator/internal/saga"
)

// DatabaseExecutor executes DATABASE_OP steps: a parameterized statement
// against a *sql.DB. Config recognizes: query (string),
// query_parameters ([]interface{}).
type DatabaseExecutor struct {
	db *sql.DB
}

// NewDatabaseExecutor returns an executor bound to db.
func NewDatabaseExecutor(db *sql.DB) *DatabaseExecutor {
	return &DatabaseExecutor{db: db}
}

// NewNoopDatabaseExecutor returns a DatabaseExecutor with no backing *sql.DB,
// used as the registry's placeholder default until a host program binds a
// real one — any invocation fails closed rather than panicking on a nil db.
func NewNoopDatabaseExecutor() *DatabaseExecutor {
	return &DatabaseExecutor{}
}

func (e *DatabaseExecutor) Execute(ctx context.Context, step *saga.Step, sagaInput map[string]interface{}) Result {
	start := time.Now()

	if e.db == nil {
		return Result{Success: false, ErrorMessage: "no database binding configured for database_op steps", Duration: time.Since(start)}
	}

	statement, _ := step.Config["query"].(string)
	if statement == "" {
		return Result{Success: false, ErrorMessage: "database_op step missing query", Duration: time.Since(start)}
	}

	var args []interface{}
	if raw, ok := step.Config["query_parameters"].([]interface{}); ok {
		args = raw
	}

	result, err := e.db.ExecContext(ctx, statement, args...)
	duration := time.Since(start)
	if err != nil {
		return Result{Success: false, ErrorMessage: "statement failed: " + err.Error(), Duration: duration}
	}

	rows, _ := result.RowsAffected()
	return Result{
		Success:  true,
		Output:   map[string]interface{}{"rows_affected": rows},
		Duration: duration,
	}
}
