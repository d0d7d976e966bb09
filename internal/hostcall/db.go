package hostcall

import (
	"database/sql"
	"fmt"

	"sable/internal/value"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Database host calls. Connections live in the Ctx handle table and
// cross the boundary as INT handles. Failures come back as Err results
// with a {message} payload, never as Go errors.

func fnDbConnect(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	driver, err := unpackStr(args, 0, "db.connect")
	if err != nil {
		return nil, err
	}
	connStr, err := unpackStr(args, 1, "db.connect")
	if err != nil {
		return nil, err
	}

	db, oerr := sql.Open(driver, connStr)
	if oerr != nil {
		return value.ErrOf(errStruct("failed to open connection: " + oerr.Error())), nil
	}
	if perr := db.Ping(); perr != nil {
		db.Close()
		return value.ErrOf(errStruct("failed to ping database: " + perr.Error())), nil
	}

	id := ctx.NextHandleID()
	ctx.PutHandle(id, db)
	return value.Ok(&value.Int{Value: id}), nil
}

func fnDbExec(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	id, err := unpackInt(args, 0, "db.exec")
	if err != nil {
		return nil, err
	}
	query, err := unpackStr(args, 1, "db.exec")
	if err != nil {
		return nil, err
	}
	db, derr := dbHandle(ctx, id)
	if derr != nil {
		return value.ErrOf(errStruct(derr.Message)), nil
	}

	params := sqlParams(args[2:])
	result, xerr := db.Exec(query, params...)
	if xerr != nil {
		return value.ErrOf(errStruct("exec failed: " + xerr.Error())), nil
	}

	affected, _ := result.RowsAffected()
	lastID, _ := result.LastInsertId()
	ctx.Effects.Record("db", "exec %q rows=%d", query, affected)

	out := value.NewStruct("ExecResult").
		Set("rowsAffected", &value.Int{Value: affected}).
		Set("lastInsertId", &value.Int{Value: lastID})
	return value.Ok(out), nil
}

func fnDbQuery(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	id, err := unpackInt(args, 0, "db.query")
	if err != nil {
		return nil, err
	}
	query, err := unpackStr(args, 1, "db.query")
	if err != nil {
		return nil, err
	}
	db, derr := dbHandle(ctx, id)
	if derr != nil {
		return value.ErrOf(errStruct(derr.Message)), nil
	}

	params := sqlParams(args[2:])
	rows, qerr := db.Query(query, params...)
	if qerr != nil {
		return value.ErrOf(errStruct("query failed: " + qerr.Error())), nil
	}
	defer rows.Close()

	out, rerr := renderRows(rows)
	if rerr != nil {
		return value.ErrOf(errStruct(rerr.Message)), nil
	}
	ctx.Effects.Record("db", "query %q rows=%d", query, len(out.Elements))
	return value.Ok(out), nil
}

func fnDbClose(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	id, err := unpackInt(args, 0, "db.close")
	if err != nil {
		return nil, err
	}
	if h, ok := ctx.Handle(id); ok {
		if db, ok := h.(*sql.DB); ok {
			db.Close()
		}
		ctx.DropHandle(id)
	}
	return value.NULL, nil
}

func dbHandle(ctx *Ctx, id int64) (*sql.DB, *value.Err) {
	h, ok := ctx.Handle(id)
	if !ok {
		return nil, value.NewErr(value.ErrHostFailure, "invalid connection handle %d", id)
	}
	db, ok := h.(*sql.DB)
	if !ok {
		return nil, value.NewErr(value.ErrHostFailure, "handle %d is not a database connection", id)
	}
	return db, nil
}

func sqlParams(args []value.Value) []interface{} {
	params := make([]interface{}, len(args))
	for i, a := range args {
		switch a := a.(type) {
		case *value.Int:
			params[i] = a.Value
		case *value.Float:
			params[i] = a.Value
		case *value.Str:
			params[i] = a.Value
		case *value.Bool:
			params[i] = a.Value
		case *value.Bytes:
			params[i] = a.Value
		case *value.Null:
			params[i] = nil
		default:
			params[i] = a.Inspect()
		}
	}
	return params
}

func renderRows(rows *sql.Rows) (*value.List, *value.Err) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, value.NewErr(value.ErrHostFailure, "failed to read columns: %v", err)
	}

	out := &value.List{}
	for rows.Next() {
		raw := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, value.NewErr(value.ErrHostFailure, "failed to scan row: %v", err)
		}

		row := value.NewMap()
		for i, col := range cols {
			row.Put(col, sqlValue(raw[i]))
		}
		out.Elements = append(out.Elements, row)
	}
	if err := rows.Err(); err != nil {
		return nil, value.NewErr(value.ErrHostFailure, "row iteration failed: %v", err)
	}
	return out, nil
}

func sqlValue(raw interface{}) value.Value {
	switch v := raw.(type) {
	case nil:
		return value.NULL
	case int64:
		return &value.Int{Value: v}
	case float64:
		return &value.Float{Value: v}
	case bool:
		return value.BoolOf(v)
	case []byte:
		return &value.Str{Value: string(v)}
	case string:
		return &value.Str{Value: v}
	default:
		return &value.Str{Value: fmt.Sprintf("%v", v)}
	}
}
