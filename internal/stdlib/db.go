package stdlib

import (
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/seanpringle/rela/internal/rerr"
	"github.com/seanpringle/rela/internal/value"
	"github.com/seanpringle/rela/internal/vm"
)

// InstallDB registers the "db" native-callback module (db.open, db.query,
// db.exec, db.close), a thin database/sql wrapper over any of the four
// blank-imported drivers. Connections are kept behind a UserData handle
// tagged with a uuid (Userdata.ID) so scripts never see a raw Go pointer,
// per SPEC_FULL.md's DOMAIN STACK table.
func InstallDB(v *vm.VM) {
	lib := v.AllocMap()

	reg := func(name string, fn func(*vm.VM) (int, error)) {
		v.RegisterNative("db."+name, func(raw any) (int, error) {
			return fn(raw.(*vm.VM))
		})
		item, _ := v.CoreGet("db." + name)
		lib.Set(value.String(v.Intern(name)), item)
	}

	reg("open", dbOpen)
	reg("query", dbQuery)
	reg("exec", dbExec)
	reg("close", dbClose)

	v.SetCore("db", value.MapItem(lib))
}

func asString(v *vm.VM, it value.Item) (string, error) {
	if it.Kind != value.KindString {
		return "", fmt.Errorf("expected string, found %s", it.Kind)
	}
	return *it.Str, nil
}

func dbOpen(v *vm.VM) (int, error) {
	dsn, err := asString(v, v.Pick(v.Depth()-1))
	if err != nil {
		return 0, rerr.WrapHost(err, "db.open")
	}
	driver, err := asString(v, v.Pick(v.Depth()-2))
	if err != nil {
		return 0, rerr.WrapHost(err, "db.open")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return 0, rerr.WrapHost(err, "db.open: %s", driver)
	}
	for v.Depth() > 0 {
		v.Pop()
	}
	handle := v.NewUserdata("db:"+uuid.NewString(), db)
	v.Push(value.UserItem(handle))
	return 1, nil
}

func dbHandle(v *vm.VM, it value.Item) (*sql.DB, error) {
	if it.Kind != value.KindUserdata {
		return nil, fmt.Errorf("expected db handle, found %s", it.Kind)
	}
	db, ok := it.User.Data.(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("userdata is not a db handle")
	}
	return db, nil
}

func dbQuery(v *vm.VM) (int, error) {
	query, err := asString(v, v.Pick(v.Depth()-1))
	if err != nil {
		return 0, rerr.WrapHost(err, "db.query")
	}
	db, err := dbHandle(v, v.Pick(v.Depth()-2))
	if err != nil {
		return 0, rerr.WrapHost(err, "db.query")
	}

	rows, err := db.Query(query)
	if err != nil {
		return 0, rerr.WrapHost(err, "db.query: %s", query)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, rerr.WrapHost(err, "db.query: columns")
	}

	result := v.AllocVector()
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return 0, rerr.WrapHost(err, "db.query: scan")
		}
		row := v.AllocMap()
		for i, col := range cols {
			row.Set(value.String(v.Intern(col)), goValue(v, vals[i]))
		}
		result.Push(value.MapItem(row))
	}

	for v.Depth() > 0 {
		v.Pop()
	}
	v.Push(value.VecItem(result))
	return 1, nil
}

func dbExec(v *vm.VM) (int, error) {
	stmt, err := asString(v, v.Pick(v.Depth()-1))
	if err != nil {
		return 0, rerr.WrapHost(err, "db.exec")
	}
	db, err := dbHandle(v, v.Pick(v.Depth()-2))
	if err != nil {
		return 0, rerr.WrapHost(err, "db.exec")
	}

	res, err := db.Exec(stmt)
	if err != nil {
		return 0, rerr.WrapHost(err, "db.exec: %s", stmt)
	}
	n, _ := res.RowsAffected()

	for v.Depth() > 0 {
		v.Pop()
	}
	v.Push(value.Int(n))
	return 1, nil
}

func dbClose(v *vm.VM) (int, error) {
	db, err := dbHandle(v, v.Pick(v.Depth()-1))
	if err != nil {
		return 0, rerr.WrapHost(err, "db.close")
	}
	for v.Depth() > 0 {
		v.Pop()
	}
	return 0, db.Close()
}

// goValue converts a database/sql scan result into a runtime Item.
func goValue(v *vm.VM, x any) value.Item {
	switch t := x.(type) {
	case nil:
		return value.Nil()
	case int64:
		return value.Int(t)
	case float64:
		return value.Float(t)
	case bool:
		return value.Bool(t)
	case []byte:
		return value.String(v.Intern(string(t)))
	case string:
		return value.String(v.Intern(t))
	default:
		return value.String(v.Intern(fmt.Sprintf("%v", t)))
	}
}
