package db

import (
	"context"
	"fmt"

	"github.com/ishyv/tx-discord-bot-sub004/config"
	"github.com/sirupsen/logrus"
	rethink "gopkg.in/gorethink/gorethink.v3"
)

//Connection contains a handle to the database. It implements the autorole rule, grant and
//tally stores, the feature flag lookup and the reputation ledger.
type Connection struct {
	session        *rethink.Session
	exec           rethink.QueryExecutor
	featureDefault bool
}

type secondaryIndex struct {
	table string
	name  string
	fn    func(row rethink.Term) interface{}
}

//Indexes are created alongside the tables. Compound primary keys are arrays, so most
//indexes select a prefix of the id.
var secondaryIndexes = []secondaryIndex{
	{rulesTable, "guild", func(row rethink.Term) interface{} {
		return row.Field("id").Nth(0)
	}},
	{grantsTable, "triple", func(row rethink.Term) interface{} {
		return []interface{}{row.Field("id").Nth(0), row.Field("id").Nth(1), row.Field("id").Nth(2)}
	}},
	{grantsTable, "rule", func(row rethink.Term) interface{} {
		return []interface{}{row.Field("id").Nth(0), row.Field("id").Nth(3)}
	}},
	{grantsTable, "expires_at", func(row rethink.Term) interface{} {
		return row.Field("expires_at")
	}},
	{talliesTable, "message", func(row rethink.Term) interface{} {
		return []interface{}{row.Field("id").Nth(0), row.Field("id").Nth(1)}
	}},
	{talliesTable, "author", func(row rethink.Term) interface{} {
		return []interface{}{row.Field("id").Nth(0), row.Field("author_id"), row.Field("id").Nth(2)}
	}},
	{presenceTable, "message", func(row rethink.Term) interface{} {
		return []interface{}{row.Field("id").Nth(0), row.Field("message")}
	}},
}

//Init creates a new connection pool for the configured database and makes sure every table exists
func Init(cfg config.DBConfig, featureDefault bool) (*Connection, error) {
	session, err := rethink.Connect(rethink.ConnectOpts{
		Address:    cfg.Address,
		Database:   cfg.Name,
		InitialCap: cfg.InitialCap,
		MaxOpen:    cfg.MaxOpen,
	})
	if err != nil {
		logrus.Errorf("Failed to create connection to rethinkdb instance at address %v because %v.", cfg.Address, err)
		return nil, fmt.Errorf("failed to create connection to rethinkdb instance at address %v: %w", cfg.Address, err)
	}

	res := Connection{
		session:        session,
		exec:           session,
		featureDefault: featureDefault,
	}

	//Ensure database and required tables exist, and wait for it all to be ready
	res.CreateDatabase(cfg.Name)
	res.CreateTables()

	return &res, nil
}

//Close cleanly terminates the database connection
func (db *Connection) Close() {
	logrus.Info("Terminating DB connection...")
	if db.session != nil {
		_ = db.session.Close()
	}
}

//CreateTables ensures all tables and secondary indexes needed exist.
func (db *Connection) CreateTables() {
	for _, table := range []string{guildsTable, rulesTable, grantsTable, talliesTable, presenceTable, membersTable} {
		_, err := rethink.TableCreate(table, rethink.TableCreateOpts{
			PrimaryKey: "id",
		}).RunWrite(db.exec)
		if err != nil {
			logrus.Warnf("Failed to create %v table due to error %v", table, err)
		}
	}
	for _, idx := range secondaryIndexes {
		_, err := rethink.Table(idx.table).IndexCreateFunc(idx.name, idx.fn).RunWrite(db.exec)
		if err != nil {
			logrus.Debugf("Failed to create index %v on %v due to error %v", idx.name, idx.table, err)
		}
	}
	db.WaitTablesRead()
}

//WaitTablesRead blocks until every table and index can serve reads
func (db *Connection) WaitTablesRead() {
	waitOpts := rethink.WaitOpts{
		WaitFor: "ready_for_reads",
	}
	for _, table := range []string{guildsTable, rulesTable, grantsTable, talliesTable, presenceTable, membersTable} {
		if err := rethink.Table(table).Wait(waitOpts).Exec(db.exec); err != nil {
			logrus.Warnf("Failed waiting for table %v due to error %v", table, err)
		}
		if err := rethink.Table(table).IndexWait().Exec(db.exec); err != nil {
			logrus.Warnf("Failed waiting for indexes of %v due to error %v", table, err)
		}
	}
}

//CreateDatabase ensures the bot database exists
func (db *Connection) CreateDatabase(dbName string) {
	_, err := rethink.DBCreate(dbName).RunWrite(db.exec)
	if err != nil {
		logrus.Warnf("Failed to create %v DB due to error %v", dbName, err)
	}
	if err := rethink.DB(dbName).Wait().Exec(db.exec); err != nil {
		logrus.Warnf("Failed waiting for %v DB due to error %v", dbName, err)
	}
}

//Queries run on the pooled session without a per-call deadline; an already cancelled
//context short-circuits before the round trip.
func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("query cancelled: %w", err)
	}
	return nil
}

//writeError turns the per-document error counter of a write response into an error
func writeError(resp rethink.WriteResponse) error {
	if resp.Errors > 0 {
		return fmt.Errorf("%v", resp.FirstError)
	}
	return nil
}
