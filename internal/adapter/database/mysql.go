package database

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/semmidev/dumpgram/internal/domain"
)

const (
	listTablesQuery = "SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'"
	defaultTimeout  = 30 * time.Second
)

// ConnectFunc opens a connection pool for one database descriptor.
type ConnectFunc func(db domain.DatabaseDescriptor) (*sql.DB, error)

// MySQLDumper serializes a MySQL database into a replayable SQL script
// without shelling out to mysqldump.
type MySQLDumper struct {
	connect ConnectFunc
	now     func() time.Time
}

func NewMySQL(timeout time.Duration) *MySQLDumper {
	return NewMySQLWithConnector(MySQLConnector(timeout))
}

func NewMySQLWithConnector(connect ConnectFunc) *MySQLDumper {
	return &MySQLDumper{
		connect: connect,
		now:     time.Now,
	}
}

// MySQLConnector dials the descriptor's server with the given dial and read timeout.
func MySQLConnector(timeout time.Duration) ConnectFunc {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return func(d domain.DatabaseDescriptor) (*sql.DB, error) {
		cfg := mysql.NewConfig()
		cfg.User = d.Username
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = d.Addr()
		cfg.DBName = d.Name
		cfg.Collation = "utf8mb4_unicode_ci"
		cfg.Timeout = timeout
		cfg.ReadTimeout = 10 * timeout
		cfg.WriteTimeout = timeout

		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, err
		}

		db := sql.OpenDB(connector)
		db.SetMaxOpenConns(1)
		return db, nil
	}
}

func (m *MySQLDumper) GetType() string {
	return "mysql"
}

// Dump writes CREATE TABLE and INSERT statements for every base table of db
// into outputPath, replacing any existing file. On failure the partial file
// is removed.
func (m *MySQLDumper) Dump(ctx context.Context, db domain.DatabaseDescriptor, outputPath string) (err error) {
	conn, err := m.connect(db)
	if err != nil {
		return fmt.Errorf("open %s: %w: %w", db.Name, domain.ErrConnection, err)
	}
	defer conn.Close()

	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("connect to %s: %w: %w", db.Name, domain.ErrConnection, err)
	}

	tables, err := listTables(ctx, conn)
	if err != nil {
		return fmt.Errorf("list tables of %s: %w: %w", db.Name, domain.ErrQuery, err)
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create dump file: %w: %w", domain.ErrDumpWrite, err)
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(outputPath)
		}
	}()

	w := bufio.NewWriterSize(file, 64*1024)
	if _, err := fmt.Fprintf(w, "-- dumpgram SQL dump\n-- Database: %s\n-- Generated: %s\n",
		db.Name, m.now().Format("2006-01-02 15:04:05")); err != nil {
		return fmt.Errorf("write dump header: %w: %w", domain.ErrDumpWrite, err)
	}

	for _, table := range tables {
		if err := dumpTable(ctx, conn, w, table); err != nil {
			return fmt.Errorf("dump %s.%s: %w", db.Name, table, err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush dump file: %w: %w", domain.ErrDumpWrite, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close dump file: %w: %w", domain.ErrDumpWrite, err)
	}

	return nil
}

// listTables returns base tables in the order the server lists them.
func listTables(ctx context.Context, conn *sql.DB) ([]string, error) {
	rows, err := conn.QueryContext(ctx, listTablesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, err
		}
		if name != "" {
			tables = append(tables, name)
		}
	}

	return tables, rows.Err()
}

func dumpTable(ctx context.Context, conn *sql.DB, w *bufio.Writer, table string) error {
	ident := QuoteIdent(table)

	var name, createStmt string
	if err := conn.QueryRowContext(ctx, "SHOW CREATE TABLE "+ident).Scan(&name, &createStmt); err != nil {
		return fmt.Errorf("show create table: %w: %w", domain.ErrQuery, err)
	}

	if _, err := w.WriteString("\n\n" + createStmt + ";\n\n"); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDumpWrite, err)
	}

	rows, err := conn.QueryContext(ctx, "SELECT * FROM "+ident)
	if err != nil {
		return fmt.Errorf("select rows: %w: %w", domain.ErrQuery, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("read columns: %w: %w", domain.ErrQuery, err)
	}

	raw := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	values := make([]domain.Value, len(columns))

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan row: %w: %w", domain.ErrQuery, err)
		}
		for i, v := range raw {
			values[i] = ToValue(v)
		}
		if _, err := w.WriteString(InsertStatement(table, values)); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrDumpWrite, err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w: %w", domain.ErrQuery, err)
	}

	return nil
}

// InsertStatement renders one row as a single-line INSERT statement.
func InsertStatement(table string, values []domain.Value) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(QuoteIdent(table))
	sb.WriteString(" VALUES (")
	for i, v := range values {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(QuoteValue(v))
	}
	sb.WriteString(");\n")
	return sb.String()
}
