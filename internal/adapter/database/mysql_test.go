package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/dumpgram/internal/domain"
)

const (
	usersDDL = "CREATE TABLE `users` (\n  `id` int NOT NULL,\n  `name` varchar(64) DEFAULT NULL,\n  `bio` text,\n  PRIMARY KEY (`id`)\n) ENGINE=InnoDB"
	logsDDL  = "CREATE TABLE `logs` (\n  `id` int NOT NULL\n) ENGINE=InnoDB"
)

func newMock() (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true),
	)
	So(err, ShouldBeNil)
	return db, mock
}

func dumperFor(db *sql.DB) *MySQLDumper {
	dumper := NewMySQLWithConnector(func(domain.DatabaseDescriptor) (*sql.DB, error) {
		return db, nil
	})
	dumper.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return dumper
}

func expectTables(mock sqlmock.Sqlmock, tables ...string) {
	rows := sqlmock.NewRows([]string{"Tables_in_shop", "Table_type"})
	for _, t := range tables {
		rows.AddRow(t, "BASE TABLE")
	}
	mock.ExpectQuery(listTablesQuery).WillReturnRows(rows)
}

func expectCreate(mock sqlmock.Sqlmock, table, ddl string) {
	mock.ExpectQuery("SHOW CREATE TABLE `" + table + "`").
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Create Table"}).AddRow(table, ddl))
}

// parseInsert reads the VALUES list of a single dumped INSERT line back into values.
func parseInsert(line string) []domain.Value {
	marker := " VALUES ("
	start := strings.Index(line, marker) + len(marker)
	body := strings.TrimSuffix(line, ");")[start:]

	var out []domain.Value
	for i := 0; i < len(body); {
		switch {
		case strings.HasPrefix(body[i:], "NULL"):
			out = append(out, domain.NullValue())
			i += len("NULL")
		case body[i] == '\'':
			buf := []byte{}
			i++
			for body[i] != '\'' {
				if body[i] == '\\' {
					i++
					switch body[i] {
					case '0':
						buf = append(buf, 0)
					case 'n':
						buf = append(buf, '\n')
					case 'r':
						buf = append(buf, '\r')
					case 'Z':
						buf = append(buf, 0x1a)
					default:
						buf = append(buf, body[i])
					}
				} else {
					buf = append(buf, body[i])
				}
				i++
			}
			i++
			out = append(out, domain.TextValue(buf))
		}
		if i < len(body) && body[i] == ',' {
			i++
		}
	}
	return out
}

func insertLines(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "INSERT INTO ") {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestMySQLDumper(t *testing.T) {
	Convey("Given a MySQLDumper backed by a mock database", t, func() {
		tempDir, err := os.MkdirTemp("", "dumper_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		ctx := context.Background()
		desc := domain.DatabaseDescriptor{Name: "shop", Username: "root", Password: "secret"}
		outputPath := filepath.Join(tempDir, desc.DumpFileName())

		Convey("When the database has a populated table and an empty table", func() {
			db, mock := newMock()
			mock.ExpectPing()
			expectTables(mock, "users", "logs")
			expectCreate(mock, "users", usersDDL)
			mock.ExpectQuery("SELECT * FROM `users`").WillReturnRows(
				sqlmock.NewRows([]string{"id", "name", "bio"}).
					AddRow([]byte("1"), nil, []byte("O'Reilly says \"hi\"\nback\\slash")).
					AddRow([]byte("2"), []byte("Ana"), nil))
			expectCreate(mock, "logs", logsDDL)
			mock.ExpectQuery("SELECT * FROM `logs`").WillReturnRows(sqlmock.NewRows([]string{"id"}))
			mock.ExpectClose()

			err := dumperFor(db).Dump(ctx, desc, outputPath)

			So(err, ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)

			data, err := os.ReadFile(outputPath)
			So(err, ShouldBeNil)
			content := string(data)

			Convey("It should write a header naming the database", func() {
				So(content, ShouldStartWith, "-- dumpgram SQL dump\n-- Database: shop\n-- Generated: 2026-01-02 03:04:05\n")
			})

			Convey("It should emit CREATE TABLE statements in catalog order", func() {
				So(content, ShouldContainSubstring, usersDDL+";\n")
				So(content, ShouldContainSubstring, logsDDL+";\n")
				So(strings.Index(content, usersDDL), ShouldBeLessThan, strings.Index(content, logsDDL))
			})

			Convey("It should emit one INSERT per row and none for the empty table", func() {
				lines := insertLines(content)
				So(len(lines), ShouldEqual, 2)
				So(lines[1], ShouldEqual, "INSERT INTO `users` VALUES ('2','Ana',NULL);")
				So(content, ShouldNotContainSubstring, "INSERT INTO `logs`")
			})

			Convey("It should quote every non-NULL value and round-trip it", func() {
				lines := insertLines(content)
				So(lines[0], ShouldContainSubstring, "('1',NULL,")
				values := parseInsert(lines[0])
				So(len(values), ShouldEqual, 3)
				So(values[0].Null, ShouldBeFalse)
				So(string(values[0].Text), ShouldEqual, "1")
				So(values[1].Null, ShouldBeTrue)
				So(string(values[2].Text), ShouldEqual, "O'Reilly says \"hi\"\nback\\slash")
			})
		})

		Convey("When a dump file already exists", func() {
			So(os.WriteFile(outputPath, []byte("stale content that is longer than the new dump"), 0644), ShouldBeNil)

			db, mock := newMock()
			mock.ExpectPing()
			expectTables(mock)
			mock.ExpectClose()

			err := dumperFor(db).Dump(ctx, desc, outputPath)

			Convey("It should overwrite it", func() {
				So(err, ShouldBeNil)
				data, err := os.ReadFile(outputPath)
				So(err, ShouldBeNil)
				So(string(data), ShouldNotContainSubstring, "stale")
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When the credentials are rejected", func() {
			db, mock := newMock()
			mock.ExpectPing().WillReturnError(errors.New("Error 1045 (28000): Access denied for user 'root'"))
			mock.ExpectClose()

			err := dumperFor(db).Dump(ctx, desc, outputPath)

			Convey("It should fail with a connection error and write nothing", func() {
				So(errors.Is(err, domain.ErrConnection), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "Access denied")
				So(err.Error(), ShouldContainSubstring, "shop")
				_, statErr := os.Stat(outputPath)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When the connection cannot be opened", func() {
			dumper := NewMySQLWithConnector(func(domain.DatabaseDescriptor) (*sql.DB, error) {
				return nil, errors.New("bad dsn")
			})

			err := dumper.Dump(ctx, desc, outputPath)

			Convey("It should fail with a connection error", func() {
				So(errors.Is(err, domain.ErrConnection), ShouldBeTrue)
			})
		})

		Convey("When listing tables fails", func() {
			db, mock := newMock()
			mock.ExpectPing()
			mock.ExpectQuery(listTablesQuery).WillReturnError(errors.New("command denied"))
			mock.ExpectClose()

			err := dumperFor(db).Dump(ctx, desc, outputPath)

			Convey("It should fail with a query error", func() {
				So(errors.Is(err, domain.ErrQuery), ShouldBeTrue)
				_, statErr := os.Stat(outputPath)
				So(os.IsNotExist(statErr), ShouldBeTrue)
			})
		})

		Convey("When reading rows fails halfway through", func() {
			db, mock := newMock()
			mock.ExpectPing()
			expectTables(mock, "users")
			expectCreate(mock, "users", usersDDL)
			mock.ExpectQuery("SELECT * FROM `users`").WillReturnError(errors.New("lost connection"))
			mock.ExpectClose()

			err := dumperFor(db).Dump(ctx, desc, outputPath)

			Convey("It should remove the partial dump file", func() {
				So(errors.Is(err, domain.ErrQuery), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "shop.users")
				_, statErr := os.Stat(outputPath)
				So(os.IsNotExist(statErr), ShouldBeTrue)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When the dump file cannot be created", func() {
			db, mock := newMock()
			mock.ExpectPing()
			expectTables(mock, "users")
			mock.ExpectClose()

			err := dumperFor(db).Dump(ctx, desc, filepath.Join(tempDir, "missing", "shop.sql"))

			Convey("It should fail with a dump write error", func() {
				So(errors.Is(err, domain.ErrDumpWrite), ShouldBeTrue)
			})
		})
	})
}

func TestMySQLConnector(t *testing.T) {
	Convey("Given a descriptor", t, func() {
		connect := MySQLConnector(0)

		Convey("It should build a pool without dialing", func() {
			db, err := connect(domain.DatabaseDescriptor{Name: "shop", Username: "root", Password: "pw"})
			So(err, ShouldBeNil)
			So(db, ShouldNotBeNil)
			So(db.Close(), ShouldBeNil)
		})

		Convey("The dumper should report its type", func() {
			So(NewMySQL(time.Second).GetType(), ShouldEqual, "mysql")
		})
	})
}
