package domain

import (
	"context"
	"net"
	"strconv"
)

// DatabaseDescriptor identifies one database to export and the credentials to reach it.
type DatabaseDescriptor struct {
	Name     string
	Username string
	Password string
	Host     string
	Port     int
}

// Addr returns host:port, defaulting to the local MySQL server.
func (d DatabaseDescriptor) Addr() string {
	host, port := d.Host, d.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = 3306
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// DumpFileName is the workspace file name a descriptor dumps into.
func (d DatabaseDescriptor) DumpFileName() string {
	return d.Name + ".sql"
}

// Dumper writes a schema-plus-data SQL script for one database to outputPath.
// A failed dump leaves nothing behind at outputPath.
type Dumper interface {
	Dump(ctx context.Context, db DatabaseDescriptor, outputPath string) error
	GetType() string
}

// Value is a column value at the row boundary: either SQL NULL or raw text.
type Value struct {
	Null bool
	Text []byte
}

func NullValue() Value { return Value{Null: true} }

func TextValue(b []byte) Value { return Value{Text: b} }
