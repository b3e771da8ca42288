package pool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PostgresConfig names the db_* config keys SPEC_FULL.md's config
// loader populates from tiny.conf (db_host, db_port, db_name, db_user,
// db_pwd, sslmode).
type PostgresConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

func (c PostgresConfig) connString() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, sslmode)
}

// postgresConn adapts *pgx.Conn to the pool.Conn interface.
type postgresConn struct {
	conn *pgx.Conn
}

// PostgresDialer returns a Dialer that opens one *pgx.Conn per pool
// slot against cfg, the Postgres backing implementation named in
// SPEC_FULL.md's domain stack (§4.E).
func PostgresDialer(cfg PostgresConfig) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, cfg.connString())
		if err != nil {
			return nil, err
		}
		return &postgresConn{conn: conn}, nil
	}
}

func (p *postgresConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := p.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			if i < len(values) {
				row[string(f.Name)] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (p *postgresConn) Close(ctx context.Context) error {
	return p.conn.Close(ctx)
}
