package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"

	"lake-wap/internal/domain"
)

// Compile-time check.
var _ domain.CatalogGateway = (*Gateway)(nil)

// Gateway executes catalog statements on a pinned connection per call.
//
// Statements passed to one Execute call share a single physical connection, so
// session state such as USE REFERENCE carries over to the statements after it.
// No transaction is opened: every statement commits on its own. The connection
// is retired when the call returns, so session state never leaks into another
// call.
type Gateway struct {
	db      *sql.DB
	timeout time.Duration
	logger  *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithStatementTimeout bounds each Execute call. Zero means no timeout.
func WithStatementTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.timeout = d }
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a Gateway over a catalog connection pool.
func NewGateway(db *sql.DB, opts ...GatewayOption) *Gateway {
	g := &Gateway{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Session is a connection bound to one WithSession call.
type Session struct {
	conn   *sql.Conn
	next   int
	logger *slog.Logger
}

// Exec runs one statement on the bound connection.
func (s *Session) Exec(ctx context.Context, stmt string) error {
	idx := s.next
	s.next++

	start := time.Now()
	if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
		return &domain.StatementError{Index: idx, Statement: stmt, Err: err}
	}
	s.logger.Debug("catalog statement executed", "index", idx, "sql", stmt, "duration", time.Since(start))
	return nil
}

// WithSession acquires a dedicated connection, passes it to fn, and retires it
// on every exit path.
func (g *Gateway) WithSession(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	conn, err := g.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire catalog connection: %w", err)
	}
	defer retire(conn)

	return fn(ctx, &Session{conn: conn, logger: g.logger})
}

// Execute runs stmts in order on one connection, stopping at the first failure.
func (g *Gateway) Execute(ctx context.Context, stmts ...string) error {
	if len(stmts) == 0 {
		return domain.ErrValidation("no statements to execute")
	}
	return g.WithSession(ctx, func(ctx context.Context, s *Session) error {
		for _, stmt := range stmts {
			if err := s.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// retire closes the physical connection instead of returning it to the idle pool.
// database/sql discards a connection whose Raw callback reports driver.ErrBadConn.
func retire(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}
