// Package backend provides the fetch capability consumed by the query
// executor, with Pinot, Trino, and database/sql implementations selected by
// configuration. All adapters satisfy the same contract: the executor's
// join and aggregation semantics never depend on which engine answered.
package backend

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	"github.com/weftdb/weft/internal/config"
	werrors "github.com/weftdb/weft/internal/errors"
	"github.com/weftdb/weft/pkg/types"
)

// Filter is one key filter pushed down to the backend.
type Filter struct {
	// Field is the physical column name.
	Field string

	// Operator is EQUAL, IN, or BETWEEN. INLIST is accepted as an alias
	// of IN.
	Operator string

	// Values holds one value for EQUAL, two for BETWEEN, one or more for IN.
	Values []interface{}
}

// FetchRequest describes one entity fetch.
type FetchRequest struct {
	// Entity is the canonical entity name, used in logs and errors.
	Entity string

	// Table is the physical table name at the backend.
	Table string

	// Fields are the physical columns to project, in order.
	Fields []string

	// Filters are the pushed-down key filters, ANDed together.
	Filters []Filter
}

// Adapter is the backend fetch capability. Implementations must classify
// faults: transient errors (timeout, connection reset, overload) are
// retried by the executor, fatal errors (malformed response, auth failure)
// abort the step.
type Adapter interface {
	// Fetch runs the request and returns the matching records keyed by
	// the projected field names.
	Fetch(ctx context.Context, req FetchRequest) ([]types.Record, error)

	// Name identifies the adapter in logs and stats.
	Name() string
}

// New creates the adapter for a configured datasource.
func New(name string, cfg config.DatasourceConfig) (Adapter, error) {
	switch cfg.Type {
	case "pinot":
		return NewPinotAdapter(name, cfg), nil
	case "trino":
		return NewTrinoAdapter(name, cfg), nil
	case "sql":
		return NewSQLAdapter(name, cfg)
	default:
		return nil, fmt.Errorf("backend: unknown datasource type %q for %q", cfg.Type, name)
	}
}

// classifyHTTPStatus maps an HTTP status to a transient or fatal backend
// error. 5xx and 429 are worth retrying; everything else is not.
func classifyHTTPStatus(adapter string, status int) error {
	msg := fmt.Sprintf("%s: backend returned HTTP %d", adapter, status)
	if status >= 500 || status == http.StatusTooManyRequests {
		return werrors.NewTransientBackendError(msg, nil)
	}
	return werrors.NewFatalBackendError(msg, nil)
}

// classifyTransportError maps a transport-level failure. Context
// cancellation passes through untouched so deadline handling stays with
// the executor.
func classifyTransportError(adapter string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return werrors.NewTransientBackendError(fmt.Sprintf("%s: request timed out", adapter), err)
	}
	// Connection resets, refused connections, and DNS faults all come
	// back as transport errors worth one more try.
	return werrors.NewTransientBackendError(fmt.Sprintf("%s: request failed", adapter), err)
}
