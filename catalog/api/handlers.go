// Package api implements the catalog's HTTP query surface with echo,
// driving deltadb queries against the live table or a historical
// snapshot. HTML chrome (the "/" and "/detail/<key>" presentation
// views) is out of scope per spec.md §1.
package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catalogd.dev/catalog"
	"catalogd.dev/deltadb"
	"catalogd.dev/jx"
	"catalogd.dev/version"
)

// Handlers holds the catalog server dependency every route reads
// through.
type Handlers struct {
	srv *catalog.Server
}

// RegisterRoutes mounts the catalog's HTTP query surface on e.
func RegisterRoutes(e *echo.Echo, srv *catalog.Server) {
	h := &Handlers{srv: srv}
	e.GET("/query.text", h.queryText)
	e.GET("/query.json", h.queryJSON)
	e.GET("/query/:expr", h.queryExpr)
	e.GET("/updates/:t0/:t1/:expr", h.updates)
	e.GET("/history/:timestamp", h.history)
	e.GET("/history/:timestamp/*", h.history)
	e.GET("/version", h.version)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/operations", h.listOperations)
	e.GET("/operations/:id", h.getOperation)
}

func corsPlain(c echo.Context) {
	c.Response().Header().Set("Access-Control-Allow-Origin", "*")
	c.Response().Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	c.Response().Header().Set("Connection", "close")
}

// queryText dumps the live table as "<key>\t<record>\n" lines.
func (h *Handlers) queryText(c echo.Context) error {
	return h.submit(c, "query.text", func(ctx context.Context) error {
		corsPlain(c)
		dumpText(c.Response(), h.srv.Table())
		return nil
	})
}

// queryJSON dumps the live table as a JSON array of records.
func (h *Handlers) queryJSON(c echo.Context) error {
	return h.submit(c, "query.json", func(ctx context.Context) error {
		corsPlain(c)
		return writeArray(c.Response(), dumpRecords(h.srv.Table()))
	})
}

// queryExpr evaluates a base64-encoded JX predicate against every live
// record and returns the matches as a JSON array.
func (h *Handlers) queryExpr(c echo.Context) error {
	expr, err := decodeExpr(c.Param("expr"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.submit(c, "query.expr", func(ctx context.Context) error {
		corsPlain(c)
		matches, evalErr := filterMatches(h.srv.Table(), expr)
		if evalErr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, evalErr.Error())
		}
		return writeArray(c.Response(), matches)
	})
}

// updates streams the filtered event log between t0 and t1 in stream
// display mode, using the longer streaming timeout budget.
func (h *Handlers) updates(c echo.Context) error {
	t0, err := strconv.ParseInt(c.Param("t0"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad t0")
	}
	t1, err := strconv.ParseInt(c.Param("t1"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad t1")
	}
	expr, err := decodeExpr(c.Param("expr"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	corsPlain(c)
	c.Response().WriteHeader(http.StatusOK)

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.srv.StreamingTimeout())
	defer cancel()

	return h.srv.Pool().Submit(ctx, "updates.stream", func(ctx context.Context) error {
		q := deltadb.NewQuery(c.Response())
		q.Filter = expr
		q.Display = deltadb.DisplayStream
		err := q.RunReplay(h.srv.HistoryDir(), time.Unix(t0, 0).UTC(), time.Unix(t1, 0).UTC())
		c.Response().Flush()
		return err
	})
}

// history constructs a snapshot deltadb at timestamp and serves the
// prefix-stripped remainder of the request against it.
func (h *Handlers) history(c echo.Context) error {
	ts, err := strconv.ParseInt(c.Param("timestamp"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad timestamp")
	}
	rest := strings.TrimPrefix(c.Param("*"), "/")

	return h.submit(c, "history", func(ctx context.Context) error {
		tb, err := deltadb.OpenSnapshot(h.srv.HistoryDir(), nil, time.Unix(ts, 0).UTC())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		defer tb.Close()

		corsPlain(c)
		switch {
		case rest == "" || rest == "query.text":
			dumpText(c.Response(), tb)
			return nil
		case rest == "query.json":
			return writeArray(c.Response(), dumpRecords(tb))
		case strings.HasPrefix(rest, "query/"):
			expr, err := decodeExpr(strings.TrimPrefix(rest, "query/"))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			matches, evalErr := filterMatches(tb, expr)
			if evalErr != nil {
				return echo.NewHTTPError(http.StatusBadRequest, evalErr.Error())
			}
			return writeArray(c.Response(), matches)
		default:
			return echo.NewHTTPError(http.StatusNotFound, "unknown history resource")
		}
	})
}

func (h *Handlers) version(c echo.Context) error {
	return c.String(http.StatusOK, version.String())
}

// listOperations returns every query tracked by the worker pool,
// running or finished, for operator visibility into what the server
// is (or was) doing.
func (h *Handlers) listOperations(c echo.Context) error {
	return c.JSON(http.StatusOK, h.srv.Pool().Operations())
}

// getOperation returns a single tracked operation by ID.
func (h *Handlers) getOperation(c echo.Context) error {
	op, ok := h.srv.Pool().Operation(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "operation not found")
	}
	return c.JSON(http.StatusOK, op)
}

// submit runs fn through the query worker pool, bounding its
// concurrency and runtime per spec.md §4.8/§5's fork-per-query
// replacement (catalog/workerpool).
func (h *Handlers) submit(c echo.Context, label string, fn func(ctx context.Context) error) error {
	return h.srv.Pool().Submit(c.Request().Context(), label, fn)
}

func decodeExpr(encoded string) (*jx.Value, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("bad base64 expression: %w", err)
	}
	expr, errs := jx.Parse(raw, jx.ModePermissive)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%s", errs[0].Message)
	}
	return expr, nil
}

func dumpText(w io.Writer, tb *deltadb.Table) {
	tb.Range(func(key string, rec *jx.Value) {
		fmt.Fprintf(w, "%s\t%s\n", key, jx.Print(rec))
	})
}

func dumpRecords(tb *deltadb.Table) []*jx.Value {
	var out []*jx.Value
	tb.Range(func(key string, rec *jx.Value) {
		out = append(out, rec)
	})
	return out
}

func filterMatches(tb *deltadb.Table, expr *jx.Value) ([]*jx.Value, error) {
	var out []*jx.Value
	opts := jx.DefaultEvalOptions()
	tb.Range(func(key string, rec *jx.Value) {
		v := jx.Eval(expr, rec, opts)
		if v.IsError() || !v.Truthy() {
			return
		}
		out = append(out, rec)
	})
	return out, nil
}

func writeArray(w io.Writer, records []*jx.Value) error {
	arr := jx.Array(records...)
	_, err := fmt.Fprint(w, jx.Print(arr))
	return err
}
