package httpapi

import (
	"testing"

	"github.com/valyala/fasthttp"
)

func TestRecovery_CatchesPanic(t *testing.T) {
	h := recovery(func(ctx *fasthttp.RequestCtx) {
		panic("boom")
	})

	ctx := &fasthttp.RequestCtx{}
	h(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Errorf("expected 500, got %d", ctx.Response.StatusCode())
	}
}

func TestRecovery_PassesThroughWithoutPanic(t *testing.T) {
	called := false
	h := recovery(func(ctx *fasthttp.RequestCtx) {
		called = true
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	ctx := &fasthttp.RequestCtx{}
	h(ctx)

	if !called {
		t.Error("expected inner handler to run")
	}
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("expected 200, got %d", ctx.Response.StatusCode())
	}
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	h := requestID(func(ctx *fasthttp.RequestCtx) {
		seen, _ = ctx.UserValue("request_id").(string)
	})

	ctx := &fasthttp.RequestCtx{}
	h(ctx)

	if seen == "" {
		t.Error("expected a generated request ID")
	}
	if string(ctx.Response.Header.Peek("X-Request-ID")) != seen {
		t.Error("expected X-Request-ID response header to match the generated ID")
	}
}

func TestRequestID_PreservesIncoming(t *testing.T) {
	var seen string
	h := requestID(func(ctx *fasthttp.RequestCtx) {
		seen, _ = ctx.UserValue("request_id").(string)
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Request-ID", "client-supplied-id")
	h(ctx)

	if seen != "client-supplied-id" {
		t.Errorf("expected client-supplied-id, got %q", seen)
	}
}

func TestTiming_SetsResponseTimeHeader(t *testing.T) {
	h := timing(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	h(ctx)

	if ctx.Response.Header.Peek("X-Response-Time") == nil {
		t.Error("expected X-Response-Time header to be set")
	}
}

func TestSecurityHeaders_SetOnResponse(t *testing.T) {
	h := securityHeaders(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	h(ctx)

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	}
	for k, v := range want {
		if got := string(ctx.Response.Header.Peek(k)); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
}

func TestCorsHandler_DefaultsToOpen(t *testing.T) {
	h := corsHandler(nil)(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	h(ctx)

	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}

func TestCorsHandler_RestrictsToConfiguredOrigins(t *testing.T) {
	h := corsHandler([]string{"https://example.com"})(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	h(ctx)

	if got := string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")); got != "https://example.com" {
		t.Errorf("expected https://example.com, got %q", got)
	}
}

func TestCorsHandler_OptionsShortCircuits(t *testing.T) {
	called := false
	h := corsHandler(nil)(func(ctx *fasthttp.RequestCtx) { called = true })

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodOptions)
	h(ctx)

	if called {
		t.Error("OPTIONS preflight should not reach the inner handler")
	}
	if ctx.Response.StatusCode() != fasthttp.StatusNoContent {
		t.Errorf("expected 204, got %d", ctx.Response.StatusCode())
	}
}

func TestApplyMiddleware_OrderingOuterToInner(t *testing.T) {
	var order []string
	mk := func(name string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return func(ctx *fasthttp.RequestCtx) {
				order = append(order, name+":before")
				next(ctx)
				order = append(order, name+":after")
			}
		}
	}

	h := applyMiddleware(func(ctx *fasthttp.RequestCtx) { order = append(order, "handler") }, mk("a"), mk("b"))
	h(&fasthttp.RequestCtx{})

	want := []string{"a:before", "b:before", "handler", "b:after", "a:after"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}
