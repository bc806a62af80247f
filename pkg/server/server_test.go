package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safety-app/pkg/logger"
)

func TestCleanup_RunsClosersOnce(t *testing.T) {
	var order []string
	res := &Resources{
		Log: logger.NewNop(),
		Closers: []Closer{
			{Name: "redis", Close: func(context.Context) error { order = append(order, "redis"); return nil }},
			{Name: "badger", Close: func(context.Context) error { order = append(order, "badger"); return nil }},
		},
	}

	require.NoError(t, res.Cleanup(context.Background()))
	require.NoError(t, res.Cleanup(context.Background()))

	assert.Equal(t, []string{"redis", "badger"}, order)
}

func TestCleanup_CollectsErrors(t *testing.T) {
	boom := errors.New("boom")
	called := false
	res := &Resources{
		Log: logger.NewNop(),
		Closers: []Closer{
			{Name: "postgres", Close: func(context.Context) error { return boom }},
			{Name: "badger", Close: func(context.Context) error { called = true; return nil }},
		},
	}

	err := res.Cleanup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, called, "later closers still run")
}

func TestServe_ShutsDownOnSignal(t *testing.T) {
	srv := New("0", http.NotFoundHandler())
	srv.Addr = "127.0.0.1:0"

	closed := make(chan struct{})
	res := &Resources{
		Server: srv,
		Log:    logger.NewNop(),
		Closers: []Closer{
			{Name: "store", Close: func(context.Context) error { close(closed); return nil }},
		},
	}

	quit := make(chan os.Signal, 1)
	quit <- syscall.SIGTERM

	require.NoError(t, res.serve(quit, time.Second))

	select {
	case <-closed:
	default:
		t.Fatal("closer was not called")
	}
}

func TestServe_ReturnsListenError(t *testing.T) {
	srv := New("0", http.NotFoundHandler())
	srv.Addr = "not-a-valid-address"

	res := &Resources{Server: srv, Log: logger.NewNop()}

	err := res.serve(make(chan os.Signal), time.Second)
	require.Error(t, err)
}
