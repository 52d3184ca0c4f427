package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDrainer struct {
	stopped bool
	err     error
}

func (f *fakeDrainer) Stop(context.Context) error {
	f.stopped = true
	return f.err
}

func TestRunServer_ListenFailureIsReturned(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	srv := &http.Server{Addr: busy.Addr().String(), Handler: http.NotFoundHandler()}
	work := &fakeDrainer{}

	done := make(chan error, 1)
	go func() { done <- runServer(context.Background(), srv, work, time.Second, zerolog.Nop()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "http server")
	case <-time.After(5 * time.Second):
		t.Fatal("runServer did not return after listen failure")
	}
	assert.True(t, work.stopped)
}

func TestRunServer_CleanShutdown(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	work := &fakeDrainer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, runServer(ctx, srv, work, time.Second, zerolog.Nop()))
	assert.True(t, work.stopped)
}

func TestRunServer_DrainFailureIsReturned(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	work := &fakeDrainer{err: context.DeadlineExceeded}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runServer(ctx, srv, work, time.Second, zerolog.Nop())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
