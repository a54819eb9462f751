package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tribes-lab/backend/internal/api"
	"github.com/tribes-lab/backend/pkg/xcontext"
	"github.com/urfave/cli/v2"
)

func (s *srv) load(cliCtx *cli.Context) error {
	s.loadConfig(cliCtx)
	s.loadLogger()

	if err := s.loadSnowFlake(); err != nil {
		return err
	}
	if err := s.loadDatabase(); err != nil {
		return err
	}
	if err := s.loadRedis(); err != nil {
		return err
	}
	if err := s.loadGateway(cliCtx); err != nil {
		return err
	}

	s.loadRepos()
	return s.loadDomains()
}

// startNode runs the full cache layer: task queue, background sync and the
// posts API.
func (s *srv) startNode(cliCtx *cli.Context) error {
	if err := s.load(cliCtx); err != nil {
		return err
	}
	defer s.gw.Close()

	s.queue.Start(s.ctx)
	defer s.queue.Stop()

	s.posts.StartSync(s.ctx)
	defer s.posts.StopSync()
	defer s.searcher.Stop()

	s.apiServer = api.NewServer(s.ctx, s.postRepo)
	errCh := make(chan error, 1)
	go func() { errCh <- s.apiServer.ListenAndServe() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	xcontext.Logger(s.ctx).Infof("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	return s.apiServer.Shutdown(shutdownCtx)
}

// startApi serves cached posts without background synchronization, for an
// instance used purely as a lookup tier by others.
func (s *srv) startApi(cliCtx *cli.Context) error {
	if err := s.load(cliCtx); err != nil {
		return err
	}
	defer s.gw.Close()

	s.apiServer = api.NewServer(s.ctx, s.postRepo)
	errCh := make(chan error, 1)
	go func() { errCh <- s.apiServer.ListenAndServe() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	shutdownCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	return s.apiServer.Shutdown(shutdownCtx)
}
