package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Job is a one-shot binary run to completion, e.g. the campaign runner.
type Job interface {
	Init(ctx context.Context) error
	Run(ctx context.Context) error
	CleanUp(ctx context.Context) error
}

// Server is a long-running process stopped by SIGINT or SIGTERM.
type Server interface {
	Init() error
	Start() error
	Stop() error
}

func Run(s Server) error {
	if err := s.Init(); err != nil {
		return err
	}

	if err := s.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return s.Stop()
}
