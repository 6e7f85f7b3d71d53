package main

import (
	"context"
	"fmt"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/oyoms/go-officeclient/auth"
	"github.com/oyoms/go-officeclient/drive"
	"github.com/oyoms/go-officeclient/graph"
	"github.com/oyoms/go-officeclient/internal/config"
	"github.com/oyoms/go-officeclient/internal/progress"
	"github.com/oyoms/go-officeclient/outlook"
	"github.com/oyoms/go-officeclient/teams"
)

// app holds what every subcommand shares.
type app struct {
	logger     log.Logger
	envRepo    env.Repository
	configPath string
	verbose    bool
	config     config.Config
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configPath, a.envRepo)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.config = cfg
	return nil
}

// connect signs in with the given scopes and returns an authenticated Graph client.
func (a *app) connect(ctx context.Context, scopes ...[]string) (graph.Doer, error) {
	store, err := auth.NewCacheStore(ctx, a.config.Auth, a.logger)
	if err != nil {
		return nil, err
	}
	credential, err := auth.NewCredential(a.config.Auth, store, a.logger)
	if err != nil {
		return nil, err
	}
	for _, s := range scopes {
		credential.Require(s...)
	}
	a.logger.Debugf("Requesting scopes: %v", credential.Scopes())

	return graph.NewClient(retryhttp.NewClient(a.logger), a.config.BaseURL, credential, a.logger), nil
}

func (a *app) driveClient(doer graph.Doer, label string) (*drive.Client, error) {
	client := drive.NewClient(doer, a.logger)
	if a.config.DriveRoot != "" {
		client = client.WithRoot(a.config.DriveRoot)
	}
	if err := client.SetChunkSize(a.config.ChunkSize); err != nil {
		return nil, err
	}
	client.OnProgress(progress.NewReporter(a.logger, label).Func())
	return client, nil
}

func (a *app) mailClient(doer graph.Doer) *outlook.Client {
	client := outlook.NewClient(doer, a.logger)
	client.OnProgress(progress.NewReporter(a.logger, "attachment").Func())
	return client
}

func (a *app) teamsClient(doer graph.Doer) *teams.Client {
	return teams.NewClient(doer, a.logger).WithUploadFolder(a.config.UploadFolder)
}
