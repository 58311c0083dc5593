// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main starts the CoAP-over-TCP blockwise/BERT transfer adapter.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/absmach/coap-blockwise/blockwise"
	"github.com/absmach/coap-blockwise/blockwise/api"
	"github.com/absmach/coap-blockwise/blockwise/tracing"
	"github.com/absmach/coap-blockwise/internal"
	"github.com/absmach/coap-blockwise/internal/server"
	coapserver "github.com/absmach/coap-blockwise/internal/server/coap"
	"github.com/absmach/coap-blockwise/transport"
	"github.com/caarlos0/env/v7"
	"github.com/gofrs/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const (
	svcName       = "coap-blockwise"
	envPrefixCOAP = "COAP_BLOCKWISE_"
	defCOAPPort   = "5683"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := blockwise.Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load %s blockwise configuration : %s", svcName, err)
	}

	coapServerConfig := server.Config{Port: defCOAPPort}
	if err := env.ParseWithOptions(&coapServerConfig, env.Options{Prefix: envPrefixCOAP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s CoAP server configuration : %s", svcName, err))
		os.Exit(1)
	}

	instanceID, err := uuid.NewV4()
	if err != nil {
		logger.Error(fmt.Sprintf("failed to generate instanceID: %s", err))
		os.Exit(1)
	}

	tracer := otel.Tracer(svcName)

	store := api.NewResourceStore(logger)
	lower := transport.NewLower()
	layer := blockwise.New(cfg, store, lower, logger)

	var svc blockwise.Service = layer
	svc = api.LoggingMiddleware(svc, logger)
	counter, latency := internal.MakeMetrics("coap_blockwise", "api")
	svc = api.MetricsMiddleware(svc, counter, latency)
	svc = tracing.New(tracer, svc)

	handler := transport.NewMuxHandler(svc, logger)

	hs := coapserver.New(ctx, cancel, svcName, coapServerConfig, handler, logger)

	g.Go(func() error {
		return hs.Start()
	})
	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	logger.Info(fmt.Sprintf("%s service instance %s starting", svcName, instanceID.String()))

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service terminated: %s", svcName, err))
	}
}
