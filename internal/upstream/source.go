// Copyright 2026 The chainconsumer Authors
// This file is part of chainconsumer.
//
// chainconsumer is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// chainconsumer is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with chainconsumer. If not, see <http://www.gnu.org/licenses/>.

// Package upstream subscribes to the node's streaming update feed and
// batches events for the ingestion daemon.
package upstream

import (
	"context"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/erigontech/chainconsumer/internal/apperror"
	"github.com/erigontech/chainconsumer/internal/upstreampb"
)

// Batch is a maximal run of events the daemon processes inside one database
// transaction.
type Batch struct {
	LastHeight int32
	Updates    []Event
}

// Source batches the upstream subscription according to the policy in
// spec §4.1: blocks accumulate up to batchMaxSize/batchMaxWait; microblocks
// and rollbacks flush immediately.
type Source struct {
	client upstreampb.BlockchainUpdatesClient
	log    *zap.SugaredLogger
}

// Dial connects to the upstream node at target.
func Dial(target string, log *zap.SugaredLogger) (*Source, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(grpc_middleware.ChainUnaryClient()),
		grpc.WithChainStreamInterceptor(grpc_middleware.ChainStreamClient()),
	)
	if err != nil {
		return nil, apperror.Wrap(apperror.UpstreamTransport, err)
	}
	return &Source{client: upstreampb.NewBlockchainUpdatesClient(conn), log: log}, nil
}

// NewWithClient builds a Source around an already-constructed client,
// primarily for tests.
func NewWithClient(client upstreampb.BlockchainUpdatesClient, log *zap.SugaredLogger) *Source {
	return &Source{client: client, log: log}
}

// Stream starts the subscription at fromHeight and returns a channel of
// batches plus a channel that receives at most one fatal error before
// closing. Both channels close when ctx is cancelled.
func (s *Source) Stream(ctx context.Context, fromHeight int32, batchMaxSize int, batchMaxWait time.Duration) (<-chan Batch, <-chan error) {
	batches := make(chan Batch)
	errs := make(chan error, 1)

	stream, err := s.client.Subscribe(ctx, &upstreampb.SubscribeRequest{FromHeight: fromHeight, ToHeight: 0})
	if err != nil {
		errs <- apperror.Wrap(apperror.UpstreamStatus, err)
		close(errs)
		close(batches)
		return batches, errs
	}

	go s.run(ctx, stream, batches, errs, batchMaxSize, batchMaxWait)

	return batches, errs
}

func (s *Source) run(ctx context.Context, stream upstreampb.BlockchainUpdates_SubscribeClient, batches chan<- Batch, errs chan<- error, batchMaxSize int, batchMaxWait time.Duration) {
	defer close(batches)
	defer close(errs)

	var pending []Event
	var lastHeight int32
	start := time.Now()

	flush := func() bool {
		if len(pending) == 0 {
			return true
		}
		select {
		case batches <- Batch{LastHeight: lastHeight, Updates: pending}:
			pending = nil
			start = time.Now()
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		event, err := stream.Recv()
		if err != nil {
			errs <- apperror.Wrap(apperror.StreamClosed, err)
			return
		}
		if event.Update == nil {
			errs <- apperror.Wrapf(apperror.StreamClosed, "empty message received from upstream node")
			return
		}

		decoded, err := Decode(event.Update)
		if err != nil {
			errs <- err
			return
		}

		lastHeight = decoded.eventHeight()
		pending = append(pending, decoded)

		shouldFlush := false
		switch decoded.(type) {
		case BlockEvent:
			shouldFlush = len(pending) >= batchMaxSize || time.Since(start) >= batchMaxWait
		case MicroblockEvent, RollbackEvent:
			shouldFlush = true
		}

		if shouldFlush {
			if !flush() {
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
	}
}
