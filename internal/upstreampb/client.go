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

package upstreampb

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec lets the hand-maintained message types in messages.go ride over
// grpc's stream transport without requiring a full protoreflect
// implementation; the content-subtype is negotiated explicitly by the client
// (see Subscribe below) so it never collides with a real protobuf-codec
// server.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

const serviceName = "chainconsumer.upstream.BlockchainUpdates"

var subscribeStreamDesc = grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
}

// BlockchainUpdatesClient is the generated-style client stub for the
// upstream node's update subscription service.
type BlockchainUpdatesClient interface {
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (BlockchainUpdates_SubscribeClient, error)
}

// BlockchainUpdates_SubscribeClient is the server-streaming response handle.
type BlockchainUpdates_SubscribeClient interface {
	Recv() (*SubscribeEvent, error)
	grpc.ClientStream
}

type blockchainUpdatesClient struct {
	cc grpc.ClientConnInterface
}

// NewBlockchainUpdatesClient builds a client bound to cc.
func NewBlockchainUpdatesClient(cc grpc.ClientConnInterface) BlockchainUpdatesClient {
	return &blockchainUpdatesClient{cc: cc}
}

func (c *blockchainUpdatesClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (BlockchainUpdates_SubscribeClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(jsonCodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &subscribeStreamDesc, "/"+serviceName+"/Subscribe", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &blockchainUpdatesSubscribeClient{stream}, nil
}

type blockchainUpdatesSubscribeClient struct {
	grpc.ClientStream
}

func (s *blockchainUpdatesSubscribeClient) Recv() (*SubscribeEvent, error) {
	event := new(SubscribeEvent)
	if err := s.RecvMsg(event); err != nil {
		return nil, err
	}
	return event, nil
}
