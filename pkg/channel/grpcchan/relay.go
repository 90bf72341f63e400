// Package grpcchan binds transports to a bidirectional gRPC stream. Both
// ends exchange google.protobuf.Struct frames shaped {"type","payload"}, so
// no generated code is required.
package grpcchan

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Goden-Gun/transport-core/pkg/channel"
	"github.com/Goden-Gun/transport-core/pkg/message"
)

const (
	// ServiceName is the fully qualified relay service.
	ServiceName = "transport.v1.Relay"
	// StreamMethod is the bidirectional stream carrying message frames.
	StreamMethod = "/" + ServiceName + "/Stream"
)

var streamDesc = grpc.StreamDesc{
	StreamName:    "Stream",
	ServerStreams: true,
	ClientStreams: true,
}

// relayServer is implemented by *Server.
type relayServer interface {
	serveStream(stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*relayServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    streamDesc.StreamName,
		ServerStreams: true,
		ClientStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			return srv.(relayServer).serveStream(stream)
		},
	}},
	Metadata: "transport/v1/relay.proto",
}

// toFrame converts msg to its wire struct through the JSON frame encoding,
// so any JSON-encodable payload is accepted.
func toFrame(msg message.Message) (*structpb.Struct, error) {
	data, err := channel.Encode(msg)
	if err != nil {
		return nil, err
	}
	frame := &structpb.Struct{}
	if err := protojson.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("encode %q frame: %w", msg.Type, err)
	}
	return frame, nil
}

// frameBytes renders a received frame as JSON for channel.Deliver.
func frameBytes(frame *structpb.Struct) []byte {
	data, err := protojson.Marshal(frame)
	if err != nil {
		return nil
	}
	return data
}

// bearerToken reads "authorization: Bearer <token>" from md.
func bearerToken(md metadata.MD) string {
	for _, v := range md.Get("authorization") {
		if after, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	return ""
}

// TLSConfig loads an optional key pair into a TLS 1.2+ config.
func TLSConfig(certFile, keyFile string) (*tls.Config, error) {
	conf := &tls.Config{MinVersion: tls.VersionTLS12}
	if certFile == "" && keyFile == "" {
		return conf, nil
	}
	if certFile == "" || keyFile == "" {
		return nil, errors.New("tls cert and key must be set together")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls cert: %w", err)
	}
	conf.Certificates = []tls.Certificate{cert}
	return conf, nil
}

// ServerCredentials returns the TLS server option for a key pair.
func ServerCredentials(certFile, keyFile string) (grpc.ServerOption, error) {
	conf, err := TLSConfig(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	if len(conf.Certificates) == 0 {
		return nil, errors.New("server tls requires a certificate")
	}
	return grpc.Creds(credentials.NewTLS(conf)), nil
}
