package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List gRPC services exposed through reflection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withConn(cmd.Context(), func(ctx context.Context, conn *grpc.ClientConn) error {
			services, err := grpcurl.ListServices(reflectionSource(ctx, conn))
			if err != nil {
				return fmt.Errorf("list services: %w", err)
			}
			for _, service := range services {
				fmt.Println(service)
			}
			return nil
		})
	},
}

var methodsCmd = &cobra.Command{
	Use:   "methods <service>",
	Short: "List methods of a gRPC service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd.Context(), func(ctx context.Context, conn *grpc.ClientConn) error {
			methods, err := grpcurl.ListMethods(reflectionSource(ctx, conn), args[0])
			if err != nil {
				return fmt.Errorf("list methods: %w", err)
			}
			for _, method := range methods {
				fmt.Println(method)
			}
			return nil
		})
	},
}

var callData string

var callCmd = &cobra.Command{
	Use:   "call <service/method>",
	Short: "Invoke a gRPC method with a JSON body (--data or stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConn(cmd.Context(), func(ctx context.Context, conn *grpc.ClientConn) error {
			descSource := reflectionSource(ctx, conn)

			var reader io.Reader
			if callData != "" {
				reader = strings.NewReader(callData)
			} else if isStdinTerminal() {
				reader = strings.NewReader("{}")
			} else {
				reader = os.Stdin
			}

			parser, formatter, err := grpcurl.RequestParserAndFormatter(grpcurl.FormatJSON, descSource, reader, grpcurl.FormatOptions{})
			if err != nil {
				return fmt.Errorf("parse request: %w", err)
			}
			handler := grpcurl.NewDefaultEventHandler(os.Stdout, descSource, formatter, false)
			if err := grpcurl.InvokeRPC(ctx, descSource, conn, args[0], nil, handler, parser.Next); err != nil {
				return fmt.Errorf("invoke: %w", err)
			}
			return nil
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health [service]",
	Short: "Check gRPC health of the bridge, an integration, or a config entry (domain/entry_id)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		service := ""
		if len(args) == 1 {
			service = args[0]
		}
		return withConn(cmd.Context(), func(ctx context.Context, conn *grpc.ClientConn) error {
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}
			if output().json {
				data, err := protojson.Marshal(resp)
				if err != nil {
					return fmt.Errorf("format json: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}
			name := service
			if name == "" {
				name = "unisenza-bridge"
			}
			fmt.Printf("%s: %s\n", name, resp.GetStatus())
			return nil
		})
	},
}

func init() {
	callCmd.Flags().StringVar(&callData, "data", "", "JSON request body")
}

func withConn(parent context.Context, fn func(context.Context, *grpc.ClientConn) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := grpcurl.BlockingDial(ctx, "tcp", resolveGRPCAddr(), insecure.NewCredentials())
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	return fn(ctx, conn)
}

func reflectionSource(ctx context.Context, conn *grpc.ClientConn) grpcurl.DescriptorSource {
	client := grpcreflect.NewClientAuto(ctx, conn)
	return grpcurl.DescriptorSourceFromServer(ctx, client)
}

func isStdinTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
