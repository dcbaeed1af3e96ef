package commands

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/banshee-data/arrhythmix/internal/classifier"
	"github.com/banshee-data/arrhythmix/internal/inference"
	"github.com/banshee-data/arrhythmix/internal/monitoring"
	"github.com/banshee-data/arrhythmix/internal/source"
)

func newClassifierCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classifier",
		Short: "Classifier tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var (
		listen string
		rate   float64
	)
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rhythm classifier over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listen, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveClassifier(ctx, lis, classifier.NewRhythm(rate))
		},
	}
	serve.Flags().StringVar(&listen, "listen", ":50051", "gRPC listen address")
	serve.Flags().Float64Var(&rate, "rate", source.DefaultRateHz, "sample rate of submitted windows in Hz")
	cmd.AddCommand(serve)
	return cmd
}

// serveClassifier serves c on lis until ctx is cancelled.
func serveClassifier(ctx context.Context, lis net.Listener, c inference.Classifier) error {
	s := grpc.NewServer()
	classifier.RegisterServer(s, c)

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(lis) }()
	monitoring.Logf("classifier serving on %s", lis.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.GracefulStop()
		return nil
	}
}
