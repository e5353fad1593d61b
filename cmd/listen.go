package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/smazurov/framelink/internal/events"
	"github.com/smazurov/framelink/internal/listener"
	"github.com/smazurov/framelink/internal/logging"
	"github.com/smazurov/framelink/internal/metrics/exporters"
	"github.com/smazurov/framelink/pkg/wire"
)

// CreateListenCmd creates the listen command.
func CreateListenCmd() *cobra.Command {
	var (
		host     string
		port     int
		httpAddr string
		snapshot string
		logJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Receive a producer stream",
		Long: `Accepts one producer at a time and keeps its newest frame. Lines typed on stdin are sent ` +
			`to the producer as control commands ("ZOOM:2.5" or "zoom 2.5", "flash on", "reset"). ` +
			`With --http, received frames are relayed to WebSocket viewers on /ws/preview and ` +
			`metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			initLogging("", logJSON)
			logger := logging.GetLogger("main")

			l := listener.New(listener.Config{Host: host, Port: port}, events.New())
			if err := l.Listen(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error { return l.Serve(ctx) })
			g.Go(func() error { return consumeFrames(ctx, l, snapshot) })

			if httpAddr != "" {
				srv := &http.Server{Addr: httpAddr, Handler: listenMux(l), ReadHeaderTimeout: 5 * time.Second}
				g.Go(func() error {
					logger.Info("Serving preview", "addr", httpAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
			}

			// stdin is never closed by Close, so this goroutine is not joined.
			go readCommands(os.Stdin, l)

			err := g.Wait()
			l.Close()
			return err
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Address to accept producers on")
	cmd.Flags().IntVarP(&port, "port", "p", wire.DefaultPort, "Port to accept producers on")
	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve the preview relay and metrics on this address, e.g. :8091")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "Keep the newest frame in this JPEG file")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")

	return cmd
}

func listenMux(l *listener.Listener) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws/preview", l.Preview())
	mux.Handle("/metrics", exporters.HTTPHandler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(l.Stats())
	})
	return mux
}

// consumeFrames takes frames as they arrive, optionally writing each to
// path. Taking frames is what the listener measures latency against.
func consumeFrames(ctx context.Context, l *listener.Listener, path string) error {
	logger := logging.GetLogger("listener")
	for {
		f, err := l.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, listener.ErrClosed) {
				return nil
			}
			return err
		}
		if path == "" {
			continue
		}
		if err := writeSnapshot(path, f.Data); err != nil {
			logger.Warn("Failed to write snapshot", "path", path, "error", err)
		}
	}
}

// writeSnapshot replaces path atomically so readers never see a partial JPEG.
func writeSnapshot(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readCommands(r io.Reader, l *listener.Listener) {
	logger := logging.GetLogger("control")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sendInput(l, line); err != nil {
			logger.Warn("Command not sent", "input", line, "error", err)
		}
	}
}

func sendInput(l *listener.Listener, line string) error {
	if strings.EqualFold(line, "reset") {
		return l.Reset()
	}
	cmd, ok := parseInput(line)
	if !ok {
		return fmt.Errorf("unrecognised command %q", line)
	}
	return l.SendControl(cmd)
}
