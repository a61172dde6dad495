package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/figport/internal/artifact"
	"github.com/agentic-research/figport/internal/config"
	"github.com/agentic-research/figport/internal/export"
	"github.com/agentic-research/figport/internal/logging"
	"github.com/agentic-research/figport/internal/reorganize"
	"github.com/agentic-research/figport/internal/transport"
)

var (
	listenAddr   string
	channelName  string
	noReorganize bool
	serveOnce    bool
)

// errServeDone stops the errgroup after --once sessions finish.
var errServeDone = errors.New("serve: session complete")

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the plugin websocket and export every session that joins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("listen") {
			cfg.ListenAddr = listenAddr
		}
		if flags.Changed("channel") {
			cfg.Channel = channelName
		}
		if noReorganize {
			cfg.Reorganize = false
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, serveOnce, cmd.OutOrStdout())
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Websocket listen address (default from config)")
	serveCmd.Flags().StringVar(&channelName, "channel", "", "Only accept joins for this channel")
	serveCmd.Flags().BoolVar(&noReorganize, "no-reorganize", false, "Skip reconciliation and reorganization after export")
	serveCmd.Flags().BoolVar(&serveOnce, "once", false, "Exit after the first session ends")
	rootCmd.AddCommand(serveCmd)
}

// runServe blocks until ctx is cancelled or, with once, the first session
// ends. A failed session only fails the command in once mode.
func runServe(ctx context.Context, cfg config.Config, once bool, out io.Writer) error {
	log := logging.New("serve")
	store, err := artifact.Open(cfg.OutputDir)
	if err != nil {
		return err
	}

	sessions := make(chan *export.Session, 4)
	opts := []export.Option{
		export.WithSessionHook(func(s *export.Session) {
			select {
			case sessions <- s:
			default:
				log.Warn("session report queue full", "session", s.ID)
			}
		}),
	}
	if cfg.Reorganize {
		opts = append(opts, export.WithPostProcess(reorganize.PostProcess))
	}
	ctrl := export.NewController(store, export.OptionsFromConfig(cfg), opts...)
	srv := transport.NewServer(cfg.ListenAddr, ctrl, transport.WithChannel(cfg.Channel))

	g, gctx := errgroup.WithContext(ctx)
	if err := srv.Start(gctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Listening on ws://%s, writing artifacts to %s\n", srv.Addr(), cfg.OutputDir)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-sessions:
				res, err := s.Wait(gctx)
				if err != nil {
					return nil
				}
				report(out, store, res)
				if once {
					if res.Err != nil {
						return res.Err
					}
					return errServeDone
				}
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, errServeDone) {
		return nil
	}
	return err
}

func report(out io.Writer, store *artifact.Store, res export.Result) {
	st := res.Stats
	if res.Err != nil {
		fmt.Fprintf(out, "Export %s failed: %v\n", st.SessionID, res.Err)
		return
	}
	fmt.Fprintf(out, "Export %s finished in %s: %s nodes in %d batches, %d rescan rounds\n",
		st.SessionID, st.Duration, humanize.Comma(int64(st.ProcessedNodes)), st.Batches, st.RescanRounds)
	if res.PostProcessErr != nil {
		fmt.Fprintf(out, "Reorganization failed: %v\n", res.PostProcessErr)
		return
	}
	if stats, err := reorganize.LoadStats(store); err == nil {
		fmt.Fprintf(out, "Reorganized: %s\n", stats.SizeComparison.Summary)
	}
}
