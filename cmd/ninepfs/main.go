// Command ninepfs is a Cobra CLI exposing the library's server and
// client halves: `serve` runs a session.Pool over TCP against a sysfs
// tree, `walk` is a thin client.Client wrapper for manual/interactive
// testing. Grounded on the corpus's Cobra+pflag CLI conventions
// (rclone, moby).
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go.minnow.dev/ninep/auth"
	"go.minnow.dev/ninep/client"
	"go.minnow.dev/ninep/config"
	"go.minnow.dev/ninep/log9p"
	"go.minnow.dev/ninep/metrics"
	"go.minnow.dev/ninep/server"
	"go.minnow.dev/ninep/session"
	"go.minnow.dev/ninep/sysfs"
	"go.minnow.dev/ninep/transport"
	"go.minnow.dev/ninep/wire"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ninepfs",
		Short: "Serve or walk a 9P2000 filesystem",
	}
	root.AddCommand(serveCmd(), walkCmd())
	return root
}

func serveCmd() *cobra.Command {
	var cfgPath string
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a synthetic filesystem over 9P2000",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" {
				// Remember the flags given on the command line and apply
				// them again over the file's values.
				set := map[string]string{}
				cmd.Flags().Visit(func(f *pflag.Flag) { set[f.Name] = f.Value.String() })
				loaded, err := config.Load(cfgPath, cfg)
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				cfg = loaded
				for name, v := range set {
					cmd.Flags().Set(name, v)
				}
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	config.BindFlags(cmd.Flags(), &cfg)
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a YAML config file")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := log9p.FromLogrus(logrus.StandardLogger())

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go http.ListenAndServe(cfg.MetricsAddr, mux)
	}

	backend := sysfs.New(defaultTree())

	scfg := server.Config{
		MaxFids:  cfg.MaxFids,
		MaxMsize: cfg.MaxMsize,
		Logger:   logger,
		Metrics:  m,
	}
	if cfg.RequireAuth {
		// Every attach must present a completed Tauth; this reference
		// server has no real key infrastructure, so it accepts any
		// uname once the challenge/response round trip completes.
		scfg.Verifier = auth.VerifierFunc(func(string, []byte, []byte, []byte) error { return nil })
	}
	pool := session.New(backend, scfg, cfg.MaxSessions)

	l, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}
	logger.Printf("ninepfs: serving %s", cfg.Listen)
	return pool.Serve(ctx, l)
}

// defaultTree builds the reference namespace: a root directory holding
// a read-only "version" ctl file and an empty "scratch" writable file.
func defaultTree() *sysfs.Node {
	root := sysfs.NewDir("/")
	root.AddChild(sysfs.NewCtl("version", 0444, func(offset int64, buf []byte) (int, error) {
		const v = "ninep 9P2000\n"
		if offset >= int64(len(v)) {
			return 0, nil
		}
		return copy(buf, v[offset:]), nil
	}, nil))
	root.AddChild(sysfs.NewFile("scratch", 0644, nil))
	return root
}

func walkCmd() *cobra.Command {
	var (
		addr  string
		uname string
		mode  string
	)
	cmd := &cobra.Command{
		Use:   "walk <path>",
		Short: "Attach, walk to path, and stat or cat it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWalk(cmd.Context(), addr, uname, args[0], mode)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5640", "server address")
	cmd.Flags().StringVar(&uname, "uname", "glenda", "user name presented at attach")
	cmd.Flags().StringVar(&mode, "mode", "stat", "stat or cat")
	return cmd
}

func runWalk(ctx context.Context, addr, uname, target, mode string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	tr := transport.NewNetTransport(conn, wire.DefaultMsize)

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := client.Dial(dialCtx, tr, client.Config{Timeout: 10 * time.Second})
	if err != nil {
		return fmt.Errorf("dialing session: %w", err)
	}
	defer c.Close()

	root, err := c.Attach(ctx, uname, "/")
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	defer root.Clunk(ctx)

	leaf, err := root.WalkPath(ctx, target)
	if err != nil {
		return fmt.Errorf("walk %s: %w", target, err)
	}
	defer leaf.Clunk(ctx)

	switch mode {
	case "stat":
		st, err := leaf.Stat(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", st)
	case "cat":
		if _, err := leaf.Open(ctx, 0); err != nil {
			return fmt.Errorf("open: %w", err)
		}
		buf := make([]byte, 4096)
		var offset uint64
		for {
			n, err := leaf.Read(ctx, offset, buf)
			if n > 0 {
				os.Stdout.Write(buf[:n])
				offset += uint64(n)
			}
			if n == 0 || err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	return nil
}
