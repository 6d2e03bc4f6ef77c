// Command aioserver wires config, httpserver and housekeep together into a
// runnable binary (SPEC_FULL.md's layer-mapping table, "cmd/aioserver").
package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/badu/aio/config"
	"github.com/badu/aio/housekeep"
	"github.com/badu/aio/httpserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var addrFlag string
	var maxConnFlag int
	var maxBodySize byteSizeValue = 1 << 30

	cmd := &cobra.Command{
		Use:   "aioserver",
		Short: "Run the aio HTTP/1.1 server",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := config.Defaults()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				opts = loaded
			}
			if cmd.Flags().Changed("addr") {
				opts.Addr = addrFlag
			}
			if cmd.Flags().Changed("max-connections") {
				opts.MaxConnections = maxConnFlag
			}
			if cmd.Flags().Changed("max-request-body-size") {
				opts.MaxRequestBodySize = int64(maxBodySize)
			}
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a YAML server config file")
	flags.StringVarP(&addrFlag, "addr", "a", ":8080", "listen address")
	flags.IntVar(&maxConnFlag, "max-connections", -1, "maximum concurrent connections, -1 for unlimited")
	flags.Var(&maxBodySize, "max-request-body-size", "maximum request body size in bytes")
	cmd.SilenceUsage = true
	return cmd
}

// byteSizeValue implements pflag.Value so --max-request-body-size accepts a
// plain byte count (pflag has no built-in human-size type).
type byteSizeValue int64

func (b *byteSizeValue) String() string { return fmt.Sprintf("%d", int64(*b)) }

func (b *byteSizeValue) Set(s string) error {
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return err
	}
	*b = byteSizeValue(n)
	return nil
}

func (b *byteSizeValue) Type() string { return "byteSize" }

var _ pflag.Value = (*byteSizeValue)(nil)

func run(opts config.ServerOptions) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	srv := httpserver.NewServer(echoHandler, log)
	srv.MaxConnections = opts.MaxConnections
	srv.NoExpectHandler = opts.NoExpectHandler
	srv.HeadersTimeout = opts.HeadersTimeout
	srv.MaxRequestBodySize = opts.MaxRequestBodySize
	srv.ServerURI = opts.ServerURI
	if opts.MaxHeadersSize > 0 {
		srv.MaxHeadersSize = opts.MaxHeadersSize
	}
	if opts.BacklogSize > 0 {
		srv.BacklogSize = opts.BacklogSize
	}

	if opts.Secure {
		cert, err := tls.LoadX509KeyPair(opts.TLSCertFile, opts.TLSKeyFile)
		if err != nil {
			return err
		}
		srv.Secure = true
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}

	sweep := housekeep.New(srv, log)
	if err := sweep.AddIdleSweep(opts.IdleSweepInterval, opts.IdleTimeout); err != nil {
		return err
	}
	if err := sweep.AddHealthLog(opts.HealthLogInterval); err != nil {
		return err
	}
	sweep.Start()
	defer sweep.Stop(opts.IdleTimeout)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("aioserver: shutting down")
		_ = srv.CloseWait()
	}()

	log.WithField("addr", opts.Addr).Info("aioserver: listening")
	if err := srv.Serve(ln); err != nil {
		if srv.State() == httpserver.ServerClosed || srv.State() == httpserver.ServerStopped {
			return nil
		}
		return err
	}
	return nil
}

// echoHandler is the default Handler when no application wiring is
// supplied: it echoes the request method and path, useful as a smoke test
// for the binary itself.
func echoHandler(resp *httpserver.Response, req *httpserver.Request) {
	body := []byte(req.Method + " " + req.RawPath)
	_ = resp.SendBody(body)
}
