package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raniellyferreira/respwire"
	"github.com/raniellyferreira/respwire/internal/resptest"
	"github.com/raniellyferreira/respwire/lua"
	"github.com/raniellyferreira/respwire/protocol"
)

func encodeCmd() *cobra.Command {
	var (
		preamble string
		raw      bool
	)

	cmd := &cobra.Command{
		Use:   "encode NAME [ARG...]",
		Short: "Serialize a command",
		Long: `Serialize a command as an array of bulk strings. With --preamble the
given bytes are placed in front of the command through the reserved
preamble region.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := encodeCommand([]byte(preamble), args)
			if err != nil {
				return err
			}
			defer req.Recycle()

			out := cmd.OutOrStdout()
			if raw {
				_, err = req.WriteTo(out)
				return err
			}
			fmt.Fprintf(out, "%q\n", req.String())
			fmt.Fprintf(out, "bytes=%d preamble=%d xxhash=%016x\n", req.Len(), req.PreambleLen(), req.Sum64())
			return nil
		},
	}

	cmd.Flags().StringVarP(&preamble, "preamble", "p", "", "Bytes to send before the command")
	cmd.Flags().BoolVar(&raw, "raw", false, "Write the encoded bytes unquoted")

	return cmd
}

// encodeCommand serializes args[0] with the remaining arguments
func encodeCommand(preamble []byte, args []string) (protocol.RequestBuffer, error) {
	w, err := protocol.NewCommandWriter(len(preamble), 0)
	if err != nil {
		return protocol.RequestBuffer{}, err
	}
	defer w.Close()

	if err := w.WriteCommandString(args[0], len(args)-1); err != nil {
		return protocol.RequestBuffer{}, err
	}
	for _, arg := range args[1:] {
		if err := w.WriteString(arg); err != nil {
			return protocol.RequestBuffer{}, err
		}
	}

	req, err := w.Detach()
	if err != nil {
		return protocol.RequestBuffer{}, err
	}
	req, err = req.WithPreamble(preamble)
	if err != nil {
		req.Recycle()
		return protocol.RequestBuffer{}, err
	}
	return req, nil
}

func decodeCmd() *cobra.Command {
	var (
		file      string
		blockSize int
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Frame and print RESP values",
		Long:  `Read RESP2/RESP3 values from a file or stdin and print each one.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return decodeStream(commandContext(cmd), in, cmd.OutOrStdout(), blockSize, raw)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read from file instead of stdin")
	cmd.Flags().IntVar(&blockSize, "block-size", protocol.DefaultStreamBlockSize, "Segment size used to buffer input")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print each frame's bytes instead of the decoded value")

	return cmd
}

// decodeStream prints every top-level value read from in
func decodeStream(ctx context.Context, in io.Reader, out io.Writer, blockSize int, raw bool) error {
	source, err := protocol.NewStreamSource(in, protocol.WithSourceBlockSize(blockSize))
	if err != nil {
		return err
	}
	defer source.Close()

	for {
		lease, err := source.ReadNext(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if raw {
			fmt.Fprintf(out, "%q\n", lease.String())
			lease.Release()
			continue
		}

		v, err := protocol.ParseValue(lease)
		lease.Release()
		if err != nil {
			return err
		}
		writeValue(out, v)
	}
}

// connFlags are shared by commands that talk to a server
type connFlags struct {
	addr    string
	timeout time.Duration
	verbose bool
}

func (f *connFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.addr, "addr", "a", "localhost:6379", "Server address (host:port)")
	cmd.Flags().DurationVarP(&f.timeout, "timeout", "t", 5*time.Second, "Timeout for the whole operation")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log connection events")
}

func (f *connFlags) dial(ctx context.Context) (*respwire.Conn, error) {
	opts := []respwire.Option{respwire.WithConnectTimeout(f.timeout)}
	if !f.verbose {
		opts = append(opts, respwire.WithLogger(respwire.NopLogger()))
	}
	return respwire.Dial(ctx, f.addr, opts...)
}

func doCmd() *cobra.Command {
	var flags connFlags

	cmd := &cobra.Command{
		Use:   "do NAME [ARG...]",
		Short: "Send one command and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(commandContext(cmd), flags.timeout)
			defer cancel()

			conn, err := flags.dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			v, err := conn.Do(ctx, args[0], args[1:]...)
			var replyErr *respwire.ReplyError
			if err != nil && !errors.As(err, &replyErr) {
				return err
			}
			writeValue(cmd.OutOrStdout(), v)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func evalCmd() *cobra.Command {
	var flags connFlags

	cmd := &cobra.Command{
		Use:   "eval SCRIPT NUMKEYS [KEY...] [ARG...]",
		Short: "Run a Lua script client-side",
		Long: `Run a Lua script locally. Each redis.call and redis.pcall is sent to
the server as an ordinary command, so the server needs no scripting
support.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			numKeys, err := strconv.Atoi(args[1])
			if err != nil || numKeys < 0 || numKeys > len(args)-2 {
				return fmt.Errorf("invalid number of keys %q", args[1])
			}

			ctx, cancel := context.WithTimeout(commandContext(cmd), flags.timeout)
			defer cancel()

			conn, err := flags.dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			engine := lua.NewEngine(conn)
			v, err := engine.Eval(ctx, args[0], args[2:2+numKeys], args[2+numKeys:])
			if err != nil {
				return err
			}
			writeValue(cmd.OutOrStdout(), v)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory test server",
		Long: `Run a small in-memory server that understands PING, ECHO, GET, SET,
DEL, EXISTS, INCR, EVAL and a few test helpers. Stop it with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := resptest.NewServer(addr)
			if err := s.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", s.Addr())

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-sigCh:
			case <-commandContext(cmd).Done():
			}

			stats := s.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "served %d commands on %d connections\n",
				stats["total_commands"], stats["total_connections"])
			return s.Stop()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:6379", "Listen address")
	return cmd
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, respwire.Version)
				return
			}

			info := respwire.VersionInfo()
			fmt.Fprintf(out, "  Version:    %s\n", info["version"])
			if commit, ok := info["commit"]; ok {
				fmt.Fprintf(out, "  Commit:     %s\n", commit)
			}
			if built, ok := info["buildTime"]; ok {
				fmt.Fprintf(out, "  Built:      %s\n", built)
			}
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
