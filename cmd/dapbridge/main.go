// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/dapserver"
	"github.com/firefox-devtools/vscode-firefox-debug/pkg/logger"
)

const (
	errCommandError = 1
	errSetup        = 2
)

func main() {
	log := logger.New("dapbridge")

	root := newRootCmd(log)
	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Error(err, "The debug adapter failed")
		log.Flush()
		os.Exit(errCommandError)
	}

	log.Flush()
}

func newRootCmd(log *logger.Logger) *cobra.Command {
	var serverPort int

	cmd := &cobra.Command{
		Use:   "dapbridge",
		Short: "Debug adapter bridging the Debug Adapter Protocol to the Firefox remote debugging protocol",
		Long: "dapbridge implements the editor side of the Debug Adapter Protocol and translates it " +
			"to the browser's remote debugging protocol. By default it serves one session over " +
			"stdin/stdout; with --server it listens on a TCP port instead.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverPort > 0 {
				return runTCPServer(cmd.Context(), serverPort, log)
			}

			server := dapserver.New(os.Stdin, os.Stdout, log.Logger)
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&serverPort, "server", 0, "Listen for DAP connections on this TCP port instead of using stdin/stdout")
	log.AddLevelFlag(cmd.PersistentFlags())

	return cmd
}

// runTCPServer accepts editor connections one at a time; each connection gets
// its own server and session.
func runTCPServer(ctx context.Context, port int, log *logger.Logger) error {
	listener, listenErr := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if listenErr != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, listenErr)
	}
	defer listener.Close()

	log.Info("Listening for DAP connections", "address", listener.Addr().String())

	for {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return acceptErr
		}

		log.Info("Editor connected", "remote", conn.RemoteAddr().String())
		server := dapserver.New(conn, conn, log.Logger)
		if runErr := server.Run(ctx); runErr != nil {
			log.Error(runErr, "DAP session ended with an error")
		}
		conn.Close()
	}
}
