package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/p2precorder/internal/domain"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	root := &cobra.Command{
		Use:           "recorder",
		Short:         "Peer-to-peer WebRTC sender and recording receiver with manual signaling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Int("port", 8080, "HTTP listen port")
	root.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn or error)")
	root.PersistentFlags().Bool("stdin", false, "Import peer exchange text from stdin and print the local text to stdout")
	root.PersistentFlags().Duration("gather-timeout", 0, "Give up waiting for ICE gathering after this long")

	root.AddCommand(commandSender(), commandReceiver())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func commandSender() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sender",
		Aliases: []string{"offerer"},
		Short:   "Stream local media to the receiver",
		RunE:    runRole,
	}
	cmd.Flags().String("video", "", "IVF (VP8) file to stream")
	cmd.Flags().String("audio", "", "Ogg (Opus) file to stream")
	cmd.Flags().Bool("loop", true, "Restart the media files at EOF")
	return cmd
}

func commandReceiver() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "receiver",
		Aliases: []string{"answerer"},
		Short:   "Receive the sender's stream and record it",
		RunE:    runRole,
	}
	cmd.Flags().Duration("timeslice", 0, "Recording chunk interval")
	return cmd
}

// runRole derives the session role from the command name.
func runRole(cmd *cobra.Command, args []string) error {
	role, err := domain.ParseRole(cmd.Name())
	if err != nil {
		return err
	}
	return serve(cmd, role)
}
