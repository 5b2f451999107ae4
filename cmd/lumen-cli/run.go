package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lumen/internal/bootstrap"
	"lumen/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start an interactive session",
	Long: `Start an interactive session.

Commands (one per line):
  <enter> or c    capture a scene, or record a question once one is held
  s               send the current recording now
  ask <text>      ask a typed question
  n               new image
  h               print history
  q               quit`,
	Args: cobra.NoArgs,
	RunE: runInteractive,
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "capture and describe one scene",
	Args:  cobra.NoArgs,
	RunE:  runCapture,
}

type action int

const (
	actionUnknown action = iota
	actionPrimary
	actionStop
	actionAsk
	actionNewImage
	actionHistory
	actionQuit
)

// parseLine maps one input line to an action and its argument.
func parseLine(line string) (action, string) {
	line = strings.TrimSpace(line)
	lower := strings.ToLower(line)
	switch {
	case lower == "" || lower == "c":
		return actionPrimary, ""
	case lower == "s":
		return actionStop, ""
	case lower == "n":
		return actionNewImage, ""
	case lower == "h":
		return actionHistory, ""
	case lower == "q" || lower == "quit" || lower == "exit":
		return actionQuit, ""
	case strings.HasPrefix(lower, "ask "):
		return actionAsk, strings.TrimSpace(line[len("ask "):])
	default:
		return actionUnknown, line
	}
}

func runInteractive(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	services, err := bootstrap.Build(newConsoleSink(out))
	if err != nil {
		errorColor.Fprintf(cmd.ErrOrStderr(), "startup failed: %v\n", err)
		return err
	}
	defer closeServices(services)

	services.Controller.RefreshHistory()
	dimColor.Fprintln(out, "ready: press enter to capture, q to quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				services.Controller.Wait()
				return nil
			}
			if quit := dispatch(ctx, out, services.Controller, line); quit {
				return nil
			}
		}
	}
}

func dispatch(ctx context.Context, out io.Writer, controller *usecase.SessionController, line string) bool {
	act, arg := parseLine(line)
	var err error
	switch act {
	case actionPrimary:
		err = controller.PrimaryAction(ctx)
	case actionStop:
		err = controller.StopRecording()
	case actionAsk:
		err = controller.AskText(ctx, arg)
	case actionNewImage:
		controller.NewImage()
	case actionHistory:
		printHistory(out, controller.History())
	case actionQuit:
		return true
	default:
		errorColor.Fprintf(out, "unknown command %q\n", arg)
	}

	switch {
	case err == nil:
	case errors.Is(err, usecase.ErrBusy):
		dimColor.Fprintln(out, "busy, please wait")
	case errors.Is(err, usecase.ErrNoImage):
		dimColor.Fprintln(out, "capture a scene first")
	case errors.Is(err, usecase.ErrNoActiveRecording):
		dimColor.Fprintln(out, "not recording")
	default:
		errorColor.Fprintf(out, "%v\n", err)
	}
	return false
}

func runCapture(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Build(newConsoleSink(cmd.OutOrStdout()))
	if err != nil {
		errorColor.Fprintf(cmd.ErrOrStderr(), "startup failed: %v\n", err)
		return err
	}
	defer closeServices(services)

	if err := services.Controller.PrimaryAction(ctx); err != nil {
		return err
	}
	services.Controller.Wait()

	if msg := services.Controller.Status().ErrorMessage; msg != "" {
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func closeServices(services bootstrap.Services) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := services.Close(ctx); err != nil {
		services.Logger.Warn().Err(err).Msg("shutdown incomplete")
	}
}
