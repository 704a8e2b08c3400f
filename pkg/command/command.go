package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/labelworks/pachstore/pkg/logger"
)

var GlobalCommandOption = struct {
	Debug      bool
	Quiet      bool
	ConfigPath string
}{}

type ICommandOption interface {
	Complete(ctx context.Context, args []string, argsLenAtDash int) error
	Validate(ctx context.Context) error
	Run(ctx context.Context, args []string) error
}

func MakeRunE(opt ICommandOption) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if GlobalCommandOption.Debug {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		const (
			logLevelDebug = "debug"
			logLevelInfo  = "info"
		)

		currentLogLevelString := logLevelInfo

		rotateLogLevel := func() {
			if currentLogLevelString == logLevelDebug {
				currentLogLevelString = logLevelInfo
				logger.SetLevel(logrus.InfoLevel)
			} else {
				currentLogLevelString = logLevelDebug
				logger.SetLevel(logrus.DebugLevel)
			}
			logger.L().WithField("level", currentLogLevelString).Info("Log level set")
		}

		// watch usr1 signal to rotate log level
		go func() {
			shutdownSigCh := make(chan os.Signal, 1)
			usr1SigCh := make(chan os.Signal, 1)

			signal.Notify(shutdownSigCh, unix.SIGINT, unix.SIGTERM)
			signal.Notify(usr1SigCh, unix.SIGUSR1)

			for {
				select {
				case <-shutdownSigCh:
					os.Exit(0)
				case <-usr1SigCh:
					rotateLogLevel()
				}
			}
		}()

		argsLenAtDash := cmd.ArgsLenAtDash()

		ctx, cancel := context.WithCancel(cmd.Context())

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		go func() {
			<-c
			fmt.Println("Stopping...")
			cancel()
		}()

		err := opt.Complete(ctx, args, argsLenAtDash)
		if err != nil {
			err = errors.Wrap(err, "failed to complete")
			return err
		}
		err = opt.Validate(ctx)
		if err != nil {
			err = errors.Wrap(err, "failed to validate")
			return err
		}
		return errors.Wrap(opt.Run(ctx, args), "failed to run")
	}
}

type SpinnerWrapper struct {
	spinner *spinner.Spinner
}

func StartSpinner(format string, args ...interface{}) *SpinnerWrapper {
	if !strings.HasPrefix(format, " ") {
		format = " " + format
	}

	if GlobalCommandOption.Quiet {
		return &SpinnerWrapper{}
	}

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = fmt.Sprintf(format, args...)
	s.Start()
	return &SpinnerWrapper{
		spinner: s,
	}
}

func (s *SpinnerWrapper) Stop() {
	if s.spinner == nil {
		return
	}
	s.spinner.Stop()
	s.spinner = nil
}
