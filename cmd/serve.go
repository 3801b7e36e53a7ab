package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issuedao/internal/api"
	"github.com/joescharf/issuedao/internal/daemon"
	"github.com/joescharf/issuedao/internal/output"
)

const stopTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server in the foreground",
	Long: `Serve the REST API under /api/v1/orgs. Callers identify themselves with
the X-Principal header; deposits travel in X-Deposit.

Use 'serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// stateFile returns the state file of the background server.
func stateFile() *daemon.StateFile {
	return daemon.NewStateFile(filepath.Join(viper.GetString("state_dir"), "issuedao-serve.yaml"))
}

// serveLogPath returns where the background server writes its output.
func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "issuedao-serve.log")
}

func serveRun() error {
	logger := newLogger(os.Stderr)
	e, err := newEngine(logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(e, newLLMClient(), logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sf := stateFile()
	if err := sf.Write(addr); err != nil {
		return err
	}
	defer func() { _ = sf.Remove() }()

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving API", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serveStartRun() error {
	sf := stateFile()
	if st, ok := sf.IsRunning(); ok {
		return fmt.Errorf("server already running (pid %d on %s)", st.PID, st.Addr)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"serve", "--port", fmt.Sprintf("%d", viper.GetInt("port"))}
	if cfg, _ := rootCmd.PersistentFlags().GetString("config"); cfg != "" {
		args = append(args, "--config", cfg)
	}

	if dryRun {
		ui.DryRunMsg("Would start %s %v", exe, args)
		return nil
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open server log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("Server started (pid %d), logging to %s", child.Process.Pid, logPath)
	return nil
}

func serveStopRun() error {
	sf := stateFile()
	st, ok := sf.IsRunning()
	if !ok {
		_ = sf.Remove()
		return fmt.Errorf("server is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server pid %d", st.PID)
		return nil
	}

	if err := sf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if _, alive := sf.IsRunning(); !alive {
			ui.Success("Server stopped")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	ui.Warning("Server did not stop within %s, killing pid %d", stopTimeout, st.PID)
	if err := sf.Signal(sigKILL()); err != nil {
		return fmt.Errorf("kill server: %w", err)
	}
	_ = sf.Remove()
	return nil
}

func serveStatusRun() error {
	st, ok := stateFile().IsRunning()
	if !ok {
		ui.Info("Server: %s", output.Red("not running"))
		return nil
	}
	ui.Info("Server: %s (pid %d on %s, since %s)", output.Green("running"), st.PID, st.Addr, st.StartedAt.Format(time.RFC3339))
	return nil
}
