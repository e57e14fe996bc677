package commands

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

// NewDashCmd creates the dash command
func NewDashCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dash",
		Short: "Open the web dashboard in browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDash(env, openBrowser)
		},
	}

	return cmd
}

func runDash(env *Env, open func(string) error) error {
	base := strings.TrimRight(env.serverURL(), "/")
	if base == "" {
		return fmt.Errorf("no server configured (use --server or SPACEFLOW_AUTH_API_BASE_URL)")
	}
	dashboardURL := base + "/app/dashboard"

	fmt.Fprintf(env.Out, "Opening dashboard...\n")
	fmt.Fprintf(env.Out, "URL: %s\n", dashboardURL)

	if err := open(dashboardURL); err != nil {
		return fmt.Errorf("failed to open browser: %w\nPlease visit: %s", err, dashboardURL)
	}

	return nil
}

// openBrowser opens the URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
