package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var registerFlag bool

var loginCmd = &cobra.Command{
	Use:   "login <username> <password>",
	Short: "Obtain an access token from the backend",
	Long: `Logs in against the backend's auth endpoint and prints the access
token. Export it as AUTH_TOKEN for the chat command. With --register a new
account is created instead.`,
	Args: cobra.ExactArgs(2),
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().BoolVar(&registerFlag, "register", false, "create a new account")
}

func runLogin(cmd *cobra.Command, args []string) error {
	endpoint := strings.TrimSuffix(cfg.APIBaseURL, "/api") + "/auth/login"
	if registerFlag {
		endpoint = strings.TrimSuffix(cfg.APIBaseURL, "/api") + "/auth/register"
	}

	body, err := json.Marshal(map[string]string{
		"username": args[0],
		"password": args[1],
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("auth failed: %s - %s", resp.Status, string(payload))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
		Username    string `json:"username"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	fmt.Printf("logged in as %s (id %s)\n", out.Username, out.UserID)
	fmt.Printf("export AUTH_TOKEN=%s\n", out.AccessToken)
	return nil
}
