package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshp123/unisenza-bridge/internal/config"
	"github.com/joshp123/unisenza-bridge/internal/core"
	"github.com/joshp123/unisenza-bridge/internal/hass"
	"github.com/joshp123/unisenza-bridge/internal/server"
	"github.com/joshp123/unisenza-bridge/internal/unisenza"
)

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient() *apiClient {
	base := resolveHTTPAddr()
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &apiClient{base: strings.TrimSuffix(base, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, apiErr.Message)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) entries(ctx context.Context) ([]server.EntryView, error) {
	var entries []server.EntryView
	err := c.do(ctx, http.MethodGet, "/api/config/entries", nil, &entries)
	return entries, err
}

// resolveEntry accepts an entry id or an entry title.
func (c *apiClient) resolveEntry(ctx context.Context, input string) (string, error) {
	entries, err := c.entries(ctx)
	if err != nil {
		return "", err
	}
	titles := make([]namedID, 0, len(entries))
	for _, entry := range entries {
		if entry.EntryID == input {
			return entry.EntryID, nil
		}
		titles = append(titles, namedID{label: entry.Title, id: entry.EntryID})
	}
	return resolveNamedID("entry", input, titles)
}

var integrationsCmd = &cobra.Command{
	Use:   "integrations [id]",
	Short: "List integrations, or describe one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		out := output()
		if len(args) == 1 {
			var desc core.Descriptor
			if err := client.do(cmd.Context(), http.MethodGet, "/api/integrations/"+args[0], nil, &desc); err != nil {
				return err
			}
			if out.json {
				out.printJSON(desc)
				return nil
			}
			fmt.Printf("id: %s\n", desc.IntegrationID)
			fmt.Printf("name: %s\n", desc.DisplayName)
			fmt.Printf("version: %s\n", desc.Version)
			fmt.Printf("status: %s\n", desc.Status)
			if desc.HealthMessage != "" {
				fmt.Printf("health: %s\n", desc.HealthMessage)
			}
			fmt.Printf("platforms: %s\n", strings.Join(desc.Platforms, ", "))
			return nil
		}

		var list []core.Summary
		if err := client.do(cmd.Context(), http.MethodGet, "/api/integrations", nil, &list); err != nil {
			return err
		}
		if out.json {
			out.printJSON(list)
			return nil
		}
		rows := [][]string{{"ID", "NAME", "VERSION", "STATUS"}}
		for _, item := range list {
			rows = append(rows, []string{item.IntegrationID, item.DisplayName, item.Version, item.Status})
		}
		out.table(rows)
		return nil
	},
}

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List config entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		entries, err := newAPIClient().entries(cmd.Context())
		if err != nil {
			return err
		}
		out := output()
		if out.json {
			out.printJSON(entries)
			return nil
		}
		rows := [][]string{{"ENTRY", "DOMAIN", "TITLE", "STATE", "REASON"}}
		for _, entry := range entries {
			state := entry.State
			if entry.ReauthRequired {
				state += " (reauth)"
			}
			rows = append(rows, []string{entry.EntryID, entry.Domain, entry.Title, state, entry.Reason})
		}
		out.table(rows)
		return nil
	},
}

var entriesRemoveCmd = &cobra.Command{
	Use:   "remove <entry_id|title>",
	Short: "Unload and delete a config entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		entryID, err := client.resolveEntry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := client.do(cmd.Context(), http.MethodDelete, "/api/config/entries/"+entryID, nil, nil); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", entryID)
		return nil
	},
}

var entriesReloadCmd = &cobra.Command{
	Use:   "reload <entry_id|title>",
	Short: "Unload and set up a config entry again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAPIClient()
		entryID, err := client.resolveEntry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		var view server.EntryView
		if err := client.do(cmd.Context(), http.MethodPost, "/api/config/entries/"+entryID+"/reload", nil, &view); err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", view.EntryID, view.State)
		return nil
	},
}

var (
	loginUsername     string
	loginPasswordFile string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Add a Unisenza Plus account through the config flow",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		password, err := readPassword(loginPasswordFile)
		if err != nil {
			return err
		}
		if loginUsername == "" || password == "" {
			return fmt.Errorf("username and password are required")
		}

		client := newAPIClient()
		ctx := cmd.Context()
		var form hass.FlowResult
		if err := client.do(ctx, http.MethodPost, "/api/config/flow", server.FlowStartRequest{Handler: unisenza.Domain}, &form); err != nil {
			return err
		}
		var result hass.FlowResult
		input := map[string]any{hass.ConfUsername: loginUsername, hass.ConfPassword: password}
		if err := client.do(ctx, http.MethodPost, "/api/config/flow/"+form.FlowID, input, &result); err != nil {
			return err
		}
		return reportFlow(result)
	},
}

func init() {
	entriesCmd.AddCommand(entriesRemoveCmd, entriesReloadCmd)
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "Unisenza Plus account username")
	loginCmd.Flags().StringVar(&loginPasswordFile, "password-file", "", "File holding the password (default: read from stdin)")
}

func reportFlow(result hass.FlowResult) error {
	out := output()
	if out.json {
		out.printJSON(result)
	}
	switch result.Type {
	case hass.FlowResultCreateEntry:
		if !out.json {
			fmt.Printf("created entry %s (%s)\n", result.EntryID, result.Title)
		}
		return nil
	case hass.FlowResultAbort:
		return fmt.Errorf("flow aborted: %s", result.Reason)
	default:
		if base := result.Errors["base"]; base != "" {
			return fmt.Errorf("login failed: %s", base)
		}
		return fmt.Errorf("flow stopped at step %q", result.StepID)
	}
}

func readPassword(path string) (string, error) {
	if path != "" {
		return config.ReadSecretFile(path)
	}
	if value := os.Getenv("UNISENZA_PASSWORD"); value != "" {
		return value, nil
	}
	if isStdinTerminal() {
		fmt.Fprint(os.Stderr, "password: ")
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// dialable turns a listen address into one a client can connect to.
func dialable(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
