package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/danmuck/convoctl/internal/admin"
	"github.com/danmuck/convoctl/internal/controlplane"
	"github.com/danmuck/convoctl/internal/version"
	"github.com/rs/zerolog/log"
)

func cmdServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := newFlagSet("serve", stderr)
	configPath := fs.String("config", "", "runtime config path (TOML)")
	addr := fs.String("addr", "", "admin listen address (overrides admin_addr)")
	autostart := fs.Bool("autostart", false, "start a session at boot")
	stopOnExit := fs.Bool("stop-on-exit", true, "stop the owned session on shutdown")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	s, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*addr) != "" {
		s.runtime.AdminAddr = strings.TrimSpace(*addr)
	}
	client, err := s.newClient()
	if err != nil {
		return err
	}
	defer client.Close()
	ctrl, err := s.newController(client)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	srv := admin.NewServer(s.adminConfig(client), ctrl)
	if *autostart {
		go ctrl.Start(context.WithoutCancel(ctx))
	}

	runErr := srv.Run(ctx)

	if *stopOnExit && ctrl.State().Joined {
		stopCtx, cancel := context.WithTimeout(context.Background(), s.runtime.RequestTimeout)
		ctrl.Stop(stopCtx)
		cancel()
	}
	log.Info().Msg("convoctl stopped")
	return runErr
}

func cmdStart(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("start", stderr)
	configPath := fs.String("config", "", "runtime config path (TOML)")
	waitTimeout := fs.Duration("wait-timeout", 2*time.Minute, "how long to wait for retries to settle")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	s, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	client, err := s.newClient()
	if err != nil {
		return err
	}
	defer client.Close()
	ctrl, err := s.newController(client)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.Start(ctx)
	waitCtx, cancel := context.WithTimeout(ctx, *waitTimeout)
	defer cancel()
	waitErr := ctrl.Wait(waitCtx)

	st := ctrl.State()
	if err := writeJSON(stdout, st); err != nil {
		return err
	}
	if waitErr != nil {
		return &exitError{code: 1, err: fmt.Errorf("start did not settle: %w", waitErr)}
	}
	if !st.Joined {
		return &exitError{code: 1, err: fmt.Errorf("agent not started: %s", st.LastError)}
	}
	return nil
}

func cmdStop(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("stop", stderr)
	configPath := fs.String("config", "", "runtime config path (TOML)")
	agentID := fs.String("agent-id", "", "remote session to stop")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if strings.TrimSpace(*agentID) == "" {
		return &exitError{code: 2, err: errors.New("--agent-id is required")}
	}

	s, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	client, err := s.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Leave(ctx, *agentID)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return &exitError{code: 1, err: fmt.Errorf("leave %s: status %d: %s", *agentID, resp.Status, strings.TrimSpace(string(resp.Body)))}
	}
	out := controlplane.ParseLeave(resp.Body)
	if !out.OK {
		fmt.Fprintf(stdout, "%s stop requested (not confirmed: code=%d message=%q)\n", *agentID, out.Code, out.Message)
		return nil
	}
	fmt.Fprintf(stdout, "%s stopped\n", *agentID)
	return nil
}

func cmdList(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("list", stderr)
	configPath := fs.String("config", "", "runtime config path (TOML)")
	asJSON := fs.Bool("json", false, "print raw sessions as JSON")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}

	s, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	client, err := s.newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.ListActive(ctx)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return &exitError{code: 1, err: fmt.Errorf("list: status %d", resp.Status)}
	}
	out, err := controlplane.ParseListActive(resp.Body)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(stdout, out.Sessions)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT_ID\tSTATUS\tCHANNEL\tSTARTED")
	for _, rs := range out.Sessions {
		started := "-"
		if rs.StartTS > 0 {
			started = time.Unix(rs.StartTS, 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", orDash(rs.AgentID), orDash(rs.Status), orDash(rs.Channel), started)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if out.Count > len(out.Sessions) {
		fmt.Fprintf(stdout, "(%d of %d shown)\n", len(out.Sessions), out.Count)
	}
	return nil
}

func cmdVersion(stdout io.Writer) error {
	_, err := fmt.Fprintf(stdout, "convoctl %s\n", version.String())
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
