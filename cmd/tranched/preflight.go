package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/chidi150c/tranchebot/internal/config"
)

var errPreflight = errors.New("preflight failed")

func newPreflightCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check credentials and rules before going live",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return preflight(cmd.OutOrStdout(), a.rulesPath)
		},
	}
}

// preflight prints one PASS or FAIL line per check and stops at the first
// failure.
func preflight(out io.Writer, rulesPath string) error {
	pass := func(msg string) { fmt.Fprintln(out, "PASS:", msg) }
	fail := func(msg string, err error) error {
		fmt.Fprintf(out, "FAIL: %s: %v\n", msg, err)
		return fmt.Errorf("%w: %s", errPreflight, msg)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		return fail("credentials", err)
	}
	pass("API key and secret present")
	if creds.Account == "" {
		fmt.Fprintf(out, "NOTE: %s is empty; orders are routed to the key's default account.\n", config.EnvAccount)
	}

	rules, err := config.LoadRules(rulesPath)
	if err != nil {
		return fail("rules", err)
	}
	pass(fmt.Sprintf("rules parsed: %s, %d tranches, position limit %d",
		rules.Instrument().Symbol(), len(rules.Tranches), rules.PositionLimit))

	if err := checkURL(rules.Engine.MDWS, "ws", "wss"); err != nil {
		return fail("engine.md_ws", err)
	}
	pass("market data endpoint: " + rules.Engine.MDWS)

	if rules.Engine.RestBase != "" {
		if err := checkURL(rules.Engine.RestBase, "http", "https"); err != nil {
			return fail("engine.rest_base", err)
		}
		pass("REST endpoint: " + rules.Engine.RestBase)
	} else {
		pass("REST endpoint: default")
	}

	for _, t := range rules.Tranches {
		kind := "oco"
		if t.TrailingStop != nil {
			kind = "trailing"
		}
		pass(fmt.Sprintf("tranche %s: %s, qty %d, %s, exit %s", t.Name, kind, t.Qty, t.Status, t.Side))
	}

	pass("Preflight completed")
	return nil
}

func checkURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("missing")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("want %v URL, got %q", schemes, raw)
}
