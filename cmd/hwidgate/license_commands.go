// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hwidgate/hwidgate/internal/auth"
	"github.com/hwidgate/hwidgate/internal/config"
	"github.com/hwidgate/hwidgate/internal/database"
	"github.com/hwidgate/hwidgate/internal/license"
	"github.com/hwidgate/hwidgate/internal/models"
	"github.com/hwidgate/hwidgate/internal/services"
)

// localService opens the configured database and builds a LicenseService
// for operator commands. The returned func closes the database.
func localService(configDir, dataDir string) (*services.LicenseService, func(), error) {
	cfg, err := config.New(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}

	db, err := database.New(cfg.GetDatabaseURL())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	svc, err := newLicenseService(cfg, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return svc, func() { db.Close() }, nil
}

func addStorageFlags(command *cobra.Command, configDir, dataDir *string) {
	command.Flags().StringVar(configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(dataDir, "data-dir", "", "data directory for the SQLite database (default is next to config file)")
}

func RunMigrateCommand() *cobra.Command {
	var configDir, dataDir string

	command := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the license schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(configDir)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			if dataDir != "" {
				cfg.SetDataDir(dataDir)
			}

			db, err := database.New(cfg.GetDatabaseURL())
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			cmd.Printf("Database schema is up to date (%s)\n", db.Dialect())
			return nil
		},
	}

	addStorageFlags(command, &configDir, &dataDir)

	return command
}

func RunCheckCommand() *cobra.Command {
	var configDir, dataDir string

	command := &cobra.Command{
		Use:   "check <hwid>",
		Short: "Show the license status of a HWID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeDB, err := localService(configDir, dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			status, err := svc.Check(cmd.Context(), services.CheckRequest{HWID: args[0]})
			if err != nil {
				return err
			}

			if status.Date != nil {
				cmd.Printf("%s %s\n", status.State, status.Date)
			} else {
				cmd.Println(status.State)
			}
			return nil
		},
	}

	addStorageFlags(command, &configDir, &dataDir)

	return command
}

func RunGrantCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		days      int
		mode      string
	)

	command := &cobra.Command{
		Use:   "grant <hwid>",
		Short: "Grant or extend a license",
		Long: `Grant or extend a license without going through the HTTP API.

--mode set  replaces the expiry with today + days
--mode add  extends from the current expiry, or from today if it already lapsed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := license.ParseMode(mode)
			if err != nil {
				return err
			}
			if m == license.ModeBan {
				return fmt.Errorf("use the ban command to expire a license")
			}

			svc, closeDB, err := localService(configDir, dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			if !cmd.Flags().Changed("days") {
				days = svc.DefaultDays()
			}

			result, err := svc.Apply(cmd.Context(), args[0], m, days)
			if err != nil {
				return err
			}

			cmd.Printf("License for '%s' now expires %s\n", result.HWID, result.Date)
			return nil
		},
	}

	addStorageFlags(command, &configDir, &dataDir)
	command.Flags().IntVar(&days, "days", license.DefaultDays, "number of days to grant (defaults to defaultDays from config)")
	command.Flags().StringVar(&mode, "mode", string(license.ModeSet), "grant mode: set or add (use the ban command to expire a license)")

	return command
}

func RunBanCommand() *cobra.Command {
	var configDir, dataDir string

	command := &cobra.Command{
		Use:   "ban <hwid>",
		Short: "Expire a license immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeDB, err := localService(configDir, dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			result, err := svc.Apply(cmd.Context(), args[0], license.ModeBan, 0)
			if err != nil {
				return err
			}

			cmd.Printf("License for '%s' banned (expiry %s)\n", result.HWID, result.Date)
			return nil
		},
	}

	addStorageFlags(command, &configDir, &dataDir)

	return command
}

type listedLicense struct {
	HWID   string `json:"hwid"`
	Date   string `json:"date"`
	Status string `json:"status"`
}

func RunListCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		match     string
		state     string
		asJSON    bool
	)

	command := &cobra.Command{
		Use:   "list",
		Short: "List all licenses, latest expiry first",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch state {
			case "", string(license.StateActive), string(license.StateExpired):
			default:
				return fmt.Errorf("invalid --state %q: must be active or expired", state)
			}

			svc, closeDB, err := localService(configDir, dataDir)
			if err != nil {
				return err
			}
			defer closeDB()

			licenses, err := svc.Licenses(cmd.Context())
			if err != nil {
				return err
			}

			rows := filterLicenses(licenses, svc, match, state)

			out := cmd.OutOrStdout()
			if asJSON || !isTerminal(out) {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			printLicenseTable(out, rows)
			return nil
		},
	}

	addStorageFlags(command, &configDir, &dataDir)
	command.Flags().StringVar(&match, "match", "", "fuzzy filter on HWID")
	command.Flags().StringVar(&state, "state", "", "only show active or expired licenses")
	command.Flags().BoolVar(&asJSON, "json", false, "print JSON even when attached to a terminal")

	return command
}

func filterLicenses(licenses []*models.License, svc *services.LicenseService, match, state string) []listedLicense {
	today := svc.Today()
	rows := make([]listedLicense, 0, len(licenses))

	for _, l := range licenses {
		if match != "" && !fuzzy.MatchFold(match, l.HWID) {
			continue
		}

		date := l.ExpiryDate
		status := license.Classify(&date, today)
		if state != "" && string(status.State) != state {
			continue
		}

		rows = append(rows, listedLicense{
			HWID:   l.HWID,
			Date:   date.String(),
			Status: string(status.State),
		})
	}

	return rows
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printLicenseTable(writer io.Writer, rows []listedLicense) {
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, []string{r.HWID, r.Date, r.Status})
	}

	table := tablewriter.NewWriter(writer)
	table.SetHeader([]string{"HWID", "Expires", "Status"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(data)
	table.Render()
}

func readPassword(prompt string) (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return string(password), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	var password string
	if _, err := fmt.Scanln(&password); err != nil {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	return password, nil
}

func RunHashSecretCommand() *cobra.Command {
	var secret string

	command := &cobra.Command{
		Use:   "hash-secret",
		Short: "Print an Argon2id hash of an API secret",
		Long: `Print an Argon2id hash of an API secret for use as apiSecretHash.

The secret is read from --secret or prompted for when omitted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				var err error
				secret, err = readPassword("Enter API secret: ")
				if err != nil {
					return err
				}
			}

			secret = strings.TrimSpace(secret)
			if secret == "" {
				return fmt.Errorf("secret cannot be empty")
			}

			hash, err := auth.HashSecret(secret)
			if err != nil {
				return fmt.Errorf("failed to hash secret: %w", err)
			}

			cmd.Println(hash)
			return nil
		},
	}

	command.Flags().StringVar(&secret, "secret", "", "secret to hash (prompted if omitted)")

	return command
}
