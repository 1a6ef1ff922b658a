// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwidgate/hwidgate/internal/auth"
	"github.com/hwidgate/hwidgate/internal/config"
)

func setupConfigDir(t *testing.T) string {
	t.Helper()

	configDir := filepath.Join(t.TempDir(), "config")
	require.NoError(t, config.WriteDefaultConfig(filepath.Join(configDir, "config.toml")))
	return configDir
}

func execute(t *testing.T, command *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var output bytes.Buffer
	command.SetOut(&output)
	command.SetErr(&output)
	command.SetArgs(args)

	err := command.Execute()
	return output.String(), err
}

func today() civil.Date {
	return civil.DateOf(time.Now())
}

func TestRunGenerateConfigCommand(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "fresh")

	output, err := execute(t, RunGenerateConfigCommand(), "--config-dir", configDir)
	require.NoError(t, err)
	assert.Contains(t, output, "Configuration file created successfully")

	content, err := os.ReadFile(filepath.Join(configDir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "apiSecret = \"")

	output, err = execute(t, RunGenerateConfigCommand(), "--config-dir", configDir)
	require.NoError(t, err)
	assert.Contains(t, output, "already exists")
}

func TestRunMigrateCommand(t *testing.T) {
	configDir := setupConfigDir(t)

	output, err := execute(t, RunMigrateCommand(), "--config-dir", configDir)
	require.NoError(t, err)
	assert.Contains(t, output, "Database schema is up to date (sqlite)")
	assert.FileExists(t, filepath.Join(configDir, "hwidgate.db"))
}

func TestGrantCheckBanFlow(t *testing.T) {
	configDir := setupConfigDir(t)
	dataDir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	output, err := execute(t, RunCheckCommand(), "--config-dir", configDir, "--data-dir", dataDir, "PC-1")
	require.NoError(t, err)
	assert.Equal(t, "not_found\n", output)

	output, err = execute(t, RunGrantCommand(), "--config-dir", configDir, "--data-dir", dataDir, "--days", "10", "PC-1")
	require.NoError(t, err)
	assert.Contains(t, output, "License for 'PC-1' now expires "+today().AddDays(10).String())

	output, err = execute(t, RunGrantCommand(), "--config-dir", configDir, "--data-dir", dataDir, "--days", "5", "--mode", "add", "PC-1")
	require.NoError(t, err)
	assert.Contains(t, output, today().AddDays(15).String())

	output, err = execute(t, RunCheckCommand(), "--config-dir", configDir, "--data-dir", dataDir, "PC-1")
	require.NoError(t, err)
	assert.Equal(t, "active "+today().AddDays(15).String()+"\n", output)

	output, err = execute(t, RunBanCommand(), "--config-dir", configDir, "--data-dir", dataDir, "PC-1")
	require.NoError(t, err)
	assert.Contains(t, output, "banned")

	output, err = execute(t, RunCheckCommand(), "--config-dir", configDir, "--data-dir", dataDir, "PC-1")
	require.NoError(t, err)
	assert.Equal(t, "expired "+today().AddDays(-1).String()+"\n", output)

	assert.FileExists(t, filepath.Join(dataDir, "hwidgate.db"))
}

func TestRunGrantCommand_Rejections(t *testing.T) {
	configDir := setupConfigDir(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown mode", args: []string{"--mode", "extend", "PC-1"}, want: "mode"},
		{name: "ban mode", args: []string{"--mode", "ban", "PC-1"}, want: "ban command"},
		{name: "negative days", args: []string{"--days", "-1", "PC-1"}, want: "days"},
		{name: "too many days", args: []string{"--days", "40000", "PC-1"}, want: "days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config-dir", configDir}, tt.args...)
			_, err := execute(t, RunGrantCommand(), args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunListCommand(t *testing.T) {
	configDir := setupConfigDir(t)

	for _, args := range [][]string{
		{"--days", "30", "office-desktop-01"},
		{"--days", "5", "office-laptop-02"},
		{"--days", "90", "warehouse-scanner"},
	} {
		_, err := execute(t, RunGrantCommand(), append([]string{"--config-dir", configDir}, args...)...)
		require.NoError(t, err)
	}
	_, err := execute(t, RunBanCommand(), "--config-dir", configDir, "office-laptop-02")
	require.NoError(t, err)

	decode := func(t *testing.T, output string) []listedLicense {
		t.Helper()
		var rows []listedLicense
		require.NoError(t, json.Unmarshal([]byte(output), &rows))
		return rows
	}

	t.Run("all ordered by expiry", func(t *testing.T) {
		output, err := execute(t, RunListCommand(), "--config-dir", configDir)
		require.NoError(t, err)

		rows := decode(t, output)
		require.Len(t, rows, 3)
		assert.Equal(t, "warehouse-scanner", rows[0].HWID)
		assert.Equal(t, "office-desktop-01", rows[1].HWID)
		assert.Equal(t, "office-laptop-02", rows[2].HWID)
		assert.Equal(t, "expired", rows[2].Status)
		assert.Equal(t, today().AddDays(90).String(), rows[0].Date)
	})

	t.Run("fuzzy match", func(t *testing.T) {
		output, err := execute(t, RunListCommand(), "--config-dir", configDir, "--match", "OFFICE")
		require.NoError(t, err)

		rows := decode(t, output)
		require.Len(t, rows, 2)
		for _, r := range rows {
			assert.True(t, strings.HasPrefix(r.HWID, "office-"))
		}
	})

	t.Run("state filter", func(t *testing.T) {
		output, err := execute(t, RunListCommand(), "--config-dir", configDir, "--state", "active")
		require.NoError(t, err)
		assert.Len(t, decode(t, output), 2)
	})

	t.Run("invalid state", func(t *testing.T) {
		_, err := execute(t, RunListCommand(), "--config-dir", configDir, "--state", "banned")
		require.Error(t, err)
	})
}

func TestPrintLicenseTable(t *testing.T) {
	var buf bytes.Buffer
	printLicenseTable(&buf, []listedLicense{
		{HWID: "PC-1", Date: "2030-01-01", Status: "active"},
	})

	out := buf.String()
	assert.Contains(t, out, "HWID")
	assert.Contains(t, out, "PC-1")
	assert.Contains(t, out, "2030-01-01")
}

func TestRunHashSecretCommand(t *testing.T) {
	output, err := execute(t, RunHashSecretCommand(), "--secret", "s3cret")
	require.NoError(t, err)

	hash := strings.TrimSpace(output)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := auth.VerifySecret("s3cret", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunVersionCommand(t *testing.T) {
	output, err := execute(t, RunVersionCommand("1.2.3"))
	require.NoError(t, err)
	assert.Equal(t, "1.2.3\n", output)
}
