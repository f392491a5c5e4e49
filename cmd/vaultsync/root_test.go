package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/forest6511/vaultsync/pkg/credentials"
	"github.com/forest6511/vaultsync/pkg/security"
	"github.com/forest6511/vaultsync/pkg/vault"
)

const testPassword = "correct horse battery"

// setupCLI points the CLI at light KDF settings and an in-memory keyring.
func setupCLI(t *testing.T) string {
	t.Helper()
	gokeyring.MockInit()
	t.Setenv(passwordEnv, testPassword)
	t.Setenv("VAULTSYNC_KDF_MEMORY", "1024")
	t.Setenv("VAULTSYNC_KDF_ITERATIONS", "1")
	t.Setenv("VAULTSYNC_KDF_PARALLELISM", "1")
	return t.TempDir()
}

// resetFlags restores every flag to its default between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--dir", dir}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, dir, args...)
	require.NoError(t, err, "vaultsync %s", strings.Join(args, " "))
	return out
}

func TestInitTwiceFails(t *testing.T) {
	dir := setupCLI(t)
	out := mustRun(t, dir, "init")
	assert.Contains(t, out, "Vault initialized successfully")
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))

	_, err := runCLI(t, dir, "init")
	assert.ErrorContains(t, err, "already exists")
}

func TestCommandsRequireVault(t *testing.T) {
	dir := setupCLI(t)
	_, err := runCLI(t, dir, "entry", "list")
	assert.ErrorContains(t, err, "vaultsync init")
}

func TestWrongPassword(t *testing.T) {
	dir := setupCLI(t)
	mustRun(t, dir, "init")
	t.Setenv(passwordEnv, "not the password")
	_, err := runCLI(t, dir, "entry", "list")
	assert.ErrorContains(t, err, "failed to unlock vault")
}

func TestEntryLifecycle(t *testing.T) {
	dir := setupCLI(t)
	mustRun(t, dir, "init")
	mustRun(t, dir, "group", "add", "Work")
	mustRun(t, dir, "group", "add", "APIs", "--parent", "Work")

	out := mustRun(t, dir, "entry", "add", "GitHub", "--group", "Work",
		"--username", "octocat", "--url", "https://github.com/login",
		"--field", "password=hunter2hunter2", "--tag", "work")
	assert.Contains(t, out, "Entry 'GitHub' created")
	mustRun(t, dir, "entry", "add", "Stripe", "--group", "Work/APIs", "--field", "api_key=sk_live_abcdefghijklmnop")

	out = mustRun(t, dir, "group", "list")
	assert.Contains(t, out, "Work (1 entries)")
	assert.Contains(t, out, "  APIs (1 entries)")
	assert.Contains(t, out, "Trash")

	out = mustRun(t, dir, "entry", "list")
	assert.Contains(t, out, "GitHub <octocat>  (Work) [work]")
	assert.Contains(t, out, "Stripe  (Work/APIs)")

	out = mustRun(t, dir, "entry", "list", "--tag", "work")
	assert.Contains(t, out, "GitHub")
	assert.NotContains(t, out, "Stripe")

	out = mustRun(t, dir, "entry", "get", "GitHub")
	assert.Contains(t, out, "password: "+hiddenValue)
	assert.Contains(t, out, "username: octocat")
	assert.NotContains(t, out, "hunter2hunter2")

	out = mustRun(t, dir, "entry", "get", "GitHub", "--property", "password", "--show")
	assert.Equal(t, "hunter2hunter2\n", out)

	mustRun(t, dir, "entry", "set", "GitHub", "--field", "password=a-much-longer-password")
	out = mustRun(t, dir, "entry", "get", "github", "--history", "password", "--show")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "hunter2hunter2")
	assert.Contains(t, lines[1], "a-much-longer-password")

	var view entryView
	out = mustRun(t, dir, "entry", "get", "Stripe", "--json")
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, hiddenValue, view.Properties["api_key"])
	assert.Equal(t, "Work/APIs", view.Group)

	out = mustRun(t, dir, "entry", "tag", "GitHub", "Personal", "git")
	assert.Contains(t, out, "work, personal, git")
	out = mustRun(t, dir, "entry", "tag", "GitHub", "work", "--remove")
	assert.Contains(t, out, "personal, git")

	out = mustRun(t, dir, "entry", "delete", "GitHub")
	assert.Contains(t, out, "moved to trash")
	out = mustRun(t, dir, "entry", "list", "--trash")
	assert.Contains(t, out, "GitHub")
	_, err := runCLI(t, dir, "entry", "get", "Nothing")
	assert.Error(t, err)

	out = mustRun(t, dir, "entry", "delete", "GitHub", "--permanent")
	assert.Contains(t, out, "Entry 'GitHub' deleted")
	out = mustRun(t, dir, "optimise")
	assert.Contains(t, out, "Vault optimised")
}

func TestGroupMoveAndDelete(t *testing.T) {
	dir := setupCLI(t)
	mustRun(t, dir, "init")
	mustRun(t, dir, "group", "add", "Work")
	mustRun(t, dir, "group", "add", "APIs", "--parent", "Work")

	_, err := runCLI(t, dir, "group", "move", "Work", "Work/APIs")
	assert.ErrorContains(t, err, "own subtree")

	out := mustRun(t, dir, "group", "move", "Work/APIs", "/")
	assert.Contains(t, out, "-> APIs")

	out = mustRun(t, dir, "group", "delete", "APIs")
	assert.Contains(t, out, "Moved group to trash")
	out = mustRun(t, dir, "group", "list", "--json")
	var groups []groupListEntry
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	paths := make([]string, 0, len(groups))
	for _, g := range groups {
		paths = append(paths, g.Path)
	}
	assert.Contains(t, paths, "Trash/APIs")
}

func TestSearchCommands(t *testing.T) {
	dir := setupCLI(t)
	mustRun(t, dir, "init")
	mustRun(t, dir, "entry", "add", "GitHub", "--url", "https://github.com/login", "--tag", "dev")
	mustRun(t, dir, "entry", "add", "GitHub Enterprise", "--url", "https://git.corp.example/login")
	mustRun(t, dir, "entry", "add", "Bank", "--url", "https://bank.example")

	out := mustRun(t, dir, "search", "term", "github")
	assert.Regexp(t, `(?m)^1\. GitHub  `, out)
	assert.NotContains(t, out, "Bank")

	out = mustRun(t, dir, "search", "term", "#dev")
	assert.Contains(t, out, "1. GitHub")
	assert.NotContains(t, out, "Enterprise")

	out = mustRun(t, dir, "search", "url", "https://github.com/settings")
	assert.Contains(t, out, "1. GitHub")
	assert.NotContains(t, out, "Bank")

	out = mustRun(t, dir, "search", "record", "Bank", "https://bank.example/login")
	assert.Contains(t, out, "Recorded 'Bank' for bank.example")
}

func TestAttachmentCommands(t *testing.T) {
	dir := setupCLI(t)
	mustRun(t, dir, "init")
	mustRun(t, dir, "entry", "add", "Passport", "--type", string(vault.EntryTypeNote))

	file := filepath.Join(t.TempDir(), "scan.txt")
	require.NoError(t, os.WriteFile(file, []byte("passport number 123"), 0o600))

	out := mustRun(t, dir, "attachment", "add", "Passport", file)
	m := regexp.MustCompile(`\(([0-9a-f-]{36})\)`).FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id := m[1]

	out = mustRun(t, dir, "attachment", "list", "Passport")
	assert.Contains(t, out, id)
	assert.Contains(t, out, "scan.txt")
	assert.Contains(t, out, "text/plain")

	out = mustRun(t, dir, "attachment", "get", "Passport", id)
	assert.Equal(t, "passport number 123", out)

	target := filepath.Join(t.TempDir(), "out.txt")
	mustRun(t, dir, "attachment", "get", "Passport", id, "--output", target)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "passport number 123", string(data))

	mustRun(t, dir, "attachment", "remove", "Passport", id)
	out = mustRun(t, dir, "attachment", "list", "Passport")
	assert.Contains(t, out, "No attachments")
}

func TestAttachmentQuota(t *testing.T) {
	dir := setupCLI(t)
	t.Setenv("VAULTSYNC_ATTACHMENT_QUOTA", "64")
	mustRun(t, dir, "init")
	mustRun(t, dir, "entry", "add", "Docs")

	file := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(file, bytes.Repeat([]byte{1}, 100), 0o600))
	_, err := runCLI(t, dir, "attachment", "add", "Docs", file)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestMergeCommand(t *testing.T) {
	local := setupCLI(t)
	t.Setenv("VAULTSYNC_STORAGE_DRIVER", "bolt")
	t.Setenv("VAULTSYNC_STORAGE_PATH", "vault.bolt")
	mustRun(t, local, "init")
	mustRun(t, local, "entry", "add", "Shared")

	remote := t.TempDir()
	content, err := os.ReadFile(filepath.Join(local, "vault.bolt"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(remote, "vault.bolt"), content, 0o600))

	mustRun(t, local, "entry", "add", "Local")
	mustRun(t, remote, "entry", "add", "Remote")

	out := mustRun(t, local, "merge", filepath.Join(remote, "vault.bolt"))
	assert.Contains(t, out, "2 entries before, 3 after")
	out = mustRun(t, local, "entry", "list")
	for _, title := range []string{"Shared", "Local", "Remote"} {
		assert.Contains(t, out, title)
	}

	_, err = runCLI(t, local, "merge", filepath.Join(local, "vault.bolt"))
	assert.ErrorContains(t, err, "itself")

	unrelated := t.TempDir()
	mustRun(t, unrelated, "init")
	_, err = runCLI(t, local, "merge", filepath.Join(unrelated, "vault.bolt"))
	assert.Error(t, err)
}

func TestSecurityCommand(t *testing.T) {
	dir := setupCLI(t)
	mustRun(t, dir, "init")
	mustRun(t, dir, "entry", "add", "A", "--field", "password=short")
	mustRun(t, dir, "entry", "add", "B", "--field", "password=short")
	mustRun(t, dir, "entry", "add", "C", "--generate")

	out := mustRun(t, dir, "security", "--json")
	var report security.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Less(t, report.Overall, 100)

	types := make(map[security.IssueType]int)
	for _, issue := range report.Issues {
		types[issue.Type]++
	}
	assert.Equal(t, 2, types[security.IssueWeakPassword])
	assert.Equal(t, 1, types[security.IssueDuplicatePassword])

	out = mustRun(t, dir, "security", "duplicates")
	assert.Contains(t, out, "2 properties share the same value")
	out = mustRun(t, dir, "security", "weak")
	assert.Contains(t, out, "Weak Passwords (2 found)")
}

func TestKeyringCommands(t *testing.T) {
	dir := setupCLI(t)
	mustRun(t, dir, "init")

	out := mustRun(t, dir, "keyring", "status")
	assert.Contains(t, out, "No password stored")
	mustRun(t, dir, "keyring", "remember")
	out = mustRun(t, dir, "keyring", "status")
	assert.Contains(t, out, "stored in keyring")

	require.NoError(t, os.Unsetenv(passwordEnv))
	out = mustRun(t, dir, "entry", "list")
	assert.Contains(t, out, "No entries found")

	mustRun(t, dir, "keyring", "forget")
	out = mustRun(t, dir, "keyring", "forget")
	assert.Contains(t, out, "No password stored")
}

func TestCredentialsExportImport(t *testing.T) {
	dir := setupCLI(t)
	mustRun(t, dir, "init")

	secure := strings.TrimSpace(mustRun(t, dir, "credentials", "export"))
	assert.True(t, strings.HasPrefix(secure, credentials.SecureStringPrefix))

	out := mustRun(t, dir, "credentials", "import", secure)
	assert.Contains(t, out, "type: sqlite")
	assert.Contains(t, out, "path: "+filepath.Join(dir, "vault.db"))

	t.Setenv(passwordEnv, "wrong password")
	_, err := runCLI(t, dir, "credentials", "import", secure)
	assert.Error(t, err)
}

func TestGenerateCommand(t *testing.T) {
	dir := setupCLI(t)
	out := mustRun(t, dir, "generate", "-n", "3", "-l", "12", "--no-symbols")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Len(t, l, 12)
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"a=1", " b =x=y", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "empty": ""}, got)

	_, err = parseAssignments([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=value"})
	assert.Error(t, err)
}

func TestResolveGroup(t *testing.T) {
	v := vault.NewWithDefaults()
	work, err := v.CreateGroup(vault.RootID)
	require.NoError(t, err)
	require.NoError(t, v.SetGroupTitle(work.ID(), "Work"))
	apis, err := v.CreateGroup(work.ID())
	require.NoError(t, err)
	require.NoError(t, v.SetGroupTitle(apis.ID(), "APIs"))

	g, err := resolveGroup(v, "work/apis")
	require.NoError(t, err)
	assert.Equal(t, apis.ID(), g.ID())

	g, err = resolveGroup(v, apis.ID())
	require.NoError(t, err)
	assert.Equal(t, "Work/APIs", groupPath(v, g.ID()))

	_, err = resolveGroup(v, "Work/Missing")
	assert.Error(t, err)
}

func TestImportCommand(t *testing.T) {
	dir := setupCLI(t)
	mustRun(t, dir, "init")

	export := filepath.Join(t.TempDir(), "lastpass.csv")
	require.NoError(t, os.WriteFile(export, []byte(
		"url,username,password,totp,extra,name,grouping,fav\n"+
			"https://github.com,octocat,pw1234567890,,,GitHub,Work\\Dev,0\n"+
			"http://sn,,,,door code 1234,Home,,0\n"), 0o600))

	out := mustRun(t, dir, "import", "--from", "lastpass", export, "--dry-run")
	assert.Contains(t, out, "Would import 2 entries")
	assert.Contains(t, out, "GitHub  (Work/Dev)")
	out = mustRun(t, dir, "entry", "list")
	assert.Contains(t, out, "No entries found")

	out = mustRun(t, dir, "import", "--from", "lastpass", export, "--tag", "Legacy")
	assert.Contains(t, out, "Imported 2 entries into Imported from lastpass (2 new groups)")

	out = mustRun(t, dir, "entry", "list", "--tag", "legacy")
	assert.Contains(t, out, "GitHub <octocat>  (Imported from lastpass/Work/Dev)")
	assert.Contains(t, out, "Home  (Imported from lastpass)")

	_, err := runCLI(t, dir, "import", "--from", "keepass", export)
	assert.ErrorContains(t, err, "invalid --from value")
}
