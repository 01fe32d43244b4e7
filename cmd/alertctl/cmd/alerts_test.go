package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/good-yellow-bee/alertcast/internal/models"
)

// execute runs alertctl with args against dir and returns stdout.
func execute(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--data-dir", dir}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestCreateAndList(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "", "create", "donation", "--name", "Donation", "--text", "Thanks $who")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if strings.TrimSpace(out) != "donation" {
		t.Errorf("create printed %q, want the id", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "donation")); err != nil {
		t.Errorf("alert file not written: %v", err)
	}

	out, err = execute(t, dir, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "donation") || !strings.Contains(out, "Total: 1 alert(s)") {
		t.Errorf("unexpected list output:\n%s", out)
	}

	out, err = execute(t, dir, "", "list", "-o", "json")
	if err != nil {
		t.Fatalf("list json: %v", err)
	}
	var list []models.Alert
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(list) != 1 || list[0].LastText != "Thanks $who" {
		t.Errorf("list = %+v", list)
	}

	if _, err := execute(t, dir, "", "create", "donation", "--name", "Again"); err == nil {
		t.Error("expected duplicate create to fail")
	}
}

func TestFieldsAndRender(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, dir, "", "create", "d", "--name", "D", "--text", "**$who** gave $amt"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := execute(t, dir, "", "add-field", "d", "who", "text", "viewer1"); err != nil {
		t.Fatalf("add who: %v", err)
	}
	if _, err := execute(t, dir, "", "add-field", "d", "amt", "counter", "100"); err != nil {
		t.Fatalf("add amt: %v", err)
	}
	if _, err := execute(t, dir, "", "add-field", "d", "bad", "counter", "lots"); err == nil {
		t.Error("expected non-integer counter to be rejected")
	}

	if _, err := execute(t, dir, "", "set-field", "d", "amt", "--incr", "50"); err != nil {
		t.Fatalf("incr: %v", err)
	}
	if _, err := execute(t, dir, "", "set-field", "d", "who", "--set", "viewer2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := execute(t, dir, "", "set-field", "d", "amt"); err == nil {
		t.Error("expected set-field without --set or --incr to fail")
	}

	out, err := execute(t, dir, "", "render", "d", "--part", "text")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.TrimSpace(out) != "**viewer2** gave 150" {
		t.Errorf("render text = %q", out)
	}

	out, err = execute(t, dir, "", "render", "d")
	if err != nil {
		t.Fatalf("render html: %v", err)
	}
	if !strings.Contains(out, "<strong>viewer2</strong>") {
		t.Errorf("render html = %q", out)
	}
}

func TestSetTextFromStdin(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, dir, "", "create", "a1", "--name", "A"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := execute(t, dir, "# Hello\n", "set-text", "a1", "@-"); err != nil {
		t.Fatalf("set-text: %v", err)
	}

	out, err := execute(t, dir, "", "show", "a1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "Text:  # Hello") {
		t.Errorf("show output:\n%s", out)
	}

	if _, err := execute(t, dir, "", "set-text", "missing", "x"); err == nil {
		t.Error("expected unknown alert to fail")
	}
}

func TestHashPassword(t *testing.T) {
	const password = "overlay-pass-42"
	out, err := execute(t, t.TempDir(), password+"\n"+password+"\n", "hash-password")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		t.Errorf("printed hash does not match password: %v", err)
	}

	if _, err := execute(t, t.TempDir(), "short\nshort\n", "hash-password"); err == nil {
		t.Error("expected weak password to be rejected")
	}
	if _, err := execute(t, t.TempDir(), password+"\nother-pass-42\n", "hash-password"); err == nil {
		t.Error("expected mismatch to be rejected")
	}

	out, err = execute(t, t.TempDir(), password+"\n"+password+"\n", "hash-password", "--username", "operator")
	if err != nil {
		t.Fatalf("hash-password --username: %v", err)
	}
	if !strings.HasPrefix(out, "- username: operator\n  password_hash: ") {
		t.Errorf("unexpected entry:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, t.TempDir(), "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "alertcast ") {
		t.Errorf("version = %q", out)
	}
}
