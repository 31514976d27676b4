package cmd

import (
	"encoding/json"
	"strings"
	"testing"
)

func readPrefs(t *testing.T, storage string) prefsView {
	t.Helper()
	out, _, err := runCLI(t, storage, "prefs", "show", "--format", "json")
	if err != nil {
		t.Fatalf("prefs show error = %v", err)
	}
	var view prefsView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("prefs show output is not JSON: %v\n%s", err, out)
	}
	return view
}

func TestPrefsCommand_Defaults(t *testing.T) {
	storage := testEnv(t)
	view := readPrefs(t, storage)

	if len(view.Order) != 0 || len(view.Hidden) != 0 {
		t.Errorf("view = %+v, want empty order and hidden", view)
	}
	if view.HideInactive {
		t.Error("HideInactive should default to false")
	}
	if view.Threshold != "24h0m0s" {
		t.Errorf("Threshold = %q, want 24h0m0s", view.Threshold)
	}
}

func TestPrefsCommand_OrderResolvesAliases(t *testing.T) {
	storage := testEnv(t)
	if _, _, err := runCLI(t, storage, "prefs", "order", "cto", "main", "exec", "orion"); err != nil {
		t.Fatalf("prefs order error = %v", err)
	}

	view := readPrefs(t, storage)
	if got := strings.Join(view.Order, ","); got != "orion,main,elon" {
		t.Errorf("Order = %q, want orion,main,elon", got)
	}

	if _, _, err := runCLI(t, storage, "prefs", "order"); err != nil {
		t.Fatalf("prefs order (clear) error = %v", err)
	}
	if view := readPrefs(t, storage); len(view.Order) != 0 {
		t.Errorf("Order = %v after clearing", view.Order)
	}
}

func TestPrefsCommand_HideUnhide(t *testing.T) {
	storage := testEnv(t)
	if _, _, err := runCLI(t, storage, "prefs", "hide", "coo", "nova"); err != nil {
		t.Fatalf("prefs hide error = %v", err)
	}
	if got := strings.Join(readPrefs(t, storage).Hidden, ","); got != "atlas,nova" {
		t.Errorf("Hidden = %q, want atlas,nova", got)
	}

	if _, _, err := runCLI(t, storage, "prefs", "unhide", "atlas"); err != nil {
		t.Fatalf("prefs unhide error = %v", err)
	}
	if got := strings.Join(readPrefs(t, storage).Hidden, ","); got != "nova" {
		t.Errorf("Hidden = %q, want nova", got)
	}

	if _, _, err := runCLI(t, storage, "prefs", "hide"); err == nil {
		t.Error("prefs hide without agents should fail")
	}
}

func TestPrefsCommand_Inactive(t *testing.T) {
	storage := testEnv(t)
	if _, _, err := runCLI(t, storage, "prefs", "inactive", "--on", "--threshold", "48h"); err != nil {
		t.Fatalf("prefs inactive error = %v", err)
	}
	view := readPrefs(t, storage)
	if !view.HideInactive || view.Threshold != "48h0m0s" {
		t.Errorf("view = %+v, want hide inactive after 48h", view)
	}

	// threshold survives toggling off
	if _, _, err := runCLI(t, storage, "prefs", "inactive", "--off"); err != nil {
		t.Fatalf("prefs inactive --off error = %v", err)
	}
	view = readPrefs(t, storage)
	if view.HideInactive || view.Threshold != "48h0m0s" {
		t.Errorf("view = %+v, want off with 48h kept", view)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"on and off", []string{"prefs", "inactive", "--on", "--off"}},
		{"zero threshold", []string{"prefs", "inactive", "--threshold", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := runCLI(t, storage, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestRenderPrefs(t *testing.T) {
	view := prefsView{Order: []string{"nova"}, HideInactive: true, Threshold: "1h0m0s"}

	var b strings.Builder
	if err := renderPrefs(&b, "table", view); err != nil {
		t.Fatalf("renderPrefs() error = %v", err)
	}
	out := b.String()
	for _, want := range []string{"nova", "(none)", "on (after 1h0m0s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if err := renderPrefs(&b, "xml", view); err == nil {
		t.Error("renderPrefs() should reject unknown formats")
	}
}
