package tui

import (
	"testing"

	catppuccin "github.com/catppuccin/go"

	"dmnexplorer/internal/output"
)

func TestStyles_AllFlavors(t *testing.T) {
	flavors := []string{"latte", "frappe", "macchiato", "mocha"}

	for _, flavor := range flavors {
		t.Run(flavor, func(t *testing.T) {
			styles := NewStyles(flavor)
			if got := styles.TitleStyle().Render("DMN Explorer"); got == "" {
				t.Error("TitleStyle rendered empty string")
			}
			if !styles.ErrorStyle().GetBold() {
				t.Error("ErrorStyle should be bold")
			}
		})
	}
}

func TestFlavorFromName(t *testing.T) {
	tests := []struct {
		name string
		want catppuccin.Flavor
	}{
		{"latte", catppuccin.Latte},
		{"frappe", catppuccin.Frappe},
		{"macchiato", catppuccin.Macchiato},
		{"mocha", catppuccin.Mocha},
		{"unknown", catppuccin.Mocha},
		{"", catppuccin.Mocha},
	}
	for _, tt := range tests {
		if got := flavorFromName(tt.name); got.Text().Hex != tt.want.Text().Hex || got.Mauve().Hex != tt.want.Mauve().Hex {
			t.Errorf("flavorFromName(%q) picked the wrong flavor", tt.name)
		}
	}
}

func TestSurfaceStateStyle(t *testing.T) {
	styles := NewStyles("mocha")

	complete := styles.SurfaceStateStyle(output.StateComplete).GetForeground()
	if complete != styles.SuccessStyle().GetForeground() {
		t.Error("complete state should use the success color")
	}
	errored := styles.SurfaceStateStyle(output.StateErrored).GetForeground()
	if errored == complete {
		t.Error("errored and complete states should differ")
	}
	idle := styles.SurfaceStateStyle(output.StateIdle).GetForeground()
	if idle != styles.HelpStyle().GetForeground() {
		t.Error("idle state should use the help color")
	}
}
