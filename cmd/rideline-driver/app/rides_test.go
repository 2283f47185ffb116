package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rideline-io/rideline/internal/driveragent/api"
)

func TestPrintRides(t *testing.T) {
	var buf bytes.Buffer
	printRides(&buf, []api.Ride{
		{ID: "R1", Status: "completed", PickupAddress: "Main St", DropoffAddress: "Airport", Fare: 12.5, CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "R2", Status: "cancelled"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	for _, want := range []string{"ID", "STATUS", "FARE"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("header %q lacks %s", lines[0], want)
		}
	}
	if !strings.Contains(lines[1], "R1") || !strings.Contains(lines[1], "12.50") || !strings.Contains(lines[1], "Airport") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "R2") || !strings.Contains(lines[2], "0.00") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestCommandTree(t *testing.T) {
	root := NewApp().Command()
	for _, name := range []string{"rides", "start-ride", "complete-ride"} {
		c, _, err := root.Find([]string{name})
		if err != nil || c.Name() != name {
			t.Errorf("subcommand %s missing: %v", name, err)
		}
	}
	for _, flag := range []string{"socket.url", "reconnect.max-attempts", "feature-gates", "config", "log.level"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("flag --%s not registered", flag)
		}
	}
}
