package console_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/notorious-go/hwop/console"
	"github.com/notorious-go/hwop/gate"
)

func TestScript(t *testing.T) {
	const script = `
# A blit completes before it is waited for.
start blit
state
complete 1 "42 pixels"
state
wait
state

# A blend that times out stays pending until reset.
start blend 5ms
wait
start blend
reset
complete 2 late
state

# Failures are reported by wait.
start clut-load
fail 3 bus fault
wait

# Notifications from another goroutine.
start mode-transition 1s
after 1ms complete 4 off
wait
bogus
quit
state
`
	var out bytes.Buffer
	sh := console.New(&out)
	if err := sh.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"started blit #1",
		"pending blit #1",
		"notified #1",
		"completed blit #1",
		"completed blit #1: 42 pixels",
		"idle",
		"started blend #2",
		"error: gate: operation timed out: blend operation #2",
		"error: gate: operation already pending: blend operation #2",
		"idle",
		"notified #2",
		"idle",
		"started clut-load #3",
		"notified #3",
		"error: gate: clut-load operation #3 failed: bus fault",
		"started mode-transition #4",
		"scheduled complete #4 in 1ms",
		"completed mode-transition #4: off",
		`error: console: usage: unknown command "bogus", try help`,
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("output has %d lines; want %d:\n%s", len(got), len(want), out.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q; want %q", i+1, got[i], want[i])
		}
	}
	if s := sh.Gate().State(); s != gate.Idle {
		t.Errorf("gate left %v", s)
	}
}

func TestExec(t *testing.T) {
	sh := console.New(new(bytes.Buffer))
	if err := sh.Exec("   "); err != nil {
		t.Errorf("Exec of a blank line = %v", err)
	}
	if err := sh.Exec("quit"); !errors.Is(err, console.ErrQuit) {
		t.Errorf("Exec(quit) = %v; want ErrQuit", err)
	}

	for _, line := range []string{
		"start",
		"complete x done",
		"after soon complete 1 x",
		"after 1ms shout 1 x",
		"wait 1ms 2ms",
	} {
		if err := sh.Exec(line); !errors.Is(err, console.ErrUsage) {
			t.Errorf("Exec(%q) = %v; want ErrUsage", line, err)
		}
	}

	for _, line := range []string{
		"start teleport",
		`complete 1 "unterminated`,
	} {
		if err := sh.Exec(line); err == nil {
			t.Errorf("Exec(%q) succeeded; want an error", line)
		}
	}
}
