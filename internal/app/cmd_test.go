package app

import (
	"errors"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{name: "引数なしはserve", args: []string{}, want: CommandServe},
		{name: "nilはserve", args: nil, want: CommandServe},
		{name: "serve", args: []string{"serve"}, want: CommandServe},
		{name: "worker", args: []string{"worker"}, want: CommandWorker},
		{name: "migrate", args: []string{"migrate"}, want: CommandMigrate},
		{name: "healthcheck", args: []string{"healthcheck"}, want: CommandHealthcheck},
		{name: "後続の引数は無視する", args: []string{"worker", "--flag", "value"}, want: CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("ParseCommand(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_Unknown(t *testing.T) {
	for _, arg := range []string{"migarte", "SERVE", "--help"} {
		t.Run(arg, func(t *testing.T) {
			_, err := ParseCommand([]string{arg})
			if !errors.Is(err, ErrUnknownCommand) {
				t.Fatalf("ParseCommand([%s]) error = %v, want ErrUnknownCommand", arg, err)
			}
			if !strings.Contains(err.Error(), "serve, worker, migrate, healthcheck") {
				t.Errorf("error should list available commands: %v", err)
			}
		})
	}
}

func TestRun_UnknownCommandDoesNotStart(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	err := Run(nil, []string{"migarte"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Run(migarte) error = %v, want ErrUnknownCommand", err)
	}
}
