package kernel

import (
	"errors"
	"strings"
	"testing"

	"nanobot/pkg/bot"

	"github.com/google/go-cmp/cmp"
)

func TestServiceRegistryRegister(t *testing.T) {
	t.Parallel()

	var nilIndex *struct{}
	var nilFunc func()
	tests := []struct {
		name    string
		service string
		value   any
		wantErr string
		wantIs  error
	}{
		{name: "value", service: "wordcount.pipeline", value: "pipeline"},
		{name: "empty name", value: "pipeline", wantErr: "empty name"},
		{name: "untyped nil", service: "svc", wantErr: "nil value"},
		{name: "typed nil pointer", service: "svc", value: nilIndex, wantErr: "nil value"},
		{name: "typed nil func", service: "svc", value: nilFunc, wantErr: "nil value"},
		{name: "taken", service: "bot.command_catalog", value: "again", wantIs: bot.ErrServiceAlreadyRegistered},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry := NewServiceRegistry()
			if err := registry.Register("bot.command_catalog", "catalog"); err != nil {
				t.Fatalf("seed Register() error = %v", err)
			}

			err := registry.Register(testCase.service, testCase.value)
			switch {
			case testCase.wantIs != nil:
				if !errors.Is(err, testCase.wantIs) {
					t.Fatalf("Register() error = %v, want %v", err, testCase.wantIs)
				}
			case testCase.wantErr != "":
				if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
					t.Fatalf("Register() error = %v, want containing %q", err, testCase.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("Register() error = %v", err)
				}
				got, err := registry.Resolve(testCase.service)
				if err != nil || got != testCase.value {
					t.Fatalf("Resolve() = (%v, %v), want %v", got, err, testCase.value)
				}
			}
		})
	}
}

func TestServiceRegistryResolveMissing(t *testing.T) {
	t.Parallel()

	_, err := NewServiceRegistry().Resolve("identity.index")
	if !errors.Is(err, bot.ErrServiceNotFound) {
		t.Fatalf("Resolve() error = %v, want %v", err, bot.ErrServiceNotFound)
	}
	if !strings.Contains(err.Error(), `"identity.index"`) {
		t.Fatalf("Resolve() error = %v, want the service name", err)
	}
}

func TestServiceRegistryNames(t *testing.T) {
	t.Parallel()

	registry := NewServiceRegistry()
	for _, name := range []string{"logger", "bot.sink_dispatcher", "identity.index"} {
		if err := registry.Register(name, name); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	want := []string{"bot.sink_dispatcher", "identity.index", "logger"}
	if diff := cmp.Diff(want, registry.Names()); diff != "" {
		t.Fatalf("Names() mismatch (-want +got):\n%s", diff)
	}
}
