package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseCommandCandidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		text          string
		wantMatched   bool
		wantErrSubstr string
		wantPrefix    CommandPrefix
		wantName      string
		wantMention   string
		wantTokens    []string
	}{
		{
			name:        "ordinary command with mention and value tokens",
			text:        " /WordCount@NanoBot jane doe ",
			wantMatched: true,
			wantPrefix:  CommandPrefixOrdinary,
			wantName:    "wordcount",
			wantMention: "NanoBot",
			wantTokens:  []string{"jane", "doe"},
		},
		{
			name:        "system command candidate",
			text:        "~identities --json",
			wantMatched: true,
			wantPrefix:  CommandPrefixSystem,
			wantName:    "identities",
			wantTokens:  []string{"--json"},
		},
		{
			name:        "non command text",
			text:        "hello",
			wantMatched: false,
		},
		{
			name:        "empty text",
			text:        "   ",
			wantMatched: false,
		},
		{
			name:          "missing command name",
			text:          "/",
			wantMatched:   true,
			wantErrSubstr: "missing command name",
		},
		{
			name:          "unsupported long option equals format",
			text:          "/wordgoal --goal=1",
			wantMatched:   true,
			wantErrSubstr: "unsupported option format",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			candidate, matched, err := ParseCommandCandidate(testCase.text)
			if matched != testCase.wantMatched {
				t.Fatalf("matched = %v, want %v", matched, testCase.wantMatched)
			}
			if testCase.wantErrSubstr != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.wantErrSubstr) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !matched {
				return
			}

			if candidate.Prefix != testCase.wantPrefix {
				t.Fatalf("prefix = %q, want %q", candidate.Prefix, testCase.wantPrefix)
			}
			if candidate.Name != testCase.wantName {
				t.Fatalf("name = %q, want %q", candidate.Name, testCase.wantName)
			}
			if candidate.Mention != testCase.wantMention {
				t.Fatalf("mention = %q, want %q", candidate.Mention, testCase.wantMention)
			}
			if diff := cmp.Diff(testCase.wantTokens, candidate.Tokens); diff != "" {
				t.Fatalf("tokens mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBindCommand(t *testing.T) {
	t.Parallel()

	spec := CommandSpec{
		Prefix: CommandPrefixSystem,
		Name:   "identities",
		Options: []CommandOptionSpec{
			{Name: "limit", Alias: "l", HasValue: true, Required: true},
			{Name: "json", Alias: "j"},
		},
	}
	sourceEvent := &Event{
		ID:           "evt-source",
		Kind:         EventKindMessageCreated,
		OccurredAt:   time.Unix(10, 0).UTC(),
		Platform:     PlatformTelegram,
		Conversation: Conversation{ID: "chat-1", Type: ConversationTypeGroup},
		Message:      &Message{ID: "msg-1", Text: "~identities"},
	}

	tests := []struct {
		name          string
		text          string
		wantErrSubstr string
		wantValue     string
		wantOptions   []CommandOption
	}{
		{
			name:      "long and short options with tail value",
			text:      "~identities --limit 5 -j room",
			wantValue: "room",
			wantOptions: []CommandOption{
				{Name: "limit", Alias: "l", Value: "5", HasValue: true},
				{Name: "json", Alias: "j"},
			},
		},
		{
			name:          "missing required option",
			text:          "~identities -j",
			wantErrSubstr: "missing required option --limit|-l <value>",
		},
		{
			name:          "unknown option",
			text:          "~identities --limit 1 --verbose",
			wantErrSubstr: "unknown option --verbose",
		},
		{
			name:          "option value looks like option",
			text:          "~identities --limit -j",
			wantErrSubstr: "requires a value",
		},
		{
			name:          "option value missing at end",
			text:          "~identities -l",
			wantErrSubstr: "requires a value",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			candidate, matched, err := ParseCommandCandidate(testCase.text)
			if !matched || err != nil {
				t.Fatalf("parse = (%v, %v), want matched without error", matched, err)
			}

			invocation, err := BindCommand(candidate, spec, sourceEvent)
			if testCase.wantErrSubstr != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.wantErrSubstr) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("BindCommand failed: %v", err)
			}
			if invocation.Value != testCase.wantValue {
				t.Fatalf("value = %q, want %q", invocation.Value, testCase.wantValue)
			}
			if diff := cmp.Diff(testCase.wantOptions, invocation.Options); diff != "" {
				t.Fatalf("options mismatch (-want +got):\n%s", diff)
			}
			if invocation.SourceEventID != sourceEvent.ID {
				t.Fatalf("source event id = %q, want %q", invocation.SourceEventID, sourceEvent.ID)
			}
			if option, ok := invocation.Option("l"); !ok || option.Value != "5" {
				t.Fatalf("Option(l) = (%+v, %v), want value 5", option, ok)
			}
		})
	}
}

func TestBindCommandRejectsPrefixMismatch(t *testing.T) {
	t.Parallel()

	candidate, _, _ := ParseCommandCandidate("/identities")
	_, err := BindCommand(candidate, CommandSpec{Prefix: CommandPrefixSystem, Name: "identities"}, &Event{ID: "e", Kind: EventKindMessageCreated})
	if err == nil || !strings.Contains(err.Error(), "prefix mismatch") {
		t.Fatalf("error = %v, want prefix mismatch", err)
	}
}

func TestCommandSpecValidateRejectsDuplicateOptions(t *testing.T) {
	t.Parallel()

	spec := CommandSpec{
		Prefix: CommandPrefixOrdinary,
		Name:   "wordgoal",
		Options: []CommandOptionSpec{
			{Name: "goal", Alias: "g"},
			{Name: "grace", Alias: "g"},
		},
	}
	if err := spec.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate option") {
		t.Fatalf("Validate() = %v, want duplicate option error", err)
	}
}

func TestCommandSpecUsage(t *testing.T) {
	t.Parallel()

	spec := CommandSpec{
		Prefix:    CommandPrefixOrdinary,
		Name:      "WordCount",
		Arguments: "[username]",
		Options:   []CommandOptionSpec{{Name: "today", Alias: "t"}},
	}
	if got, want := spec.Usage(), "/wordcount [username] [--today|-t]"; got != want {
		t.Fatalf("Usage() = %q, want %q", got, want)
	}
}
