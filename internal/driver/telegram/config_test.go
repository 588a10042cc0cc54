package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		raw         string
		environment map[string]string
		want        Config
		wantErr     string
	}{
		{
			name: "defaults",
			raw:  `{"app_id": 12345, "app_hash": " hash "}`,
			want: Config{
				AppID:          12345,
				AppHash:        "hash",
				SessionFile:    defaultSessionFile,
				UpdateBuffer:   defaultQueueSize,
				PublishTimeout: Duration(defaultPublishTimeout),
				AuthTimeout:    Duration(defaultAuthTimeout),
			},
		},
		{
			name: "explicit values",
			raw: `{
				"app_id": 1, "app_hash": "h", "phone": "+100", "session_file": "/tmp/s.json",
				"update_buffer": 8, "publish_timeout": "5s", "auth_timeout": "1m"
			}`,
			want: Config{
				AppID:          1,
				AppHash:        "h",
				Phone:          "+100",
				SessionFile:    "/tmp/s.json",
				UpdateBuffer:   8,
				PublishTimeout: Duration(5 * time.Second),
				AuthTimeout:    Duration(time.Minute),
			},
		},
		{
			name: "environment overrides credentials",
			raw:  `{"app_id": 1, "app_hash": "file-hash", "phone": "+100"}`,
			environment: map[string]string{
				"NANOBOT_TG_MAIN_APP_ID":   "777",
				"NANOBOT_TG_MAIN_APP_HASH": "env-hash",
				"NANOBOT_TG_MAIN_PASSWORD": "secret",
				"NANOBOT_OTHER_PHONE":      "+999",
			},
			want: Config{
				AppID:          777,
				AppHash:        "env-hash",
				Phone:          "+100",
				Password:       "secret",
				SessionFile:    defaultSessionFile,
				UpdateBuffer:   defaultQueueSize,
				PublishTimeout: Duration(defaultPublishTimeout),
				AuthTimeout:    Duration(defaultAuthTimeout),
			},
		},
		{
			name:        "credentials only from environment",
			raw:         `{}`,
			environment: map[string]string{"NANOBOT_TG_MAIN_APP_ID": "5", "NANOBOT_TG_MAIN_APP_HASH": "h"},
			want: Config{
				AppID:          5,
				AppHash:        "h",
				SessionFile:    defaultSessionFile,
				UpdateBuffer:   defaultQueueSize,
				PublishTimeout: Duration(defaultPublishTimeout),
				AuthTimeout:    Duration(defaultAuthTimeout),
			},
		},
		{name: "missing config", wantErr: "missing config"},
		{name: "invalid json", raw: `{`, wantErr: "parse telegram config"},
		{name: "missing app id", raw: `{"app_hash": "h"}`, wantErr: "app_id must be > 0"},
		{name: "missing app hash", raw: `{"app_id": 1}`, wantErr: "app_hash is required"},
		{name: "numeric duration", raw: `{"app_id": 1, "app_hash": "h", "publish_timeout": 5}`, wantErr: "duration must be a string"},
		{name: "bad duration", raw: `{"app_id": 1, "app_hash": "h", "auth_timeout": "soon"}`, wantErr: "parse duration"},
		{name: "negative duration", raw: `{"app_id": 1, "app_hash": "h", "auth_timeout": "-1s"}`, wantErr: "must be > 0"},
		{
			name:        "bad env value",
			raw:         `{"app_id": 1, "app_hash": "h"}`,
			environment: map[string]string{"NANOBOT_TG_MAIN_APP_ID": "many"},
			wantErr:     "parse telegram config env",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			environment := testCase.environment
			if environment == nil {
				environment = map[string]string{}
			}
			got, err := ParseConfig("tg-main", []byte(testCase.raw), environment)
			if testCase.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.wantErr) {
					t.Fatalf("ParseConfig() error = %v, want containing %q", err, testCase.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseConfig() error = %v", err)
			}
			if diff := cmp.Diff(testCase.want, got); diff != "" {
				t.Fatalf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnvPrefix(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"tg-main":  "NANOBOT_TG_MAIN_",
		"tg.2":     "NANOBOT_TG_2_",
		"Personal": "NANOBOT_PERSONAL_",
	}
	for name, want := range tests {
		if got := envPrefix(name); got != want {
			t.Fatalf("envPrefix(%q) = %q, want %q", name, got, want)
		}
	}
}
