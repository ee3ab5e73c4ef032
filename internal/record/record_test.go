package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("Pending")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st)

	st, err = ParseStatus("")
	require.NoError(t, err)
	assert.Equal(t, Status(""), st)

	_, err = ParseStatus("failed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestPromptValidate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		prompt  Prompt
		wantErr string
	}{
		{
			name:   "pending ok",
			prompt: Prompt{ID: 1, Text: "a fox", Status: StatusPending, CreatedAt: now},
		},
		{
			name:   "completed ok",
			prompt: Prompt{ID: 2, Text: "a fox", Status: StatusCompleted, CreatedAt: now, CompletedAt: &now},
		},
		{
			name:    "pending with completed_at",
			prompt:  Prompt{ID: 3, Text: "a fox", Status: StatusPending, CreatedAt: now, CompletedAt: &now},
			wantErr: "pending with completed_at",
		},
		{
			name:    "completed without completed_at",
			prompt:  Prompt{ID: 4, Text: "a fox", Status: StatusCompleted, CreatedAt: now},
			wantErr: "completed without completed_at",
		},
		{
			name:    "zero id",
			prompt:  Prompt{Text: "a fox", Status: StatusPending},
			wantErr: "must be positive",
		},
		{
			name:    "unknown status",
			prompt:  Prompt{ID: 5, Text: "a fox", Status: "queued"},
			wantErr: "unknown status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prompt.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalizeText(t *testing.T) {
	// "e" + combining acute accent composes to U+00E9 under NFC.
	assert.Equal(t, "caf\u00e9 at dusk", NormalizeText("  cafe\u0301 at dusk\n"))
	assert.Equal(t, "", NormalizeText(" \t\n"))
}

func TestTimestampRoundTrip(t *testing.T) {
	in := time.Date(2025, 6, 1, 12, 30, 45, 123000000, time.FixedZone("BRT", -3*3600))
	s := Timestamp(in)
	assert.Equal(t, "2025-06-01T15:30:45.123Z", s)

	out, err := ParseTimestamp(s)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
}
