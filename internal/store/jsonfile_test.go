package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promptmill/internal/testutil"
)

func TestJSONFile_DocumentGolden(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prompts.json")

	s, err := OpenJSON(path, WithClock(testutil.NewDeterministicClock()))
	require.NoError(t, err)

	_, err = s.Add(ctx, "a lighthouse in fog") // 00:00:00
	require.NoError(t, err)
	_, err = s.Add(ctx, "a red fox <in> the snow & ice") // 00:00:01
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, 1)) // 00:00:02

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "prompts_document", data)
}

func TestOpenJSON_MissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")

	s, err := OpenJSON(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "opening must not create the file")
}

func TestOpenJSON_RejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 1, "prompts": [`), 0o644))

	_, err := OpenJSON(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open json store")
}

func TestOpenJSON_RejectsBrokenInvariant(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name: "completed without timestamp",
			doc: `{"version": 1, "prompts": [
				{"prompt_id": 1, "prompt_text": "x", "status": "completed", "created_at": "2025-01-01T00:00:00Z", "completed_at": null}
			]}`,
			wantErr: "completed without completed_at",
		},
		{
			name: "duplicate id",
			doc: `{"version": 1, "prompts": [
				{"prompt_id": 1, "prompt_text": "x", "status": "pending", "created_at": "2025-01-01T00:00:00Z", "completed_at": null},
				{"prompt_id": 1, "prompt_text": "y", "status": "pending", "created_at": "2025-01-01T00:00:00Z", "completed_at": null}
			]}`,
			wantErr: "duplicate prompt_id 1",
		},
		{
			name: "bad timestamp",
			doc: `{"version": 1, "prompts": [
				{"prompt_id": 1, "prompt_text": "x", "status": "pending", "created_at": "yesterday", "completed_at": null}
			]}`,
			wantErr: "parse timestamp",
		},
		{
			name:    "future version",
			doc:     `{"version": 9, "prompts": []}`,
			wantErr: "newer than supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prompts.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))

			_, err := OpenJSON(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOpenJSON_ReadsDocumentWithoutVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	doc := `{"prompts": [
		{"prompt_id": 7, "prompt_text": "kept", "status": "pending", "created_at": "2025-01-01T00:00:00Z", "completed_at": null}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := OpenJSON(path)
	require.NoError(t, err)

	id, err := s.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)
}

func TestJSONFile_FailedWriteRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")
	path := filepath.Join(dir, "prompts.json")

	s, err := Open(BackendJSON, path)
	require.NoError(t, err)

	id, err := s.Add(ctx, "persisted")
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	// Replace the directory with a plain file so the next write cannot land.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("not a dir"), 0o644))

	_, err = s.Add(ctx, "lost")
	require.Error(t, err)

	next, err := s.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next, "in-memory state must match disk after a failed write")

	err = s.Complete(ctx, 1)
	require.Error(t, err)

	p, ok, err := s.GetPending(ctx)
	require.NoError(t, err)
	require.True(t, ok, "failed completion must leave the record pending")
	assert.Equal(t, int64(1), p.ID)
	assert.Nil(t, p.CompletedAt)
}

func TestJSONFile_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, err := OpenJSON(filepath.Join(t.TempDir(), "prompts.json"), WithClock(testutil.NewDeterministicClock()))
	require.NoError(t, err)

	_, err = s.Add(ctx, "original")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, 1))

	list, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	*list[0].CompletedAt = testutil.Epoch.AddDate(1, 0, 0)
	list[0].Text = "mutated"

	again, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text)
	assert.Equal(t, testutil.Epoch.Add(time.Second), *again[0].CompletedAt)
}
