package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockCollaborator_QueuesResponsesInOrder(t *testing.T) {
	mock := NewMockCollaborator().
		WithResponse("rule_title", []byte(`{"title":"First"}`)).
		WithResponse("rule_title", []byte(`{"title":"Second"}`))
	ctx := context.Background()

	first, err := mock.Complete(ctx, "rule_title", "prompt 1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"First"}`, string(first))

	second, err := mock.Complete(ctx, "rule_title", "prompt 2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Second"}`, string(second))

	assert.Equal(t, 2, mock.CallCount("rule_title"))
}

func TestMockCollaborator_FallsBackToDefaultResponse(t *testing.T) {
	mock := NewMockCollaborator()
	mock.DefaultResponse = []byte(`{"title":"Default"}`)

	got, err := mock.Complete(context.Background(), "rule_title", "prompt")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Default"}`, string(got))
}

func TestMockCollaborator_NoResponseConfiguredIsAnError(t *testing.T) {
	mock := NewMockCollaborator()
	_, err := mock.Complete(context.Background(), "rule_title", "prompt")
	require.Error(t, err)
}

func TestMockCollaborator_WithError(t *testing.T) {
	wantErr := errors.New("collaborator unavailable")
	mock := NewMockCollaborator().WithError("skill_naming", wantErr)

	_, err := mock.Complete(context.Background(), "skill_naming", "prompt")
	assert.True(t, errors.Is(err, wantErr))
}

func TestMockCollaborator_TracksCallsPerShape(t *testing.T) {
	mock := NewMockCollaborator().WithResponse("rule_title", []byte(`{"title":"x"}`))
	ctx := context.Background()

	_, _ = mock.Complete(ctx, "rule_title", "a")
	_, _ = mock.Complete(ctx, "thesis_insight", "b")

	require.Len(t, mock.CallsForShape("rule_title"), 1)
	assert.Equal(t, "a", mock.CallsForShape("rule_title")[0].Prompt)
}

func TestMockCollaborator_Reset(t *testing.T) {
	mock := NewMockCollaborator().WithResponse("rule_title", []byte(`{"title":"x"}`))
	ctx := context.Background()

	_, _ = mock.Complete(ctx, "rule_title", "a")
	mock.Reset()

	assert.Empty(t, mock.Calls)
	// The response queue replays from the start after Reset.
	got, err := mock.Complete(ctx, "rule_title", "b")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"x"}`, string(got))
}

func TestNewFailingCollaborator_FailsEveryKnownShape(t *testing.T) {
	wantErr := errors.New("boom")
	mock := NewFailingCollaborator(wantErr)
	ctx := context.Background()

	for _, shape := range []string{
		"pattern_naming", "thesis_insight", "synthesis_narrative",
		"output_verdict", "rule_title", "skill_naming", "content_summary",
		"skill_script",
	} {
		_, err := mock.Complete(ctx, shape, "prompt")
		assert.True(t, errors.Is(err, wantErr), "shape %s", shape)
	}
}

func TestMockCollaborator_ConcurrentAccess(t *testing.T) {
	mock := NewMockCollaborator()
	mock.DefaultResponse = []byte(`{"title":"x"}`)
	ctx := context.Background()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			_, _ = mock.Complete(ctx, "rule_title", "p")
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, 10, mock.CallCount("rule_title"))
}
