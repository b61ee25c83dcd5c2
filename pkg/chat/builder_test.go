package chat

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestBuilder_ScalarValue(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	msg, err := b.Build("hello", "", "")
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Object)
	require.Equal(t, "User", msg.User)
	require.Equal(t, UserAvatar, msg.Avatar)
	require.NotEmpty(t, msg.ID)
	require.True(t, msg.ShowTimestamp)
}

func TestBuilder_RecordWithValueKey(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	msg, err := b.Build(map[string]any{"value": "hi", "user": "Agent"}, "", "")
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Object)
	require.Equal(t, "Agent", msg.User)
	require.Equal(t, AssistantAvatar, msg.Avatar)
}

func TestBuilder_RecordBothKeysFails(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	_, err := b.Build(map[string]any{"value": "a", "object": "b"}, "", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
}

func TestBuilder_RecordNeitherKeyFails(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	_, err := b.Build(map[string]any{"user": "Agent"}, "", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
}

func TestBuilder_ExplicitArgsWinOverRecordFields(t *testing.T) {
	b := NewBuilder(BuilderConfig{DefaultUser: "Feed"})
	msg, err := b.Build(map[string]any{"object": "x", "user": "Rec", "avatar": "R"}, "Arg", "A")
	require.NoError(t, err)
	require.Equal(t, "Arg", msg.User)
	require.Equal(t, "A", msg.Avatar)
}

func TestBuilder_PrebuiltMessagePassthrough(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	orig := NewMessage("x", "Someone", "S")
	msg, err := b.Build(orig, "", "")
	require.NoError(t, err)
	require.Same(t, orig, msg)
}

func TestBuilder_PrebuiltMessageWithOverridesConflicts(t *testing.T) {
	b := NewBuilder(BuilderConfig{})
	orig := NewMessage("x", "Someone", "S")
	_, err := b.Build(orig, "Other", "")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConflict))
}

func TestBuilder_WidthHint(t *testing.T) {
	b := NewBuilder(BuilderConfig{FeedWidth: 500})
	msg, err := b.Build("hi", "", "")
	require.NoError(t, err)
	require.Equal(t, 420, msg.WidthHint)

	b = NewBuilder(BuilderConfig{})
	msg, err = b.Build("hi", "", "")
	require.NoError(t, err)
	require.Zero(t, msg.WidthHint)
}

func TestBuilder_AvatarOverridesBeatDefaults(t *testing.T) {
	b := NewBuilder(BuilderConfig{AvatarOverrides: map[string]string{"Chat Bot": "🦾"}})
	msg, err := b.Build("hi", "chatbot", "")
	require.NoError(t, err)
	require.Equal(t, "🦾", msg.Avatar)
}

func TestLookupAvatar_NormalizesKeys(t *testing.T) {
	require.Equal(t, ErrorAvatar, LookupAvatar("Exception", nil, ""))
	require.Equal(t, AssistantAvatar, LookupAvatar("A.I.", nil, ""))
	require.Equal(t, "fallback", LookupAvatar("nobody-in-table", nil, "fallback"))
}
