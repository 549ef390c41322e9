package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediarelay/pkg/config"
)

func TestParseChannels(t *testing.T) {
	got := ParseChannels("TG:telegram, HF:huggingface:main ,R2, bad:a:b:c, :nameless")

	assert.Equal(t, []Channel{
		{Name: "TG", Code: "telegram"},
		{Name: "HF", Code: "huggingface|main"},
		{Name: "R2", Code: "R2"},
	}, got)
}

func TestParseDirectories(t *testing.T) {
	assert.Equal(t, []string{"memes", "wall papers"}, ParseDirectories("memes, ,wall papers,a:b"))
}

func TestEnvSourceRereadsEnvironment(t *testing.T) {
	src := NewEnvSource(config.CatalogConfig{Channels: "File:telegram", Directories: "a,b"}, nil)

	t.Setenv(EnvChannelList, "")
	assert.Equal(t, []Channel{{Name: "File", Code: "telegram"}}, src.Channels())
	assert.Equal(t, []string{"a", "b"}, src.Directories())

	t.Setenv(EnvChannelList, "S3:s3")
	t.Setenv(EnvDirectoryList, "c")
	assert.Equal(t, []Channel{{Name: "S3", Code: "s3"}}, src.Channels())
	assert.Equal(t, []string{"c"}, src.Directories())
}

func TestEnvSourceBlankVariablesUseConfig(t *testing.T) {
	src := NewEnvSource(config.CatalogConfig{Channels: "File:telegram", Directories: "a,b"}, nil)
	t.Setenv(EnvChannelList, "S3:s3")
	t.Setenv(EnvDirectoryList, "c")
	require.Equal(t, []string{"c"}, src.Directories())

	t.Setenv(EnvChannelList, "   ")
	t.Setenv(EnvDirectoryList, " ")
	assert.Equal(t, []Channel{{Name: "File", Code: "telegram"}}, src.Channels())
	assert.Equal(t, []string{"a", "b"}, src.Directories())
}

func TestEnvSourceFallsBackToDefaultChannel(t *testing.T) {
	src := NewEnvSource(config.CatalogConfig{}, nil)
	t.Setenv(EnvChannelList, "")

	assert.Equal(t, []Channel{{Name: "TG", Code: DefaultChannelCode}}, src.Channels())
}

func TestDisplayChannel(t *testing.T) {
	channels := []Channel{{Name: "Hugging", Code: "huggingface"}}

	assert.Equal(t, "Hugging", DisplayChannel(channels, "HuggingFace"))
	assert.Equal(t, "TG", DisplayChannel(channels, "TelegramNew"))
	assert.Equal(t, "TG", DisplayChannel(channels, ""))
	assert.Equal(t, "S3", DisplayChannel(channels, "s3"))
}

func TestChannelName(t *testing.T) {
	channels := []Channel{{Name: "HF", Code: "huggingface|main"}}

	assert.Equal(t, "HF", ChannelName(channels, "huggingface|main"))
	assert.Equal(t, "other", ChannelName(channels, "other"))
	assert.Equal(t, "huggingface|main", DefaultChannel(channels))
	assert.Equal(t, DefaultChannelCode, DefaultChannel(nil))
}
