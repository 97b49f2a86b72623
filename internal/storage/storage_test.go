package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDisk_PutDelete(t *testing.T) {
	dir := t.TempDir()
	d, err := NewLocalDisk(dir, "uploads/")
	require.NoError(t, err)

	ctx := context.Background()
	key := NewKey(".png")
	require.True(t, strings.HasPrefix(key, "resized-"))
	require.True(t, strings.HasSuffix(key, ".png"))

	require.NoError(t, d.Put(ctx, key, []byte("data"), "image/png"))

	got, err := os.ReadFile(filepath.Join(dir, key))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	url := d.URL(key)
	assert.Equal(t, "/uploads/"+key, url)

	parsed, ok := d.KeyFromURL(url)
	require.True(t, ok)
	assert.Equal(t, key, parsed)

	require.NoError(t, d.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(dir, key))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, d.Delete(ctx, key), "deleting a missing file is not an error")
}

func TestKeyFromURL_RejectsForeignURLs(t *testing.T) {
	d, err := NewLocalDisk(t.TempDir(), "/uploads")
	require.NoError(t, err)

	for _, url := range []string{
		"",
		"/uploads/",
		"/static/a.png",
		"/uploads/../secret",
		"/uploads/dir/a.png",
		"https://cdn.example.com/a.png",
	} {
		_, ok := d.KeyFromURL(url)
		assert.False(t, ok, url)
	}
}

func TestS3Disk_URL(t *testing.T) {
	d := &S3Disk{bucket: "shop", baseURL: "https://cdn.example.com"}

	assert.Equal(t, "https://cdn.example.com/a.png", d.URL("a.png"))

	key, ok := d.KeyFromURL("https://cdn.example.com/a.png")
	require.True(t, ok)
	assert.Equal(t, "a.png", key)

	_, ok = d.KeyFromURL("/uploads/a.png")
	assert.False(t, ok)
}
