package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI answers the two Cloudinary endpoints the store uses.
type fakeAPI struct {
	uploads    atomic.Int32
	deletes    atomic.Int32
	failUpload bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.Contains(r.URL.Path, "/resources/"):
		f.deletes.Add(1)
		fmt.Fprint(w, `{"deleted":{"root/a":"deleted","root/b":"not_found"}}`)
	case strings.HasSuffix(r.URL.Path, "/upload") && r.Method == http.MethodPost:
		f.uploads.Add(1)
		if f.failUpload {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"Invalid image file"}}`)
			return
		}
		fmt.Fprint(w, `{"public_id":"root/gallery/abc","secure_url":"https://res.example.com/abc.jpg","url":"http://res.example.com/abc.jpg","width":640,"height":480}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestStore(t *testing.T, api *fakeAPI) *Store {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store, err := New(Config{
		CloudName: "demo",
		APIKey:    "key",
		APISecret: "secret",
		Folder:    "root",
		APIPrefix: srv.URL,
	})
	require.NoError(t, err)
	return store
}

func TestStoreUpload(t *testing.T) {
	api := &fakeAPI{}
	store := newTestStore(t, api)

	asset, err := store.Upload(context.Background(), "gallery", bytes.NewReader([]byte{0xFF, 0xD8, 0xFF}))
	require.NoError(t, err)
	assert.Equal(t, "root/gallery/abc", asset.PublicID)
	assert.Equal(t, "https://res.example.com/abc.jpg", asset.URL)
	assert.Equal(t, 640, asset.Width)
	assert.Equal(t, 480, asset.Height)
	assert.Equal(t, int32(1), api.uploads.Load())
}

func TestStoreUpload_APIError(t *testing.T) {
	api := &fakeAPI{failUpload: true}
	store := newTestStore(t, api)

	_, err := store.Upload(context.Background(), "", bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestStoreDelete(t *testing.T) {
	api := &fakeAPI{}
	store := newTestStore(t, api)

	err := store.Delete(context.Background(), []string{"root/a", "root/b"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.deletes.Load())
}

func TestStoreDelete_EmptyIsNoop(t *testing.T) {
	api := &fakeAPI{}
	store := newTestStore(t, api)

	require.NoError(t, store.Delete(context.Background(), nil))
	assert.Zero(t, api.deletes.Load())
}

func TestStoreDelete_RejectsOversizedBatch(t *testing.T) {
	api := &fakeAPI{}
	store := newTestStore(t, api)

	ids := make([]string, 101)
	for i := range ids {
		ids[i] = fmt.Sprintf("root/%d", i)
	}
	assert.Error(t, store.Delete(context.Background(), ids))
	assert.Zero(t, api.deletes.Load())
}

func TestUploadFolder(t *testing.T) {
	assert.Equal(t, "root/gallery", uploadFolder("root", "gallery"))
	assert.Equal(t, "root", uploadFolder("root", ""))
	assert.Equal(t, "gallery", uploadFolder("", "gallery"))
	assert.Equal(t, "root/sub", uploadFolder("/root/", "/sub/"))
}
