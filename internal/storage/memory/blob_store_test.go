package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "cat_1.jpg", "image/jpeg", bytes.NewReader([]byte("content")))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://cat_1.jpg" {
		t.Fatalf("unexpected uri %s", uri)
	}

	got, ok := store.Object("cat_1.jpg")
	if !ok || string(got) != "content" {
		t.Fatalf("unexpected object %q (found=%v)", got, ok)
	}
	got[0] = 'C'
	again, _ := store.Object("cat_1.jpg")
	if string(again) != "content" {
		t.Fatalf("expected Object to return a copy, got %q", again)
	}
	if paths := store.Paths(); len(paths) != 1 || paths[0] != "cat_1.jpg" {
		t.Fatalf("unexpected paths %v", paths)
	}
	if _, err := store.PutObject(context.Background(), "", "image/jpeg", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for empty path")
	}
}
