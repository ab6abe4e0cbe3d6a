package cache

import "testing"

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	if _, ok := store.Get(KeyCart); ok {
		t.Fatal("missing key reported as present")
	}

	store.Set(KeyCart, `[{"id":"p1"}]`)
	got, ok := store.Get(KeyCart)
	if !ok || got != `[{"id":"p1"}]` {
		t.Fatalf("get = (%q, %v)", got, ok)
	}

	store.Set(KeyCart, `[]`)
	got, _ = store.Get(KeyCart)
	if got != `[]` {
		t.Fatalf("overwrite not applied, got %q", got)
	}

	store.Delete(KeyCart)
	if _, ok := store.Get(KeyCart); ok {
		t.Fatal("key still present after delete")
	}
	// Deleting twice must stay quiet.
	store.Delete(KeyCart)
}

func TestFileStoreSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	store.Set("../escape", "value")
	got, ok := store.Get("../escape")
	if !ok || got != "value" {
		t.Fatalf("sanitized key did not round-trip, got (%q, %v)", got, ok)
	}
}

func TestPutAndGetJSON(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	type record struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	PutJSON(store, KeySettings, record{Name: "hive", N: 3})

	var got record
	if !GetJSON(store, KeySettings, &got) {
		t.Fatal("record not found")
	}
	if got.Name != "hive" || got.N != 3 {
		t.Fatalf("got %+v", got)
	}

	if GetJSON(store, "missing", &got) {
		t.Fatal("missing key decoded")
	}
}
