package vault

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/genesisvault/genesisvault/internal/config"
	"github.com/genesisvault/genesisvault/internal/store"
)

func newMemoryStorage(t *testing.T) *store.BadgerStorage {
	t.Helper()

	storage, err := Open(config.Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestBootstrapFirstLaunch(t *testing.T) {
	storage := newMemoryStorage(t)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	state, err := Bootstrap(context.Background(), storage, now)
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if !state.Created {
		t.Error("first bootstrap should create the genesis record")
	}
	if state.Genesis.ID == "" {
		t.Error("genesis ID should be set")
	}
	if !state.Genesis.CreatedAt.Equal(now) {
		t.Errorf("expected created_at %v, got %v", now, state.Genesis.CreatedAt)
	}
	if state.Genesis.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema %d, got %d", SchemaVersion, state.Genesis.SchemaVersion)
	}
	if state.Launches.Count != 1 {
		t.Errorf("expected 1 launch, got %d", state.Launches.Count)
	}
}

func TestBootstrapIsStableAcrossLaunches(t *testing.T) {
	storage := newMemoryStorage(t)
	ctx := context.Background()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	initial, err := Bootstrap(ctx, storage, first)
	if err != nil {
		t.Fatalf("first Bootstrap failed: %v", err)
	}
	again, err := Bootstrap(ctx, storage, second)
	if err != nil {
		t.Fatalf("second Bootstrap failed: %v", err)
	}

	if again.Created {
		t.Error("second bootstrap should not recreate the genesis record")
	}
	if again.Genesis.ID != initial.Genesis.ID {
		t.Errorf("vault ID changed: %s -> %s", initial.Genesis.ID, again.Genesis.ID)
	}
	if !again.Genesis.CreatedAt.Equal(first) {
		t.Errorf("created_at changed to %v", again.Genesis.CreatedAt)
	}
	if again.Launches.Count != 2 {
		t.Errorf("expected 2 launches, got %d", again.Launches.Count)
	}
	if !again.Launches.LastAt.Equal(second) {
		t.Errorf("expected last launch %v, got %v", second, again.Launches.LastAt)
	}

	status, err := Status(ctx, storage)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Genesis.ID != initial.Genesis.ID || status.Launches.Count != 2 {
		t.Errorf("Status mismatch: %+v", status)
	}
}

func TestBootstrapRejectsNewerSchema(t *testing.T) {
	storage := newMemoryStorage(t)
	ctx := context.Background()

	raw, err := store.MarshalValue(Genesis{ID: "future", SchemaVersion: SchemaVersion + 1})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := storage.Set(ctx, store.MetaKey(store.MetaGenesis), raw); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	_, err = Bootstrap(ctx, storage, time.Now())
	if !errors.Is(err, ErrSchemaTooNew) {
		t.Fatalf("expected ErrSchemaTooNew, got %v", err)
	}

	// The failed bootstrap must not count as a launch
	if _, err := storage.Get(ctx, store.MetaKey(store.MetaLaunches)); !store.IsNotFound(err) {
		t.Errorf("launch counter written despite schema error: %v", err)
	}
}

func TestBootstrapCorruptRecord(t *testing.T) {
	storage := newMemoryStorage(t)
	ctx := context.Background()

	if err := storage.Set(ctx, store.MetaKey(store.MetaGenesis), []byte("not json")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := Bootstrap(ctx, storage, time.Now()); err == nil {
		t.Error("expected an error for a corrupt genesis record")
	}
}

func TestCountRecords(t *testing.T) {
	storage := newMemoryStorage(t)
	ctx := context.Background()

	count, err := CountRecords(ctx, storage)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 records in an empty store, got %d", count)
	}

	if _, err := Bootstrap(ctx, storage, time.Now()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	// Keys outside the meta namespace are not counted
	if err := storage.Set(ctx, []byte("other:key"), []byte("x")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	count, err = CountRecords(ctx, storage)
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 meta records, got %d", count)
	}
}

func TestStatusNotInitialized(t *testing.T) {
	storage := newMemoryStorage(t)

	if _, err := Status(context.Background(), storage); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func isolatedConfig(t *testing.T, dataDir string) *config.Options {
	t.Helper()
	t.Setenv(config.EnvPrefix+"_DATA_DIR", dataDir)
	t.Setenv(config.EnvPrefix+"_IN_MEMORY", "false")
	return &config.Options{}
}

func TestRunPersistsAcrossInvocations(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "vault")
	cfg := isolatedConfig(t, dataDir)
	ctx := context.Background()

	var logs bytes.Buffer
	for i := 0; i < 2; i++ {
		if err := RunWithOptions(ctx, Options{Stderr: &logs, Config: cfg}); err != nil {
			t.Fatalf("run %d failed: %v", i+1, err)
		}
	}

	info, err := os.Stat(dataDir)
	if err != nil {
		t.Fatalf("data directory not created: %v", err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf("expected data directory mode 0700, got %v", info.Mode().Perm())
	}

	if strings.Count(logs.String(), "vault initialized") != 1 {
		t.Errorf("expected exactly one initialization log line:\n%s", logs.String())
	}
	if !strings.Contains(logs.String(), "launches=2") {
		t.Errorf("expected second run to report launches=2:\n%s", logs.String())
	}
	if strings.Contains(logs.String(), "level=DEBUG") {
		t.Errorf("debug output without verbose:\n%s", logs.String())
	}

	storage, err := Open(config.Config{DataDir: dataDir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer storage.Close()

	state, err := Status(ctx, storage)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if state.Launches.Count != 2 {
		t.Errorf("expected 2 launches on disk, got %d", state.Launches.Count)
	}
}

func TestRunVerboseLogsDebug(t *testing.T) {
	cfg := isolatedConfig(t, t.TempDir())

	var logs bytes.Buffer
	err := RunWithOptions(context.Background(), Options{Verbose: true, Stderr: &logs, Config: cfg})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, want := range []string{"configuration loaded", "store status", "schema_version=1", "records=2", "writes="} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("verbose output missing %q:\n%s", want, logs.String())
		}
	}
}

func TestRunErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "genesisvault.yaml"), []byte("data_dir: [\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv(config.EnvPrefix+"_DATA_DIR", "")

		err := RunWithOptions(context.Background(), Options{
			Stderr: &bytes.Buffer{},
			Config: &config.Options{ConfigPaths: []string{dir}},
		})

		var vErr *Error
		if !errors.As(err, &vErr) || vErr.Op != OpConfig {
			t.Errorf("expected config error, got %v", err)
		}
	})

	t.Run("data dir is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "occupied")
		if err := os.WriteFile(file, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		cfg := isolatedConfig(t, file)

		err := RunWithOptions(context.Background(), Options{Stderr: &bytes.Buffer{}, Config: cfg})

		var vErr *Error
		if !errors.As(err, &vErr) || vErr.Op != OpOpen {
			t.Errorf("expected open error, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cfg := isolatedConfig(t, t.TempDir())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := RunWithOptions(ctx, Options{Stderr: &bytes.Buffer{}, Config: cfg})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}

		var vErr *Error
		if !errors.As(err, &vErr) || vErr.Op != OpBootstrap {
			t.Errorf("expected bootstrap error, got %v", err)
		}
	})
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Op: OpOpen, Err: errors.New("locked")}
	if got := err.Error(); got != "open: locked" {
		t.Errorf("unexpected message %q", got)
	}
}
