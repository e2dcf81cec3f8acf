package classify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchRulesReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tieRules), 0o644))

	table, err := LoadTableFile(path)
	require.NoError(t, err)
	s := NewScorer(table)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchRules(ctx, path, s) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))
	time.Sleep(400 * time.Millisecond)
	require.Equal(t, "t", s.Table().Version)

	updated := strings.Replace(tieRules, `version: "t"`, `version: "t2"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.Eventually(t, func() bool {
		return s.Table().Version == "t2"
	}, 3*time.Second, 50*time.Millisecond)
}
