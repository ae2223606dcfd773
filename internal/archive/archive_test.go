package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestObjectName(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 9, 23, 50, 0, 0, time.UTC)
	data := []byte(`{"records":{}}`)

	name := ObjectName("snapshots", "kakaopage", "run-1", at, data)
	require.Regexp(t, `^snapshots/kakaopage/2026/03/09/run-1-[0-9a-f]{12}\.json$`, name)

	// Same inputs, same name; different payloads diverge.
	require.Equal(t, name, ObjectName("snapshots", "kakaopage", "run-1", at, data))
	require.NotEqual(t, name, ObjectName("snapshots", "kakaopage", "run-1", at, []byte(`{}`)))
}

func TestObjectNameWithoutPrefix(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	name := ObjectName("", "kakaopage", "run-1", at, nil)
	require.Regexp(t, `^kakaopage/2026/03/09/run-1-[0-9a-f]{12}\.json$`, name)
}

func TestNoOpSave(t *testing.T) {
	t.Parallel()
	require.NoError(t, NoOp{}.Save(context.Background(), "anything", []byte("x")))
}
