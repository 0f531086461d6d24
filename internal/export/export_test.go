package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritza-co/bryntum-backend-guides/internal/reconcile"
)

type fakeStore struct {
	snap *reconcile.Snapshot
	err  error
}

func (f fakeStore) Load(context.Context, json.RawMessage) (*reconcile.Snapshot, error) {
	return f.snap, f.err
}

type fakePutter struct {
	key         string
	contentType string
	data        []byte
	err         error
}

func (f *fakePutter) Put(_ context.Context, key, contentType string, data []byte) error {
	f.key, f.contentType, f.data = key, contentType, data
	return f.err
}

func testSnapshot() *reconcile.Snapshot {
	rev := int64(3)
	return &reconcile.Snapshot{
		Revision: &rev,
		Blocks: []reconcile.Block{
			{Collection: "tasks", Rows: []map[string]any{
				{"id": int64(1), "name": "Pour <concrete>", "parentId": nil},
				{"id": int64(2), "name": "Cure", "parentId": int64(1)},
			}},
			{Collection: "dependencies", Rows: []map[string]any{}},
		},
	}
}

func newTestService(putter ObjectPutter) *Service {
	s := NewService("gantt", fakeStore{snap: testSnapshot()}, putter, logr.Discard())
	s.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return s
}

func TestExportJSONUpload(t *testing.T) {
	putter := &fakePutter{}
	res, err := newTestService(putter).Export(context.Background(), Request{Format: FormatJSON, Upload: true})
	require.NoError(t, err)

	assert.Equal(t, "gantt-20260304T050607Z.json", res.Filename)
	assert.Equal(t, "gantt/gantt-20260304T050607Z.json", res.ObjectKey)
	assert.Equal(t, "application/json", res.MimeType)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, res.ObjectKey, putter.key)
	assert.Equal(t, res.Data, putter.data)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(res.Data, &decoded))
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, float64(3), decoded["revision"])
}

func TestExportNDJSON(t *testing.T) {
	res, err := newTestService(nil).Export(context.Background(), Request{Format: FormatNDJSON})
	require.NoError(t, err)
	assert.Empty(t, res.ObjectKey)

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(res.Data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"collection":"tasks","row":{"id":2,"name":"Cure","parentId":1}}`, lines[1])
}

func TestExportHTMLEscapesValues(t *testing.T) {
	res, err := newTestService(nil).Export(context.Background(), Request{Format: FormatHTML})
	require.NoError(t, err)
	html := string(res.Data)
	assert.Contains(t, html, "<h2>tasks</h2>")
	assert.Contains(t, html, "<th>parentId</th>")
	assert.Contains(t, html, "Pour &lt;concrete&gt;")
	assert.Contains(t, html, "revision 3")
	assert.Equal(t, "text/html; charset=utf-8", res.MimeType)
}

func TestExportErrors(t *testing.T) {
	_, err := newTestService(nil).Export(context.Background(), Request{Format: FormatJSON, Upload: true})
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = newTestService(nil).Export(context.Background(), Request{Format: "pdf"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	boom := errors.New("bucket gone")
	_, err = newTestService(&fakePutter{err: boom}).Export(context.Background(), Request{Upload: true})
	assert.ErrorIs(t, err, boom)

	failing := NewService("gantt", fakeStore{err: boom}, nil, logr.Discard())
	_, err = failing.Export(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{"": FormatJSON, "json": FormatJSON, "ndjson": FormatNDJSON, "html": FormatHTML} {
		got, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gantt", "gantt"},
		{"scheduler pro", "scheduler-pro"},
		{"../etc/passwd", "etcpasswd"},
		{"", "export"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
