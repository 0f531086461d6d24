package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/ritza-co/bryntum-backend-guides/internal/reconcile"
)

// DataStore defines the interface for snapshot access
type DataStore interface {
	Load(ctx context.Context, requestID json.RawMessage) (*reconcile.Snapshot, error)
}

// Service provides snapshot export functionality
type Service struct {
	backend string
	store   DataStore
	putter  ObjectPutter
	log     logr.Logger
	now     func() time.Time
}

// NewService creates a new export service. putter may be nil, in which case
// exports can be rendered but not uploaded.
func NewService(backend string, store DataStore, putter ObjectPutter, log logr.Logger) *Service {
	return &Service{backend: backend, store: store, putter: putter, log: log, now: time.Now}
}

// CanUpload reports whether object storage is configured.
func (s *Service) CanUpload() bool {
	return s.putter != nil
}

// Export renders the current snapshot in the requested format and, when
// asked, uploads it.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Upload && s.putter == nil {
		return nil, ErrStorageUnavailable
	}
	snap, err := s.store.Load(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "load snapshot")
	}

	var data []byte
	switch req.Format {
	case FormatJSON, "":
		req.Format = FormatJSON
		data, err = json.MarshalIndent(snap, "", "  ")
	case FormatNDJSON:
		data, err = renderNDJSON(snap)
	case FormatHTML:
		data, err = RenderSnapshotHTML(s.backend, s.now(), snap)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", req.Format)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "render %s", req.Format)
	}

	rows := 0
	for _, b := range snap.Blocks {
		rows += len(b.Rows)
	}
	res := &Result{
		Data:     data,
		Filename: s.filename(req.Format),
		MimeType: req.Format.mimeType(),
		Rows:     rows,
	}
	if !req.Upload {
		return res, nil
	}

	key := sanitizeFilename(s.backend) + "/" + res.Filename
	if err := s.putter.Put(ctx, key, res.MimeType, data); err != nil {
		return nil, errors.Wrapf(err, "upload %s", key)
	}
	res.ObjectKey = key
	s.log.Info("snapshot exported", "backend", s.backend, "key", key, "rows", rows, "bytes", len(data))
	return res, nil
}

func (s *Service) filename(f Format) string {
	return fmt.Sprintf("%s-%s.%s", sanitizeFilename(s.backend), s.now().UTC().Format("20060102T150405Z"), f)
}

// renderNDJSON writes one line per row, tagged with its collection.
func renderNDJSON(snap *reconcile.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, b := range snap.Blocks {
		for _, row := range b.Rows {
			if err := enc.Encode(map[string]any{"collection": b.Collection, "row": row}); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

func sanitizeFilename(name string) string {
	result := ""
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		}
	}

	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "export"
	}
	return result
}
