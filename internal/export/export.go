// Package export writes saved conversations and result sets to the object
// store.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlagent/sqlagent/internal/query"
	"github.com/sqlagent/sqlagent/internal/storage"
	"github.com/sqlagent/sqlagent/internal/transcript"
)

const defaultLinkExpiry = 15 * time.Minute

type Artifact struct {
	storage.ObjectInfo
	Kind    string `json:"kind"`
	Records int    `json:"records"`
}

type Exporter struct {
	store      storage.ObjectStore
	linkExpiry time.Duration
	now        func() time.Time
}

func New(store storage.ObjectStore, linkExpiry time.Duration) (*Exporter, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if linkExpiry <= 0 {
		linkExpiry = defaultLinkExpiry
	}
	return &Exporter{store: store, linkExpiry: linkExpiry, now: time.Now}, nil
}

type transcriptDocument struct {
	SessionID         string            `json:"session_id"`
	Timestamp         time.Time         `json:"timestamp"`
	ConversationCount int               `json:"conversation_count"`
	History           []transcript.Turn `json:"history"`
}

// Transcript saves the turns of a session as one JSON document.
func (e *Exporter) Transcript(ctx context.Context, sessionID string, turns []transcript.Turn) (Artifact, error) {
	exportedAt := e.now().UTC()
	key, err := storage.BuildTranscriptPath(sessionID, exportedAt)
	if err != nil {
		return Artifact{}, err
	}
	if turns == nil {
		turns = []transcript.Turn{}
	}
	body, err := json.MarshalIndent(transcriptDocument{
		SessionID:         sessionID,
		Timestamp:         exportedAt,
		ConversationCount: len(turns),
		History:           turns,
	}, "", "  ")
	if err != nil {
		return Artifact{}, fmt.Errorf("encode transcript: %w", err)
	}
	return e.put(ctx, key, "transcript", len(turns), body, "application/json", sessionID)
}

// Result saves a result set as Parquet. Every column is an optional string.
func (e *Exporter) Result(ctx context.Context, sessionID string, columns []string, rows []query.Row) (Artifact, error) {
	if len(columns) == 0 {
		return Artifact{}, fmt.Errorf("result has no columns")
	}
	exportedAt := e.now().UTC()
	key, err := storage.BuildResultPath(sessionID, exportedAt)
	if err != nil {
		return Artifact{}, err
	}
	body, err := EncodeResultToParquet(columns, rows)
	if err != nil {
		return Artifact{}, err
	}
	return e.put(ctx, key, "result", len(rows), body, "application/vnd.apache.parquet", sessionID)
}

func (e *Exporter) put(ctx context.Context, key, kind string, records int, body []byte, contentType, sessionID string) (Artifact, error) {
	info, err := e.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"session-id": sessionID, "kind": kind},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("upload %s export: %w", kind, err)
	}
	if signer, ok := e.store.(storage.URLSigner); ok {
		url, err := signer.PresignGet(ctx, key, e.linkExpiry)
		if err != nil {
			return Artifact{}, fmt.Errorf("sign %s export url: %w", kind, err)
		}
		info.URL = url
	}
	return Artifact{ObjectInfo: info, Kind: kind, Records: records}, nil
}

// EncodeResultToParquet writes rows under a schema built from the column
// names. Duplicate or empty names get a positional suffix.
func EncodeResultToParquet(columns []string, rows []query.Row) ([]byte, error) {
	names := uniqueColumnNames(columns)
	group := parquet.Group{}
	for _, name := range names {
		group[name] = parquet.Optional(parquet.String())
	}
	schema := parquet.NewSchema("result", group)

	leaf := make(map[string]int, len(names))
	for i, field := range schema.Fields() {
		leaf[field.Name()] = i
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	out := make([]parquet.Row, 0, len(rows))
	for r, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("row %d has %d values, want %d", r, len(row), len(names))
		}
		values := make(parquet.Row, len(names))
		for c, name := range names {
			idx := leaf[name]
			if row[c] == nil {
				values[idx] = parquet.NullValue().Level(0, 0, idx)
				continue
			}
			values[idx] = parquet.ValueOf(stringify(row[c])).Level(0, 1, idx)
		}
		out = append(out, values)
	}
	if _, err := writer.WriteRows(out); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueColumnNames(columns []string) []string {
	used := make(map[string]struct{}, len(columns))
	names := make([]string, len(columns))
	for i, column := range columns {
		name := strings.TrimSpace(column)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if _, taken := used[name]; taken {
			base := name
			for n := 2; ; n++ {
				name = base + "_" + strconv.Itoa(n)
				if _, taken := used[name]; !taken {
					break
				}
			}
		}
		used[name] = struct{}{}
		names[i] = name
	}
	return names
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
