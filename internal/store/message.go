package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"regexp"
	"strconv"
	"time"
)

// RawMessage is one compiler error as collected, text still escaped.
type RawMessage struct {
	SrcMLPath   string
	Version     sql.NullInt64
	Rank        int
	Start       sql.NullString
	End         sql.NullString
	Text        string
	SourceDB    string
	CollectedAt time.Time
}

// Fingerprint identifies the observation independently of which store it
// was collected into or when. Fields are length-prefixed so that no two
// different field tuples hash alike, and NULL differs from the empty string.
func (m RawMessage) Fingerprint() string {
	h := sha256.New()
	writeField(h, m.SrcMLPath, true)
	writeField(h, strconv.FormatInt(m.Version.Int64, 10), m.Version.Valid)
	writeField(h, strconv.Itoa(m.Rank), true)
	writeField(h, m.Start.String, m.Start.Valid)
	writeField(h, m.End.String, m.End.Valid)
	writeField(h, m.Text, true)
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, v string, valid bool) {
	if !valid {
		h.Write([]byte{0})
		return
	}
	var n [9]byte
	n[0] = 1
	binary.BigEndian.PutUint64(n[1:], uint64(len(v)))
	h.Write(n[:])
	h.Write([]byte(v))
}

// SourceFile locates a srcML file inside the Blackbox Mini layout.
type SourceFile struct {
	Slice        string
	ProjectID    int64
	SourceFileID int64
}

var srcMLPathRegex = regexp.MustCompile(`srcml-([^/\\]+)[/\\]project-(\d+)[/\\]src-(\d+)\.xml$`)

// ParseSrcMLPath extracts the slice, project and source file ids from a
// path shaped like .../srcml-<slice>/project-<id>/src-<id>.xml.
func ParseSrcMLPath(path string) (SourceFile, bool) {
	m := srcMLPathRegex.FindStringSubmatch(path)
	if m == nil {
		return SourceFile{}, false
	}
	project, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return SourceFile{}, false
	}
	file, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return SourceFile{}, false
	}
	return SourceFile{Slice: m[1], ProjectID: project, SourceFileID: file}, true
}

// Inserter writes messages inside an existing transaction. Rows whose
// fingerprint is already present are skipped.
type Inserter struct {
	messages *sql.Stmt
	sources  *sql.Stmt
}

// NewInserter prepares the insert statements on tx.
func NewInserter(ctx context.Context, tx *sql.Tx) (*Inserter, error) {
	msgStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO messages
			(fingerprint, srcml_path, version, rank, start, "end", text, source_db, collected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare message insert: %w", err)
	}
	srcStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO sources (srcml_path, slice, project_id, source_file_id)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		msgStmt.Close()
		return nil, fmt.Errorf("prepare source insert: %w", err)
	}
	return &Inserter{messages: msgStmt, sources: srcStmt}, nil
}

// Insert adds m and reports whether it was new.
func (in *Inserter) Insert(ctx context.Context, m RawMessage) (bool, error) {
	res, err := in.messages.ExecContext(ctx,
		m.Fingerprint(), m.SrcMLPath, m.Version, m.Rank, m.Start, m.End, m.Text, m.SourceDB, FormatTime(m.CollectedAt))
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}

	if sf, ok := ParseSrcMLPath(m.SrcMLPath); ok {
		if _, err := in.sources.ExecContext(ctx, m.SrcMLPath, sf.Slice, sf.ProjectID, sf.SourceFileID); err != nil {
			return false, fmt.Errorf("insert source: %w", err)
		}
	}
	return n > 0, nil
}

// Close releases the prepared statements.
func (in *Inserter) Close() error {
	err := in.messages.Close()
	if serr := in.sources.Close(); err == nil {
		err = serr
	}
	return err
}

// InsertBatch inserts msgs in one transaction and returns how many were new.
func (s *Store) InsertBatch(ctx context.Context, msgs []RawMessage) (int, error) {
	inserted := 0
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		in, err := NewInserter(ctx, tx)
		if err != nil {
			return err
		}
		defer in.Close()

		for _, m := range msgs {
			added, err := in.Insert(ctx, m)
			if err != nil {
				return err
			}
			if added {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
