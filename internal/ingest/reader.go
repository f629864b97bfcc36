package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/yungbote/medgraph/internal/platform/logger"
)

const (
	maxLineBytes  = 16 << 20
	progressEvery = 1000
)

type ReadStats struct {
	Lines     int `json:"lines" yaml:"lines"`
	Records   int `json:"records" yaml:"records"`
	Malformed int `json:"malformed" yaml:"malformed"`
}

// ReadCorpus streams a JSON-lines corpus and hands each usable record to fn.
// Blank lines are skipped; malformed lines are logged and counted.
func ReadCorpus(ctx context.Context, log *logger.Logger, r io.Reader, fn func(*Contribution)) (ReadStats, error) {
	if log == nil {
		log = logger.Nop()
	}
	var st ReadStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	for sc.Scan() {
		st.Lines++
		if st.Lines%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
			log.Info("reading corpus", "lines", st.Lines, "records", st.Records, "malformed", st.Malformed)
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		c, err := Normalize(line)
		if err != nil {
			var mr *MalformedRecordError
			if errors.As(err, &mr) {
				mr.Line = st.Lines
			}
			st.Malformed++
			log.Warn("skipping malformed record", "line", st.Lines, "error", err)
			continue
		}
		st.Records++
		fn(c)
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("ingest: read corpus at line %d: %w", st.Lines+1, err)
	}
	return st, nil
}
